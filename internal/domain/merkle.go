package domain

// MerkleTree represents a Merkle tree over operation ids.
type MerkleTree struct {
	RootNode *MerkleNode
}

// MerkleNode represents a node in the Merkle tree.
type MerkleNode struct {
	Left  *MerkleNode
	Right *MerkleNode
	Data  Hash
}

// NewMerkleNode creates a new Merkle tree node.
func NewMerkleNode(left, right *MerkleNode, data []byte) *MerkleNode {
	node := MerkleNode{}

	if left == nil && right == nil {
		// Leaf node
		node.Data = HashBytes(data)
	} else {
		// Internal node
		prevHashes := make([]byte, 0, 2*HashSize)
		prevHashes = append(prevHashes, left.Data[:]...)
		prevHashes = append(prevHashes, right.Data[:]...)
		node.Data = HashBytes(prevHashes)
	}

	node.Left = left
	node.Right = right

	return &node
}

// NewMerkleTree creates a new Merkle tree from a sequence of data.
func NewMerkleTree(data [][]byte) *MerkleTree {
	if len(data) == 0 {
		return &MerkleTree{RootNode: &MerkleNode{Data: HashBytes(nil)}}
	}

	nodes := make([]*MerkleNode, 0, len(data))
	for _, datum := range data {
		nodes = append(nodes, NewMerkleNode(nil, nil, datum))
	}

	for len(nodes) > 1 {
		if len(nodes)%2 != 0 {
			nodes = append(nodes, nodes[len(nodes)-1])
		}

		newLevel := make([]*MerkleNode, 0, len(nodes)/2)
		for i := 0; i < len(nodes); i += 2 {
			newLevel = append(newLevel, NewMerkleNode(nodes[i], nodes[i+1], nil))
		}
		nodes = newLevel
	}

	return &MerkleTree{RootNode: nodes[0]}
}

// OperationMerkleRoot is the root committed to by a block header for the
// given operations, in block order.
func OperationMerkleRoot(ids []OperationID) Hash {
	data := make([][]byte, 0, len(ids))
	for i := range ids {
		data = append(data, ids[i][:])
	}
	return NewMerkleTree(data).RootNode.Data
}
