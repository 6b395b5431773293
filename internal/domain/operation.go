package domain

import (
	"fmt"
	"strconv"

	"github.com/joseferreira/stakenet/internal/codec"
)

// Amount is a coin quantity in the smallest unit.
type Amount uint64

func (a Amount) String() string { return strconv.FormatUint(uint64(a), 10) }

func (a Amount) AppendCompact(dst []byte) ([]byte, error) {
	return codec.AppendUvarint(dst, uint64(a))
}

func ReadAmount(r *codec.Reader) (Amount, error) {
	v, err := r.ReadUvarint()
	return Amount(v), err
}

// OperationKind is the wire tag of an operation payload. Values are part of
// the protocol and are never reassigned.
type OperationKind uint32

const (
	TransactionKind OperationKind = 0
	RollBuyKind     OperationKind = 1
	RollSellKind    OperationKind = 2
)

var operationKindNames = map[OperationKind]string{
	TransactionKind: "transaction",
	RollBuyKind:     "roll_buy",
	RollSellKind:    "roll_sell",
}

func (k OperationKind) String() string {
	if name, ok := operationKindNames[k]; ok {
		return name
	}
	return "unknown(" + strconv.FormatUint(uint64(k), 10) + ")"
}

// OperationType is the payload of an operation: one of *Transaction,
// *RollBuy or *RollSell.
type OperationType interface {
	codec.Encodable
	Kind() OperationKind
}

type Transaction struct {
	Recipient Address
	Amount    Amount
}

type RollBuy struct {
	RollCount uint64
}

type RollSell struct {
	RollCount uint64
}

func (*Transaction) Kind() OperationKind { return TransactionKind }
func (*RollBuy) Kind() OperationKind     { return RollBuyKind }
func (*RollSell) Kind() OperationKind    { return RollSellKind }

func (t *Transaction) AppendCompact(dst []byte) ([]byte, error) {
	dst = append(dst, t.Recipient[:]...)
	return t.Amount.AppendCompact(dst)
}

func (b *RollBuy) AppendCompact(dst []byte) ([]byte, error) {
	return codec.AppendUvarint(dst, b.RollCount)
}

func (s *RollSell) AppendCompact(dst []byte) ([]byte, error) {
	return codec.AppendUvarint(dst, s.RollCount)
}

func appendOperationType(dst []byte, op OperationType) ([]byte, error) {
	if op == nil {
		return dst, codec.ErrNilObject
	}
	dst, err := codec.AppendUvarint(dst, uint64(op.Kind()))
	if err != nil {
		return dst, err
	}
	return op.AppendCompact(dst)
}

func readOperationType(r *codec.Reader) (OperationType, error) {
	kind, err := r.ReadUint32()
	if err != nil {
		return nil, codec.Field("kind", err)
	}
	switch OperationKind(kind) {
	case TransactionKind:
		recipient, err := ReadAddress(r)
		if err != nil {
			return nil, codec.Field("recipient", err)
		}
		amount, err := ReadAmount(r)
		if err != nil {
			return nil, codec.Field("amount", err)
		}
		return &Transaction{Recipient: recipient, Amount: amount}, nil
	case RollBuyKind:
		count, err := r.ReadUvarint()
		if err != nil {
			return nil, codec.Field("roll_count", err)
		}
		return &RollBuy{RollCount: count}, nil
	case RollSellKind:
		count, err := r.ReadUvarint()
		if err != nil {
			return nil, codec.Field("roll_count", err)
		}
		return &RollSell{RollCount: count}, nil
	default:
		return nil, codec.Field("kind", fmt.Errorf("%w: operation kind %d", codec.ErrInvalidTag, kind))
	}
}

// OperationContent is the signed part of an operation.
type OperationContent struct {
	SenderPublicKey PublicKey
	Fee             Amount
	ExpirePeriod    uint64
	Op              OperationType
}

type Operation struct {
	Content   OperationContent
	Signature Signature
}

// NewOperation signs content with key.
func NewOperation(content OperationContent, key *PrivateKey) (*Operation, error) {
	b, err := codec.Marshal(content)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(b)
	if err != nil {
		return nil, err
	}
	return &Operation{Content: content, Signature: sig}, nil
}

func (c OperationContent) AppendCompact(dst []byte) ([]byte, error) {
	dst = append(dst, c.SenderPublicKey[:]...)
	dst, err := c.Fee.AppendCompact(dst)
	if err != nil {
		return dst, codec.Field("fee", err)
	}
	if dst, err = codec.AppendUvarint(dst, c.ExpirePeriod); err != nil {
		return dst, codec.Field("expire_period", err)
	}
	if dst, err = appendOperationType(dst, c.Op); err != nil {
		return dst, codec.Field("op", err)
	}
	return dst, nil
}

func (o *Operation) AppendCompact(dst []byte) ([]byte, error) {
	if o == nil {
		return dst, codec.ErrNilObject
	}
	dst, err := o.Content.AppendCompact(dst)
	if err != nil {
		return dst, err
	}
	return append(dst, o.Signature[:]...), nil
}

func (o *Operation) MarshalCompact() ([]byte, error) { return codec.Marshal(o) }

func (o *Operation) ID() (OperationID, error) {
	b, err := o.MarshalCompact()
	if err != nil {
		return OperationID{}, err
	}
	return OperationID(HashBytes(b)), nil
}

// Sender is the address paying the fee.
func (o *Operation) Sender() Address {
	return AddressFromPublicKey(o.Content.SenderPublicKey)
}

// VerifySignature checks the signature against the sender key.
func (o *Operation) VerifySignature() error {
	b, err := codec.Marshal(o.Content)
	if err != nil {
		return err
	}
	return o.Content.SenderPublicKey.Verify(b, o.Signature)
}

func ReadOperation(r *codec.Reader) (*Operation, error) {
	var o Operation
	var err error
	if o.Content.SenderPublicKey, err = ReadPublicKey(r); err != nil {
		return nil, codec.Field("sender_public_key", err)
	}
	if o.Content.Fee, err = ReadAmount(r); err != nil {
		return nil, codec.Field("fee", err)
	}
	if o.Content.ExpirePeriod, err = r.ReadUvarint(); err != nil {
		return nil, codec.Field("expire_period", err)
	}
	if o.Content.Op, err = readOperationType(r); err != nil {
		return nil, codec.Field("op", err)
	}
	if o.Signature, err = ReadSignature(r); err != nil {
		return nil, codec.Field("signature", err)
	}
	return &o, nil
}

func UnmarshalOperation(buf []byte) (*Operation, int, error) {
	return codec.Unmarshal(buf, ReadOperation)
}
