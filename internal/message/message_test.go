package message

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseferreira/stakenet/internal/codec"
	"github.com/joseferreira/stakenet/internal/domain"
	"github.com/joseferreira/stakenet/internal/domain/domaintest"
)

func blockID(seed string) domain.BlockID {
	return domain.BlockID(domaintest.ID(seed))
}

func operationID(seed string) domain.OperationID {
	return domain.OperationID(domaintest.ID(seed))
}

// sampleMessages returns one populated value of every message type.
func sampleMessages(t *testing.T) []Message {
	key := domaintest.Key(t)
	version, err := domain.ParseVersion("TEST.1.2")
	require.NoError(t, err)

	tx := domaintest.Transaction(t, key, 42)
	txID, err := tx.ID()
	require.NoError(t, err)

	block := domaintest.Block(t, key, tx, domaintest.RollBuy(t, key, 1))

	initiation := &HandshakeInitiation{PublicKey: key.PublicKey(), Version: version}
	for i := range initiation.RandomBytes {
		initiation.RandomBytes[i] = byte(i)
	}
	sig, err := key.Sign(initiation.RandomBytes[:])
	require.NoError(t, err)

	return []Message{
		initiation,
		&HandshakeReply{Signature: sig},
		&Block{Block: block},
		&BlockHeader{Header: block.Header},
		&AskForBlocks{BlockIDs: []domain.BlockID{blockID("a"), blockID("b")}},
		&AskPeerList{},
		&PeerList{Peers: []netip.Addr{
			netip.MustParseAddr("203.0.113.7"),
			netip.MustParseAddr("2001:db8::1"),
		}},
		&BlockNotFound{BlockID: blockID("missing")},
		&Operations{Operations: map[domain.OperationID]*domain.Operation{
			txID:                tx,
			operationID("gone"): nil,
		}},
		&Endorsements{Endorsements: []*domain.Endorsement{
			domaintest.Endorsement(t, key, 0),
			domaintest.Endorsement(t, key, 5),
		}},
		&AskForOperations{OperationIDs: []domain.OperationID{operationID("x")}},
		&OperationsBatch{OperationIDs: []domain.OperationID{operationID("x"), operationID("y")}},
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := domaintest.Context()
	msgs := sampleMessages(t)

	seen := make(map[Type]bool)
	for _, m := range msgs {
		t.Run(m.Type().String(), func(t *testing.T) {
			require := require.New(t)

			encoded, err := Encode(m)
			require.NoError(err)
			require.Equal(byte(m.Type()), encoded[0])

			decoded, n, err := Decode(encoded, ctx)
			require.NoError(err)
			require.Equal(m, decoded)
			require.Equal(len(encoded), n)

			// trailing bytes belong to the next message
			decoded, n, err = Decode(append(encoded, 0xff, 0xff), ctx)
			require.NoError(err)
			require.Equal(m, decoded)
			require.Equal(len(encoded), n)
		})
		seen[m.Type()] = true
	}
	require.Len(t, seen, len(Types()))
}

// Empty lists decode as nil slices whether they were nil or empty when
// encoded. An empty Operations map decodes as an empty map.
func TestEmptyListsRoundTrip(t *testing.T) {
	ctx := domaintest.Context()
	emptyOps := map[domain.OperationID]*domain.Operation{}

	tests := []struct {
		msg  Message
		want Message
	}{
		{msg: &AskForBlocks{}, want: &AskForBlocks{}},
		{msg: &AskForBlocks{BlockIDs: []domain.BlockID{}}, want: &AskForBlocks{}},
		{msg: &PeerList{}, want: &PeerList{}},
		{msg: &PeerList{Peers: []netip.Addr{}}, want: &PeerList{}},
		{msg: &Operations{}, want: &Operations{Operations: emptyOps}},
		{msg: &Operations{Operations: emptyOps}, want: &Operations{Operations: emptyOps}},
		{msg: &Endorsements{}, want: &Endorsements{}},
		{msg: &Endorsements{Endorsements: []*domain.Endorsement{}}, want: &Endorsements{}},
		{msg: &AskForOperations{}, want: &AskForOperations{}},
		{msg: &AskForOperations{OperationIDs: []domain.OperationID{}}, want: &AskForOperations{}},
		{msg: &OperationsBatch{}, want: &OperationsBatch{}},
		{msg: &OperationsBatch{OperationIDs: []domain.OperationID{}}, want: &OperationsBatch{}},
	}
	for _, test := range tests {
		t.Run(test.msg.Type().String(), func(t *testing.T) {
			require := require.New(t)

			encoded, err := Encode(test.msg)
			require.NoError(err)
			require.Equal([]byte{byte(test.msg.Type()), 0}, encoded)

			decoded, n, err := Decode(encoded, ctx)
			require.NoError(err)
			require.Equal(test.want, decoded)
			require.Equal(len(encoded), n)
		})
	}
}

func TestTruncated(t *testing.T) {
	ctx := domaintest.Context()
	for _, m := range sampleMessages(t) {
		t.Run(m.Type().String(), func(t *testing.T) {
			encoded, err := Encode(m)
			require.NoError(t, err)

			for i := 0; i < len(encoded); i++ {
				decoded, n, err := Decode(encoded[:i], ctx)
				require.ErrorIs(t, err, codec.ErrTruncated, "prefix of %d bytes", i)
				require.Nil(t, decoded)
				require.Zero(t, n)
			}
		})
	}
}

func TestUnknownType(t *testing.T) {
	ctx := domaintest.Context()
	tests := map[string][]byte{
		"next unused":   {12},
		"two bytes":     {0x80, 0x01},
		"beyond uint32": {0x80, 0x80, 0x80, 0x80, 0x10},
	}
	for name, buf := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Decode(buf, ctx)
			require.ErrorIs(t, err, codec.ErrUnknownMessageType)
		})
	}

	_, _, err := Decode([]byte{0x80, 0x00}, ctx)
	require.ErrorIs(t, err, codec.ErrMalformedVarint)
}

func TestMissingContext(t *testing.T) {
	_, _, err := Decode([]byte{byte(AskPeerListType)}, nil)
	require.ErrorIs(t, err, codec.ErrMissingContext)
}

func TestAskForBlocksBound(t *testing.T) {
	require := require.New(t)

	a, b := blockID("a"), blockID("b")
	buf := []byte{0x04, 0x02}
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)

	encoded, err := Encode(&AskForBlocks{BlockIDs: []domain.BlockID{a, b}})
	require.NoError(err)
	require.Equal(buf, encoded)

	ctx := domaintest.Context()
	decoded, n, err := Decode(buf, ctx)
	require.NoError(err)
	require.Equal(&AskForBlocks{BlockIDs: []domain.BlockID{a, b}}, decoded)
	require.Equal(len(buf), n)

	ctx.MaxAskBlocksPerMessage = 1
	_, _, err = Decode(buf, ctx)
	require.ErrorIs(err, codec.ErrBoundExceeded)
}

func TestListBounds(t *testing.T) {
	key := domaintest.Key(t)
	ids := []domain.OperationID{operationID("1"), operationID("2")}

	tests := []struct {
		name   string
		msg    Message
		shrink func(*domain.SerializationContext)
	}{
		{
			name: "peer list",
			msg: &PeerList{Peers: []netip.Addr{
				netip.MustParseAddr("10.0.0.1"),
				netip.MustParseAddr("10.0.0.2"),
			}},
			shrink: func(ctx *domain.SerializationContext) { ctx.MaxAdvertiseLength = 1 },
		},
		{
			name:   "operations batch",
			msg:    &OperationsBatch{OperationIDs: ids},
			shrink: func(ctx *domain.SerializationContext) { ctx.MaxOperationsPerMessage = 1 },
		},
		{
			name:   "ask for operations",
			msg:    &AskForOperations{OperationIDs: ids},
			shrink: func(ctx *domain.SerializationContext) { ctx.MaxOperationsPerMessage = 1 },
		},
		{
			name: "operations",
			msg: &Operations{Operations: map[domain.OperationID]*domain.Operation{
				ids[0]: nil,
				ids[1]: nil,
			}},
			shrink: func(ctx *domain.SerializationContext) { ctx.MaxOperationsPerMessage = 1 },
		},
		{
			name: "endorsements",
			msg: &Endorsements{Endorsements: []*domain.Endorsement{
				domaintest.Endorsement(t, key, 0),
				domaintest.Endorsement(t, key, 1),
			}},
			shrink: func(ctx *domain.SerializationContext) { ctx.MaxEndorsementsPerMessage = 1 },
		},
		{
			name: "endorsement index",
			msg: &Endorsements{Endorsements: []*domain.Endorsement{
				domaintest.Endorsement(t, key, 4),
			}},
			shrink: func(ctx *domain.SerializationContext) { ctx.EndorsementCount = 4 },
		},
		{
			name:   "block operations",
			msg:    &Block{Block: domaintest.Block(t, key, domaintest.RollBuy(t, key, 1), domaintest.RollBuy(t, key, 2))},
			shrink: func(ctx *domain.SerializationContext) { ctx.MaxOperationsPerBlock = 1 },
		},
		{
			name:   "header endorsements",
			msg:    &BlockHeader{Header: domaintest.Block(t, key).Header},
			shrink: func(ctx *domain.SerializationContext) { ctx.EndorsementCount = 1 },
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			encoded, err := Encode(test.msg)
			require.NoError(err)

			ctx := domaintest.Context()
			_, _, err = Decode(encoded, ctx)
			require.NoError(err)

			test.shrink(ctx)
			decoded, n, err := Decode(encoded, ctx)
			require.ErrorIs(err, codec.ErrBoundExceeded)
			require.Nil(decoded)
			require.Zero(n)
		})
	}
}

func TestHugeCountDoesNotAllocate(t *testing.T) {
	ctx := domaintest.Context()
	ctx.MaxOperationsPerMessage = 1<<32 - 1

	// claims four billion ids but carries none
	buf := []byte{byte(OperationsBatchType), 0xff, 0xff, 0xff, 0xff, 0x0f}
	_, _, err := Decode(buf, ctx)
	require.ErrorIs(t, err, codec.ErrTruncated)
}

func TestOperationsWireFormat(t *testing.T) {
	require := require.New(t)

	key := domaintest.Key(t)
	op := domaintest.RollBuy(t, key, 1)
	present, err := op.ID()
	require.NoError(err)
	absent := operationID("absent")

	opBytes, err := op.MarshalCompact()
	require.NoError(err)

	presentEntry := append(append([]byte{}, present[:]...), 0, 0, 0, 1)
	presentEntry = append(presentEntry, opBytes...)
	absentEntry := append(append([]byte{}, absent[:]...), 0, 0, 0, 0)

	want := []byte{byte(OperationsType), 2}
	if present.Compare(absent) < 0 {
		want = append(append(want, presentEntry...), absentEntry...)
	} else {
		want = append(append(want, absentEntry...), presentEntry...)
	}

	m := &Operations{Operations: map[domain.OperationID]*domain.Operation{
		present: op,
		absent:  nil,
	}}
	encoded, err := Encode(m)
	require.NoError(err)
	require.Equal(want, encoded)

	decoded, n, err := Decode(encoded, domaintest.Context())
	require.NoError(err)
	require.Equal(m, decoded)
	require.Equal(len(encoded), n)

	ops := decoded.(*Operations).Operations
	require.Contains(ops, absent)
	require.Nil(ops[absent])
}

func TestOperationsInvalidTag(t *testing.T) {
	id := operationID("x")
	buf := []byte{byte(OperationsType), 1}
	buf = append(buf, id[:]...)
	buf = append(buf, 0, 0, 0, 2)

	_, _, err := Decode(buf, domaintest.Context())
	require.ErrorIs(t, err, codec.ErrInvalidTag)

	var fieldErr *codec.FieldError
	require.ErrorAs(t, err, &fieldErr)
	require.Equal(t, "operations.0.tag: invalid tag: presence tag 2", err.Error())
}

func TestOperationsDuplicateID(t *testing.T) {
	id := operationID("x")
	buf := []byte{byte(OperationsType), 2}
	for i := 0; i < 2; i++ {
		buf = append(buf, id[:]...)
		buf = append(buf, 0, 0, 0, 0)
	}

	_, _, err := Decode(buf, domaintest.Context())
	require.ErrorIs(t, err, codec.ErrDuplicateEntry)
}

func TestEncodeNil(t *testing.T) {
	_, err := Encode(nil)
	require.ErrorIs(t, err, codec.ErrNilObject)

	_, err = Encode(&Block{})
	require.ErrorIs(t, err, codec.ErrNilObject)

	_, err = Encode(&Endorsements{Endorsements: []*domain.Endorsement{nil}})
	require.ErrorIs(t, err, codec.ErrNilObject)
}

func TestDecodeAll(t *testing.T) {
	require := require.New(t)
	ctx := domaintest.Context()

	msgs := sampleMessages(t)
	var stream []byte
	for _, m := range msgs {
		var err error
		stream, err = AppendEncoded(stream, m)
		require.NoError(err)
	}

	decoded, err := DecodeAll(stream, ctx)
	require.NoError(err)
	require.Equal(msgs, decoded)

	_, err = DecodeAll(stream[:len(stream)-1], ctx)
	require.ErrorIs(err, codec.ErrTruncated)

	decoded, err = DecodeAll(nil, ctx)
	require.NoError(err)
	require.Empty(decoded)
}

func TestTypes(t *testing.T) {
	require := require.New(t)

	types := Types()
	require.Len(types, 12)
	for i, typ := range types {
		require.Equal(Type(i), typ)
		parsed, err := ParseType(uint64(i))
		require.NoError(err)
		require.Equal(typ, parsed)
	}
	require.Equal("ask_for_blocks", AskForBlocksType.String())
	require.Equal("unknown(99)", Type(99).String())
}
