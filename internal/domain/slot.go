package domain

import (
	"fmt"

	"github.com/joseferreira/stakenet/internal/codec"
)

// Slot is a block production opportunity: a period and one of the
// ThreadCount parallel threads.
type Slot struct {
	Period uint64
	Thread uint8
}

func (s Slot) String() string {
	return fmt.Sprintf("(period: %d, thread: %d)", s.Period, s.Thread)
}

func (s Slot) AppendCompact(dst []byte) ([]byte, error) {
	dst, err := codec.AppendUvarint(dst, s.Period)
	if err != nil {
		return dst, codec.Field("period", err)
	}
	return append(dst, s.Thread), nil
}

func ReadSlot(r *codec.Reader, ctx *SerializationContext) (Slot, error) {
	var s Slot
	var err error
	if s.Period, err = r.ReadUvarint(); err != nil {
		return s, codec.Field("period", err)
	}
	if s.Thread, err = r.ReadByte(); err != nil {
		return s, codec.Field("thread", err)
	}
	if s.Thread >= ctx.ThreadCount {
		return s, codec.Field("thread", fmt.Errorf("%w: thread %d >= %d", codec.ErrBoundExceeded, s.Thread, ctx.ThreadCount))
	}
	return s, nil
}
