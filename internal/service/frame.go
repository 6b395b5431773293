package service

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"

	"github.com/joseferreira/stakenet/internal/codec"
	"github.com/joseferreira/stakenet/internal/domain"
	"github.com/joseferreira/stakenet/internal/message"
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds max message size")
	ErrTrailingBytes = errors.New("trailing bytes after message")
)

// writeFrame writes msg as [varint length][encoded message].
func writeFrame(w io.Writer, msg message.Message, maxSize uint32) (int, error) {
	payload, err := message.Encode(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s: %w", msg.Type(), err)
	}
	if uint64(len(payload)) > uint64(maxSize) {
		return 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), maxSize)
	}
	frame, err := codec.AppendUvarint(make([]byte, 0, varint.MaxLenUvarint63+len(payload)), uint64(len(payload)))
	if err != nil {
		return 0, err
	}
	frame = append(frame, payload...)
	if _, err := w.Write(frame); err != nil {
		return 0, err
	}
	return len(payload), nil
}

// readFrame returns the next frame payload. A clean end of stream between
// frames is reported as io.EOF. The length is checked before the payload
// buffer is allocated.
func readFrame(r *bufio.Reader, maxSize uint32) ([]byte, error) {
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// decodeFrame decodes a frame that must hold exactly one message.
func decodeFrame(payload []byte, ctx *domain.SerializationContext) (message.Message, error) {
	msg, n, err := message.Decode(payload, ctx)
	if err != nil {
		return nil, err
	}
	if n != len(payload) {
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, len(payload)-n)
	}
	return msg, nil
}

var failureReasons = []struct {
	err    error
	reason string
}{
	{codec.ErrTruncated, "truncated"},
	{codec.ErrBoundExceeded, "bound_exceeded"},
	{codec.ErrUnknownMessageType, "unknown_type"},
	{codec.ErrMalformedVarint, "malformed_varint"},
	{codec.ErrInvalidTag, "invalid_tag"},
	{codec.ErrDuplicateEntry, "duplicate_entry"},
	{domain.ErrInvalidVersion, "invalid_version"},
	{ErrTrailingBytes, "trailing_bytes"},
	{ErrFrameTooLarge, "frame_too_large"},
	{io.ErrUnexpectedEOF, "truncated"},
	{varint.ErrOverflow, "malformed_varint"},
	{varint.ErrNotMinimal, "malformed_varint"},
}

// failureReason maps a decode error to a metric label.
func failureReason(err error) string {
	for _, r := range failureReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
