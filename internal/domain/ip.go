package domain

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/joseferreira/stakenet/internal/codec"
)

const (
	ipv4Tag byte = 4
	ipv6Tag byte = 6
)

var ErrInvalidIP = errors.New("invalid ip address")

// AppendIPCompact writes a one byte family tag followed by the address
// bytes. Zoned addresses have no wire form.
func AppendIPCompact(dst []byte, ip netip.Addr) ([]byte, error) {
	switch {
	case !ip.IsValid():
		return dst, ErrInvalidIP
	case ip.Zone() != "":
		return dst, fmt.Errorf("%w: zoned address %s", ErrInvalidIP, ip)
	case ip.Is4():
		b := ip.As4()
		dst = append(dst, ipv4Tag)
		return append(dst, b[:]...), nil
	default:
		b := ip.As16()
		dst = append(dst, ipv6Tag)
		return append(dst, b[:]...), nil
	}
}

func ReadIP(r *codec.Reader) (netip.Addr, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return netip.Addr{}, err
	}
	switch tag {
	case ipv4Tag:
		var b [4]byte
		if err := r.ReadInto(b[:]); err != nil {
			return netip.Addr{}, err
		}
		return netip.AddrFrom4(b), nil
	case ipv6Tag:
		var b [16]byte
		if err := r.ReadInto(b[:]); err != nil {
			return netip.Addr{}, err
		}
		return netip.AddrFrom16(b), nil
	default:
		return netip.Addr{}, fmt.Errorf("%w: ip family %d", codec.ErrInvalidTag, tag)
	}
}
