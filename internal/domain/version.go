package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/joseferreira/stakenet/internal/codec"
)

const instanceSize = 4

var ErrInvalidVersion = errors.New("invalid version")

// Version identifies the network instance and protocol release a node runs,
// written as INST.MAJOR.MINOR (for example "TEST.1.2").
type Version struct {
	Instance [instanceSize]byte
	Major    uint32
	Minor    uint32
}

func ParseVersion(s string) (Version, error) {
	var v Version
	parts := strings.Split(s, ".")
	if len(parts) != 3 || len(parts[0]) != instanceSize {
		return v, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	copy(v.Instance[:], parts[0])
	if !validInstance(v.Instance) {
		return v, fmt.Errorf("%w: instance %q", ErrInvalidVersion, parts[0])
	}
	major, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return v, fmt.Errorf("%w: major: %v", ErrInvalidVersion, err)
	}
	minor, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return v, fmt.Errorf("%w: minor: %v", ErrInvalidVersion, err)
	}
	v.Major, v.Minor = uint32(major), uint32(minor)
	return v, nil
}

func validInstance(instance [instanceSize]byte) bool {
	for _, c := range instance {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func (v Version) String() string {
	return fmt.Sprintf("%s.%d.%d", v.Instance[:], v.Major, v.Minor)
}

// IsCompatible reports whether two nodes can talk: same instance and
// major release.
func (v Version) IsCompatible(other Version) bool {
	return v.Instance == other.Instance && v.Major == other.Major
}

func (v Version) AppendCompact(dst []byte) ([]byte, error) {
	dst = append(dst, v.Instance[:]...)
	dst, err := codec.AppendUvarint(dst, uint64(v.Major))
	if err != nil {
		return dst, err
	}
	return codec.AppendUvarint(dst, uint64(v.Minor))
}

func ReadVersion(r *codec.Reader) (Version, error) {
	var v Version
	if err := r.ReadInto(v.Instance[:]); err != nil {
		return v, codec.Field("instance", err)
	}
	if !validInstance(v.Instance) {
		return v, codec.Field("instance", ErrInvalidVersion)
	}
	var err error
	if v.Major, err = r.ReadUint32(); err != nil {
		return v, codec.Field("major", err)
	}
	if v.Minor, err = r.ReadUint32(); err != nil {
		return v, codec.Field("minor", err)
	}
	return v, nil
}
