// Package iana implements IANA Private Enterprise Numbers (PEN), and a codec
// that combines a PEN with an application payload into a single identifier.
package iana

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	// DefaultWidth is the payload width, in bits, used by most callers.
	DefaultWidth = 32

	// MaxWidth is the widest supported payload, such that packed identifiers
	// fit in a uint64.
	MaxWidth = 32

	// MaxEnterpriseNumber is the largest valid PEN.
	MaxEnterpriseNumber = 1<<32 - 2
)

var (
	// ErrInvalidEnterpriseNumber indicates a PEN outside [0, 2^32-1).
	ErrInvalidEnterpriseNumber = errors.New("iana: invalid private enterprise number")

	// ErrPayloadOutOfRange indicates a payload outside [0, 2^width-1).
	ErrPayloadOutOfRange = errors.New("iana: payload out of range")

	// ErrInvalidWidth indicates a payload width outside [1, MaxWidth].
	ErrInvalidWidth = errors.New("iana: invalid payload width")
)

// PrivateEnterpriseNumber is an immutable IANA Private Enterprise Number.
// The zero value is the (reserved) PEN 0.
type PrivateEnterpriseNumber uint32

// New validates pen.
func New(pen uint64) (PrivateEnterpriseNumber, error) {
	if pen > MaxEnterpriseNumber {
		return 0, fmt.Errorf("%w: %d", ErrInvalidEnterpriseNumber, pen)
	}
	return PrivateEnterpriseNumber(pen), nil
}

// Parse parses a decimal PEN.
func Parse(s string) (PrivateEnterpriseNumber, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidEnterpriseNumber, err)
	}
	return New(v)
}

// Valid reports whether p is in range, which it always is if it was
// obtained by New, Parse or Unpack.
func (p PrivateEnterpriseNumber) Valid() bool {
	return uint64(p) <= MaxEnterpriseNumber
}

// Pack returns an identifier with p in the high bits, and payload in the
// rightmost width bits.
func (p PrivateEnterpriseNumber) Pack(payload uint64, width uint) (uint64, error) {
	if err := checkWidth(width); err != nil {
		return 0, err
	}
	if !p.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidEnterpriseNumber, uint64(p))
	}
	if payload >= 1<<width-1 {
		return 0, fmt.Errorf("%w: %d does not fit in %d bits", ErrPayloadOutOfRange, payload, width)
	}
	return uint64(p)<<width | payload, nil
}

// Unpack splits an identifier produced by Pack, with the same width, into
// the PEN and the payload.
func Unpack(identifier uint64, width uint) (PrivateEnterpriseNumber, uint64, error) {
	if err := checkWidth(width); err != nil {
		return 0, 0, err
	}
	pen, err := New(identifier >> width)
	if err != nil {
		return 0, 0, err
	}
	return pen, identifier & (1<<width - 1), nil
}

func checkWidth(width uint) error {
	if width < 1 || width > MaxWidth {
		return fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
	return nil
}

// String returns the decimal PEN.
func (p PrivateEnterpriseNumber) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// MarshalText implements encoding.TextMarshaler.
func (p PrivateEnterpriseNumber) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEnterpriseNumber, uint64(p))
	}
	return strconv.AppendUint(nil, uint64(p), 10), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PrivateEnterpriseNumber) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
