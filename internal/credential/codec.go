// Package credential converts guest ids to the short codes printed in QR images and back.
package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// KeyLength is the number of id characters carried by a code.
const KeyLength = 8

// DefaultPrefix is the literal every code starts with.
const DefaultPrefix = "RSVP"

// ErrMalformed is returned by Decode for input that is not a guest code.
var ErrMalformed = errors.New("not a guest code")

// Key is the lowercase hex id prefix recovered from a code. It names at most one guest
// per event and is resolved to a full guest id by the guest store.
type Key string

// String returns the key as stored in the id column.
func (k Key) String() string { return string(k) }

// Matches reports whether id starts with the key.
func (k Key) Matches(id uuid.UUID) bool {
	return strings.HasPrefix(id.String(), string(k))
}

// Codec encodes guest ids as PREFIX-XXXXXXXX codes.
type Codec struct {
	prefix string
}

// NewCodec creates a codec. The prefix must be 1-8 uppercase letters or digits.
func NewCodec(prefix string) (*Codec, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if len(prefix) > 8 {
		return nil, fmt.Errorf("code prefix %q longer than 8 characters", prefix)
	}
	for _, r := range prefix {
		if !isUpperAlnum(r) {
			return nil, fmt.Errorf("code prefix %q must be uppercase alphanumeric", prefix)
		}
	}
	return &Codec{prefix: prefix}, nil
}

// Prefix returns the literal the codec puts in front of every code.
func (c *Codec) Prefix() string { return c.prefix }

// Encode returns the code for a guest id.
func (c *Codec) Encode(id uuid.UUID) string {
	return c.prefix + "-" + strings.ToUpper(id.String()[:KeyLength])
}

// Decode parses a scanned code. Surrounding whitespace and letter case are ignored;
// anything else that deviates from PREFIX-XXXXXXXX (hex) is ErrMalformed.
func (c *Codec) Decode(code string) (Key, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	rest, ok := strings.CutPrefix(code, c.prefix+"-")
	if !ok || len(rest) != KeyLength {
		return "", ErrMalformed
	}
	for _, r := range rest {
		if !isHex(r) {
			return "", ErrMalformed
		}
	}
	return Key(strings.ToLower(rest)), nil
}

func isUpperAlnum(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F')
}
