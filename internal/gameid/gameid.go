// Package gameid generates identifiers for tables and hands: UUIDv7
// rendered as 26 characters of Crockford base32. The leading timestamp
// makes ids sort by creation time.
package gameid

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"
)

const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// New returns a fresh id.
func New() string {
	id, err := newAt(time.Now(), rand.Reader)
	if err != nil {
		panic("gameid: " + err.Error())
	}
	return id
}

// newAt builds an id from an explicit timestamp and entropy source.
func newAt(ts time.Time, entropy io.Reader) (string, error) {
	var u [16]byte

	ms := uint64(ts.UnixMilli())
	u[0] = byte(ms >> 40)
	u[1] = byte(ms >> 32)
	u[2] = byte(ms >> 24)
	u[3] = byte(ms >> 16)
	u[4] = byte(ms >> 8)
	u[5] = byte(ms)

	if _, err := io.ReadFull(entropy, u[6:]); err != nil {
		return "", fmt.Errorf("reading entropy: %w", err)
	}

	// UUIDv7 version and variant bits.
	u[6] = (u[6] & 0x0f) | 0x70
	u[8] = (u[8] & 0x3f) | 0x80

	return encode(u), nil
}

// encode renders 128 bits as 26 base32 characters, consuming five bits per
// character from the least significant end. The three bits left over land
// in the first character, which is therefore always 0-7.
func encode(u [16]byte) string {
	var out [26]byte
	acc, bits, idx := uint32(0), 0, 25
	for i := 15; i >= 0; i-- {
		acc |= uint32(u[i]) << bits
		bits += 8
		for bits >= 5 {
			out[idx] = alphabet[acc&0x1f]
			acc >>= 5
			bits -= 5
			idx--
		}
	}
	out[0] = alphabet[acc&0x1f]
	return string(out[:])
}

// Validate reports whether id is a well-formed gameid.
func Validate(id string) error {
	if len(id) != 26 {
		return fmt.Errorf("id must be 26 characters, got %d", len(id))
	}
	if id[0] > '7' {
		return fmt.Errorf("id first character out of range: %c", id[0])
	}
	for i := 0; i < len(id); i++ {
		if !strings.ContainsRune(alphabet, rune(id[i])) {
			return fmt.Errorf("invalid character %c at position %d", id[i], i)
		}
	}
	return nil
}
