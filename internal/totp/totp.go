// Package totp implements RFC 6238 time-based one-time passwords over
// Base32-encoded shared secrets, plus the provisioning primitives used
// when a user enables two-factor authentication.
//
// The Base32 decoder is deliberately strict: malformed padding or any
// character outside the RFC 4648 alphabet is rejected, and a secret that
// fails to decode always verifies as false rather than erroring up to
// the login path.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Period is the TOTP time step in seconds.
const Period = 30

// Digits is the length of a generated code.
const Digits = 6

const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// ErrInvalidEncoding is returned when a secret is not valid Base32.
var ErrInvalidEncoding = errors.New("totp: invalid base32 encoding")

// DecodeBase32 decodes an RFC 4648 Base32 string into raw bytes.
//
// Padding is validated before decoding: the number of trailing '='
// characters must be one of {0, 1, 3, 4, 6}, the only counts that can
// occur when a 5-byte group is cut short. Any character outside A-Z2-7
// (or '=' appearing before the end) fails the decode.
func DecodeBase32(secret string) ([]byte, error) {
	pad := 0
	for pad < len(secret) && secret[len(secret)-1-pad] == '=' {
		pad++
	}
	switch pad {
	case 0, 1, 3, 4, 6:
	default:
		return nil, ErrInvalidEncoding
	}

	data := secret[:len(secret)-pad]
	if strings.ContainsRune(data, '=') {
		return nil, ErrInvalidEncoding
	}

	var out []byte
	var buffer uint
	bits := 0
	for i := 0; i < len(data); i++ {
		v := strings.IndexByte(base32Alphabet, data[i])
		if v < 0 {
			return nil, ErrInvalidEncoding
		}
		buffer = buffer<<5 | uint(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buffer>>uint(bits)))
		}
	}
	// Bits left over in the buffer belong to the padding and carry no data.
	return out, nil
}

// ComputeCode derives the 6-digit code for a secret at the given time
// step counter, per RFC 4226 dynamic truncation over HMAC-SHA1.
func ComputeCode(secret string, timeCounter uint64) (string, error) {
	key, err := DecodeBase32(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], timeCounter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	digest := mac.Sum(nil)

	offset := digest[len(digest)-1] & 0x0f
	code := binary.BigEndian.Uint32(digest[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", code%1000000), nil
}

// Verify checks a submitted code against the secret at the current time,
// accepting codes up to window time steps (30s each) in either direction
// to tolerate clock drift. An undecodable secret verifies as false.
func Verify(secret, submittedCode string, window int) bool {
	return VerifyAt(secret, submittedCode, time.Now(), window)
}

// VerifyAt is Verify evaluated at an explicit time instant.
func VerifyAt(secret, submittedCode string, at time.Time, window int) bool {
	code := stripSpace(submittedCode)
	counter := uint64(at.Unix() / Period)

	for i := -window; i <= window; i++ {
		candidate, err := ComputeCode(secret, counter+uint64(i))
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
