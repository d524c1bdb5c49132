package helpers

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// Login IDs are the human-facing account codes: 12 characters drawn from an
// alphabet without the ambiguous I, L, O, 0 and 1. They are distinct from the
// store-assigned document id and are what users type on the login page.

const (
	LoginIDLength   = 12
	loginIDAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	loginIDGroup    = 4
)

// ErrInvalidLoginID is returned when a presented login ID cannot be
// normalized to the canonical 12-character form.
var ErrInvalidLoginID = errors.New("invalid login id")

// GenerateLoginID returns a fresh 12-character login ID, uniform over the
// alphabet. Generation is random, not unique by construction; callers must
// check the store for collisions before using one.
func GenerateLoginID() (string, error) {
	var b strings.Builder
	b.Grow(LoginIDLength)
	max := big.NewInt(int64(len(loginIDAlphabet)))
	for i := 0; i < LoginIDLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(loginIDAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// FormatLoginID renders a canonical login ID in display form,
// e.g. "AB2CD4EF6GH8" -> "AB2C-D4EF-6GH8". Non-canonical input is returned
// unchanged.
func FormatLoginID(id string) string {
	if len(id) != LoginIDLength {
		return id
	}
	parts := make([]string, 0, LoginIDLength/loginIDGroup)
	for i := 0; i < len(id); i += loginIDGroup {
		parts = append(parts, id[i:i+loginIDGroup])
	}
	return strings.Join(parts, "-")
}

// NormalizeLoginID converts user input to the canonical form: separators and
// whitespace stripped, letters uppercased. It returns ErrInvalidLoginID when
// the result is not exactly 12 characters from the login ID alphabet.
func NormalizeLoginID(raw string) (string, error) {
	var b strings.Builder
	b.Grow(LoginIDLength)
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		if r == '-' || r == ' ' {
			continue
		}
		if !strings.ContainsRune(loginIDAlphabet, r) {
			return "", ErrInvalidLoginID
		}
		b.WriteRune(r)
	}
	id := b.String()
	if len(id) != LoginIDLength {
		return "", ErrInvalidLoginID
	}
	return id, nil
}
