package app

import (
	"strings"

	"github.com/google/uuid"
)

func newUUID() string {
	return uuid.NewString()
}

// newOrderCode is used when the caller does not supply one.
func newOrderCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(id[:16])
}

// TokenSource produces ticket pass tokens. Tokens are QR payloads scanned at
// the venue, so they must be unguessable and never repeat.
type TokenSource interface {
	NewToken() (string, error)
}

type randomTokens struct{}

// RandomTokens returns UUIDv4 tokens (122 random bits from crypto/rand).
func RandomTokens() TokenSource {
	return randomTokens{}
}

func (randomTokens) NewToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
