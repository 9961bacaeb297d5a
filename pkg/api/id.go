package api

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	responseIDPrefix     = "resp_"
	itemIDPrefix         = "item_"
	moderationIDPrefix   = "modr_"
	conversationIDPrefix = "conv_"
)

// NewResponseID generates a response ID: "resp_" followed by 24
// cryptographically random alphanumeric characters.
func NewResponseID() string {
	return responseIDPrefix + randomAlphanumeric(idLength)
}

// NewItemID generates an item ID with the "item_" prefix.
func NewItemID() string {
	return itemIDPrefix + randomAlphanumeric(idLength)
}

// NewModerationID generates a moderation ID with the "modr_" prefix.
func NewModerationID() string {
	return moderationIDPrefix + randomAlphanumeric(idLength)
}

// NewConversationID generates a fresh client-facing conversation ID
// (a canonical lowercase UUID).
func NewConversationID() string {
	return uuid.NewString()
}

// NormalizeConversationID parses a client-supplied conversation reference
// and returns it in canonical UUID form. Every outward wire event is
// stamped with this form.
func NormalizeConversationID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid conversation id %q: %w", id, err)
	}
	return u.String(), nil
}

// ToBackendConversationID converts a canonical conversation ID to the
// backend's "conv_<32 hex>" form.
func ToBackendConversationID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid conversation id %q: %w", id, err)
	}
	return conversationIDPrefix + strings.ReplaceAll(u.String(), "-", ""), nil
}

// FromBackendConversationID converts the backend's "conv_<32 hex>" form
// back to a canonical conversation ID.
func FromBackendConversationID(id string) (string, error) {
	hexPart, ok := strings.CutPrefix(id, conversationIDPrefix)
	if !ok {
		return "", fmt.Errorf("invalid backend conversation id %q: missing %s prefix", id, conversationIDPrefix)
	}
	u, err := uuid.Parse(hexPart)
	if err != nil {
		return "", fmt.Errorf("invalid backend conversation id %q: %w", id, err)
	}
	return u.String(), nil
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
