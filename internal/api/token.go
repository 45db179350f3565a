package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

var errUnauthorized = errors.New("unauthorized")

// Tokens signs and verifies user bearer tokens of the form
// base64url(userID) "." base64url(HMAC-SHA256(userID, key)).
type Tokens struct {
	key []byte
}

func NewTokens(key string) (*Tokens, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("signing key is required")
	}
	return &Tokens{key: []byte(key)}, nil
}

func (t *Tokens) Sign(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}

	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(userID)) + "." + enc.EncodeToString(t.mac(userID)), nil
}

// Verify returns the user id carried by a valid token.
func (t *Tokens) Verify(token string) (string, error) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok {
		return "", errUnauthorized
	}

	enc := base64.RawURLEncoding
	userID, err := enc.DecodeString(payload)
	if err != nil || len(userID) == 0 {
		return "", errUnauthorized
	}

	sig, err := enc.DecodeString(signature)
	if err != nil {
		return "", errUnauthorized
	}

	if !hmac.Equal(sig, t.mac(string(userID))) {
		return "", errUnauthorized
	}

	return string(userID), nil
}

func (t *Tokens) mac(userID string) []byte {
	h := hmac.New(sha256.New, t.key)
	h.Write([]byte(userID))
	return h.Sum(nil)
}

func bearer(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}
