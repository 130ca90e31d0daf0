package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// MinTokenBytes: нижняя граница энтропии для одноразовых токенов (256 бит).
const MinTokenBytes = 32

// TokenGenerator mints opaque verification and reset tokens.
type TokenGenerator struct {
	nBytes int
}

func NewTokenGenerator(nBytes int) *TokenGenerator {
	if nBytes < MinTokenBytes {
		nBytes = MinTokenBytes
	}
	return &TokenGenerator{nBytes: nBytes}
}

// NewToken returns a fixed-length hex token (2 chars per byte).
func (g *TokenGenerator) NewToken() (string, error) {
	b := make([]byte, g.nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
