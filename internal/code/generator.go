package code

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
)

// Alphabet is the 32-symbol code alphabet. Visually ambiguous characters
// (I, O, 0, 1) are excluded so codes survive being read aloud or
// hand-copied.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultLength is the random suffix length for invite and share codes.
const DefaultLength = 4

// DefaultAttempts bounds the collision-retry loop in GenerateUnique.
const DefaultAttempts = 8

// ErrExhausted is returned when every generation attempt collided with an
// existing code.
var ErrExhausted = errors.New("code: generation attempts exhausted")

// Generate produces "PREFIX-XXXX" with length random alphabet characters.
// Uniqueness is not guaranteed; see GenerateUnique.
func Generate(prefix string, length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	for i := range buf {
		buf[i] = Alphabet[int(buf[i])%len(Alphabet)]
	}
	return prefix + "-" + string(buf), nil
}

// GenerateUnique draws codes until taken reports one free, up to attempts
// tries (DefaultAttempts when attempts <= 0). The existence check and the
// eventual write are separate operations, so a concurrent writer can still
// claim the code in between; callers must treat the subsequent write as the
// authoritative uniqueness check.
func GenerateUnique(ctx context.Context, prefix string, length, attempts int, taken func(context.Context, string) (bool, error)) (string, error) {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := Generate(prefix, length)
		if err != nil {
			return "", err
		}
		inUse, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !inUse {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}

// Normalize prepares user-entered codes for lookup: trimmed and upper-cased.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
