// Package password wraps bcrypt hashing behind the small interface the
// core needs: one-way adaptive hash plus constant-time verification.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest accepted bcrypt cost factor.
const MinCost = 12

// maxPasswordBytes guards bcrypt's 72-byte input truncation.
const maxPasswordBytes = 72

// Config defines the hasher parameters.
type Config struct {
	Cost int
}

// Hasher is a stateless bcrypt hasher. Safe for concurrent use.
type Hasher struct {
	cost int
}

// NewHasher validates cfg and returns a ready Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Cost < MinCost {
		return nil, errors.New("bcrypt cost must be at least 12")
	}
	if cfg.Cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost too high")
	}
	return &Hasher{cost: cfg.Cost}, nil
}

// Hash derives a salted hash of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) == 0 {
		return "", errors.New("empty password")
	}
	if len(plaintext) > maxPasswordBytes {
		return "", errors.New("password exceeds 72 bytes")
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether plaintext matches hash. A mismatch is (false,
// nil); any other failure is an error the caller must treat as fatal,
// never as a mismatch.
func (h *Hasher) Verify(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

// NeedsUpgrade reports whether hash was derived with a weaker cost than
// the hasher is configured for.
func (h *Hasher) NeedsUpgrade(hash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false, err
	}
	return cost < h.cost, nil
}
