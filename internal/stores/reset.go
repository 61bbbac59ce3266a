// Package stores holds small internal Redis stores that do not warrant a
// public package.
package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrResetChallengeNotFound is returned for unknown, expired or
	// already consumed challenges.
	ErrResetChallengeNotFound = errors.New("reset challenge not found")
	// ErrResetBackend wraps backend faults.
	ErrResetBackend = errors.New("reset challenge backend unavailable")
)

// ResetChallenge is one single-use password-reset challenge. Only the
// secret's digest is stored.
type ResetChallenge struct {
	UserID     string `json:"uid"`
	SecretHash string `json:"sh"`
	CreatedAt  int64  `json:"cat"`
}

// ResetStore keeps reset challenges in Redis under their challenge ID.
type ResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewResetStore creates a ResetStore under the given key prefix.
func NewResetStore(client redis.UniversalClient, prefix string) *ResetStore {
	if prefix == "" {
		prefix = "apr"
	}
	return &ResetStore{redis: client, prefix: prefix}
}

func (s *ResetStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

// Save writes a challenge with the given TTL.
func (s *ResetStore) Save(ctx context.Context, challengeID string, ch *ResetChallenge, ttl time.Duration) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetBackend, err)
	}
	return nil
}

// Consume reads and deletes a challenge in one atomic GETDEL, so a
// challenge is honored at most once even under concurrent confirmations.
func (s *ResetStore) Consume(ctx context.Context, challengeID string) (*ResetChallenge, error) {
	data, err := s.redis.GetDel(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetBackend, err)
	}
	var ch ResetChallenge
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, ErrResetChallengeNotFound
	}
	return &ch, nil
}

// Delete discards a challenge. Absent is not an error.
func (s *ResetStore) Delete(ctx context.Context, challengeID string) error {
	if err := s.redis.Del(ctx, s.key(challengeID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetBackend, err)
	}
	return nil
}
