// Package twofactor is the keyed store for TOTP state: the transient
// pending setup, the committed record, and backup codes. Each backup code
// lives under its own Redis key so consumption is an atomic
// delete-if-present instead of a read-mutate-write over a shared blob.
package twofactor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SchemaVersion guards the stored JSON layout.
const SchemaVersion = 1

var (
	// ErrSetupNotFound is returned when no pending setup exists (never
	// started or expired back to unset).
	ErrSetupNotFound = errors.New("two-factor setup not found")
	// ErrNotConfigured is returned when no committed record exists.
	ErrNotConfigured = errors.New("two-factor record not found")
	// ErrRecordCorrupt is returned when a stored blob does not decode.
	ErrRecordCorrupt = errors.New("two-factor record corrupt")
	// ErrRedisUnavailable wraps backend faults.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Setup is the pending enrollment between "generate secret" and "confirm
// first code". It holds plaintext backup codes because nothing has been
// committed yet; it expires on its own.
type Setup struct {
	Version   int      `json:"v"`
	Secret    string   `json:"sec"`
	Codes     []string `json:"bcs"`
	CreatedAt int64    `json:"cat"`
}

// Record is the committed two-factor state for a user. Backup codes are
// not part of the blob; they live as individual keys.
type Record struct {
	Version     int    `json:"v"`
	Secret      string `json:"sec"`
	Enabled     bool   `json:"on"`
	CreatedAt   int64  `json:"cat"`
	LastUsed    int64  `json:"lus"`
	LastCounter int64  `json:"ctr"`
}

// consumeScript deletes a backup-code key if it still exists. Exactly one
// of any number of concurrent consumers observes the delete.
const consumeScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var consumeLua = redis.NewScript(consumeScript)

// Store is the Redis-backed two-factor store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a Store using prefix as the Redis key namespace.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) setupKey(userID string) string {
	return s.prefix + ":p:" + userID
}

func (s *Store) recordKey(userID string) string {
	return s.prefix + ":e:" + userID
}

func (s *Store) codeKey(userID, codeHash string) string {
	return s.prefix + ":c:" + userID + ":" + codeHash
}

func (s *Store) codeIndexKey(userID string) string {
	return s.prefix + ":ci:" + userID
}

// SaveSetup writes the pending setup, overwriting any previous one
// (last-writer-wins; the user has not committed yet).
func (s *Store) SaveSetup(ctx context.Context, userID string, setup *Setup, ttl time.Duration) error {
	if setup.Version == 0 {
		setup.Version = SchemaVersion
	}
	data, err := json.Marshal(setup)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.setupKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// GetSetup reads the pending setup.
func (s *Store) GetSetup(ctx context.Context, userID string) (*Setup, error) {
	data, err := s.redis.Get(ctx, s.setupKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSetupNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var setup Setup
	if err := json.Unmarshal(data, &setup); err != nil {
		return nil, ErrRecordCorrupt
	}
	if setup.Version != SchemaVersion || setup.Secret == "" {
		return nil, ErrRecordCorrupt
	}
	return &setup, nil
}

// DeleteSetup removes the pending setup. Absent is not an error.
func (s *Store) DeleteSetup(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.setupKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Promote commits a pending setup: writes the enabled record and the
// per-code keys, and deletes the pending setup, in one transaction batch.
func (s *Store) Promote(ctx context.Context, userID string, rec *Record, codeHashes []string, ttl time.Duration) error {
	if rec.Version == 0 {
		rec.Version = SchemaVersion
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	// Stale code keys from an earlier enablement must not survive.
	stale, err := s.redis.SMembers(ctx, s.codeIndexKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, hash := range stale {
			pipe.Del(ctx, s.codeKey(userID, hash))
		}
		pipe.Del(ctx, s.codeIndexKey(userID))
		pipe.Set(ctx, s.recordKey(userID), data, ttl)
		for _, hash := range codeHashes {
			pipe.Set(ctx, s.codeKey(userID, hash), 1, ttl)
			pipe.SAdd(ctx, s.codeIndexKey(userID), hash)
		}
		if len(codeHashes) > 0 {
			pipe.Expire(ctx, s.codeIndexKey(userID), ttl)
		}
		pipe.Del(ctx, s.setupKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// GetRecord reads the committed record.
func (s *Store) GetRecord(ctx context.Context, userID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, ErrRecordCorrupt
	}
	if rec.Version != SchemaVersion || rec.Secret == "" {
		return nil, ErrRecordCorrupt
	}
	return &rec, nil
}

// TouchRecord rewrites the record and re-arms the TTL on it, the code
// index and every remaining code key. Called after each successful
// verification so active accounts never age out.
func (s *Store) TouchRecord(ctx context.Context, userID string, rec *Record, ttl time.Duration) error {
	if rec.Version == 0 {
		rec.Version = SchemaVersion
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	hashes, err := s.redis.SMembers(ctx, s.codeIndexKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(userID), data, ttl)
		for _, hash := range hashes {
			pipe.Expire(ctx, s.codeKey(userID, hash), ttl)
		}
		if len(hashes) > 0 {
			pipe.Expire(ctx, s.codeIndexKey(userID), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ConsumeCode atomically consumes one backup code. Returns true exactly
// once per code, including under concurrent attempts.
func (s *Store) ConsumeCode(ctx context.Context, userID, codeHash string) (bool, error) {
	res, err := consumeLua.Run(ctx, s.redis,
		[]string{s.codeKey(userID, codeHash), s.codeIndexKey(userID)},
		codeHash,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// RemainingCodes reports how many backup codes are still unused.
func (s *Store) RemainingCodes(ctx context.Context, userID string) (int, error) {
	n, err := s.redis.SCard(ctx, s.codeIndexKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// ReplaceCodes swaps the whole backup-code set for a fresh one.
func (s *Store) ReplaceCodes(ctx context.Context, userID string, codeHashes []string, ttl time.Duration) error {
	stale, err := s.redis.SMembers(ctx, s.codeIndexKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, hash := range stale {
			pipe.Del(ctx, s.codeKey(userID, hash))
		}
		pipe.Del(ctx, s.codeIndexKey(userID))
		for _, hash := range codeHashes {
			pipe.Set(ctx, s.codeKey(userID, hash), 1, ttl)
			pipe.SAdd(ctx, s.codeIndexKey(userID), hash)
		}
		if len(codeHashes) > 0 {
			pipe.Expire(ctx, s.codeIndexKey(userID), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAll removes pending setup, committed record and all backup codes.
// Defensive double-delete: at most one of setup/record exists in practice.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	hashes, err := s.redis.SMembers(ctx, s.codeIndexKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, hash := range hashes {
			pipe.Del(ctx, s.codeKey(userID, hash))
		}
		pipe.Del(ctx, s.codeIndexKey(userID))
		pipe.Del(ctx, s.setupKey(userID))
		pipe.Del(ctx, s.recordKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
