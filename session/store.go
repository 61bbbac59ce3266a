// Package session is the keyed refresh-record store. Records live in
// Redis under a composite user+token key with a per-user index set, so
// revoke-all is a bounded read plus targeted deletes rather than a
// keyspace pattern scan.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps backend faults. Callers fail closed on it.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when no record backs the given user+token pair.
// This is normal control flow, not a fault.
var ErrNotFound = errors.New("session record not found")

// touchScript atomically validates and renews one record: update lastUsed,
// re-arm the full TTL, and repair the index entry. Active use extends
// session life; a token nobody refreshes expires naturally.
const touchScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  redis.call("SREM", KEYS[2], ARGV[1])
  return false
end
local rec = cjson.decode(data)
rec["lus"] = tonumber(ARGV[2])
local updated = cjson.encode(rec)
redis.call("SET", KEYS[1], updated, "PX", tonumber(ARGV[3]))
redis.call("SADD", KEYS[2], ARGV[1])
return updated
`

var touchLua = redis.NewScript(touchScript)

// Store is a Redis-backed refresh-record store. The client is injected;
// its lifecycle (connect/close) belongs to the process entry point.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a Store using prefix as the Redis key namespace.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) recordKey(userID, tokenID string) string {
	return s.prefix + ":r:" + userID + ":" + tokenID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save persists a record and registers it in the user's index.
func (s *Store) Save(ctx context.Context, tokenID string, rec *Record, ttl time.Duration) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.UserID, tokenID), data, ttl)
		pipe.SAdd(ctx, s.userKey(rec.UserID), tokenID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get reads one record without mutating it.
func (s *Store) Get(ctx context.Context, userID, tokenID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(userID, tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

// Touch validates that a record exists, stamps lastUsed and re-arms the
// full TTL in one atomic script round trip. Returns ErrNotFound when the
// record is revoked or expired.
func (s *Store) Touch(ctx context.Context, userID, tokenID string, ttl time.Duration, now time.Time) (*Record, error) {
	res, err := touchLua.Run(ctx, s.redis,
		[]string{s.recordKey(userID, tokenID), s.userKey(userID)},
		tokenID, now.Unix(), ttl.Milliseconds(),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	blob, ok := res.(string)
	if !ok {
		return nil, ErrRecordCorrupt
	}
	return Decode([]byte(blob))
}

// Delete removes one record and its index entry. Deleting an absent key is
// not an error.
func (s *Store) Delete(ctx context.Context, userID, tokenID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(userID, tokenID))
		pipe.SRem(ctx, s.userKey(userID), tokenID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every record for the user and clears the index.
//
// The SMembers read and the deletes are separate commands, so a record
// created in between survives this call. That record is still a live,
// uncompromised session bound to a fresh login; anything stale simply
// expires via TTL. The index set is deleted last so a rerun converges.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)
	tokenIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(tokenIDs)+1)
	for _, tokenID := range tokenIDs {
		keys = append(keys, s.recordKey(userID, tokenID))
	}
	keys = append(keys, userKey)

	if _, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return len(tokenIDs), nil
}

// Entry is one live session returned by List.
type Entry struct {
	TokenID   string
	Record    *Record
	ExpiresIn time.Duration
}

// List enumerates the user's live records. Read-only apart from pruning
// dangling index entries whose records already expired.
func (s *Store) List(ctx context.Context, userID string) ([]Entry, error) {
	userKey := s.userKey(userID)
	tokenIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(tokenIDs) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	gets := make([]*redis.StringCmd, len(tokenIDs))
	ttls := make([]*redis.DurationCmd, len(tokenIDs))
	for i, tokenID := range tokenIDs {
		key := s.recordKey(userID, tokenID)
		gets[i] = pipe.Get(ctx, key)
		ttls[i] = pipe.PTTL(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	entries := make([]Entry, 0, len(tokenIDs))
	var dangling []interface{}
	for i, tokenID := range tokenIDs {
		data, err := gets[i].Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				dangling = append(dangling, tokenID)
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		rec, err := Decode(data)
		if err != nil {
			dangling = append(dangling, tokenID)
			continue
		}
		ttl, _ := ttls[i].Result()
		if ttl < 0 {
			ttl = 0
		}
		entries = append(entries, Entry{TokenID: tokenID, Record: rec, ExpiresIn: ttl})
	}
	if len(dangling) > 0 {
		_ = s.redis.SRem(ctx, userKey, dangling...).Err()
	}
	return entries, nil
}

// SweepUser prunes index entries whose records have expired and drops the
// index set once empty.
func (s *Store) SweepUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)
	tokenIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(tokenIDs) == 0 {
		_ = s.redis.Del(ctx, userKey).Err()
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	exists := make([]*redis.IntCmd, len(tokenIDs))
	for i, tokenID := range tokenIDs {
		exists[i] = pipe.Exists(ctx, s.recordKey(userID, tokenID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var dangling []interface{}
	for i, tokenID := range tokenIDs {
		if n, _ := exists[i].Result(); n == 0 {
			dangling = append(dangling, tokenID)
		}
	}
	if len(dangling) > 0 {
		if err := s.redis.SRem(ctx, userKey, dangling...).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if len(dangling) == len(tokenIDs) {
		_ = s.redis.Del(ctx, userKey).Err()
	}
	return len(dangling), nil
}

// SweepExpired walks every user index with SCAN and prunes dangling
// entries. Pattern scans are confined to this housekeeping path; request
// serving never depends on it (Redis native TTL is the primary expiry
// mechanism).
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	pattern := s.prefix + ":u:*"
	trim := s.prefix + ":u:"
	pruned := 0

	iter := s.redis.Scan(ctx, 0, pattern, 64).Iterator()
	for iter.Next(ctx) {
		userID := strings.TrimPrefix(iter.Val(), trim)
		n, err := s.SweepUser(ctx, userID)
		if err != nil {
			return pruned, err
		}
		pruned += n
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return pruned, nil
}
