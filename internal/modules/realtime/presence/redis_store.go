package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "forum:realtime:presence"

// keyGrace keeps a user's keys slightly past the last heartbeat so a session
// that is exactly TTL old is still readable.
const keyGrace = time.Second

// saveScript stores one session and trims the user's set in a single step.
// KEYS: [1]=sessions hash, [2]=last-seen zset
// ARGV: [1]=session id, [2]=record json, [3]=seen_ms, [4]=cutoff_ms,
// [5]=max sessions, [6]=key ttl_ms
var saveScript = redis.NewScript(`
local stale = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[4])
for _, id in ipairs(stale) do
  redis.call('HDEL', KEYS[1], id)
end
if #stale > 0 then
  redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[4])
end
if not redis.call('ZSCORE', KEYS[2], ARGV[1]) then
  local over = redis.call('ZCARD', KEYS[2]) - tonumber(ARGV[5]) + 1
  if over > 0 then
    local oldest = redis.call('ZRANGE', KEYS[2], 0, over - 1)
    for _, id in ipairs(oldest) do
      redis.call('HDEL', KEYS[1], id)
    end
    redis.call('ZREMRANGEBYRANK', KEYS[2], 0, over - 1)
  end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[6])
redis.call('PEXPIRE', KEYS[2], ARGV[6])
return 1
`)

// loadScript drops expired sessions and returns the remaining records.
// KEYS as saveScript. ARGV: [1]=cutoff_ms
var loadScript = redis.NewScript(`
local stale = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[1])
for _, id in ipairs(stale) do
  redis.call('HDEL', KEYS[1], id)
end
if #stale > 0 then
  redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[1])
end
return redis.call('HVALS', KEYS[1])
`)

// RedisStore shares presence between instances. Each user owns a hash of
// session records and a sorted set of last-seen times; both expire shortly
// after the user's last heartbeat.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// keys share a hash tag so the scripts stay on one cluster slot.
func (s *RedisStore) keys(userID int64) []string {
	base := fmt.Sprintf("%s:{%d}", s.prefix, userID)
	return []string{base, base + ":seen"}
}

func (s *RedisStore) Save(ctx context.Context, userID int64, r Record, cutoff time.Time, maxSessions int, ttl time.Duration) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}
	err = saveScript.Run(ctx, s.rdb, s.keys(userID),
		r.SessionID,
		string(payload),
		strconv.FormatInt(r.LastSeenAt.UnixMilli(), 10),
		strconv.FormatInt(cutoff.UnixMilli(), 10),
		maxSessions,
		(ttl + keyGrace).Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("save presence: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID int64, sessionID string) (bool, error) {
	keys := s.keys(userID)
	var removed *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, keys[0], sessionID)
		pipe.ZRem(ctx, keys[1], sessionID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete presence: %w", err)
	}
	return removed.Val() > 0, nil
}

func (s *RedisStore) Load(ctx context.Context, userID int64, cutoff time.Time) ([]Record, error) {
	values, err := loadScript.Run(ctx, s.rdb, s.keys(userID), strconv.FormatInt(cutoff.UnixMilli(), 10)).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("load presence: %w", err)
	}
	out := make([]Record, 0, len(values))
	for _, v := range values {
		var r Record
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Prune is a no-op: Save and Load trim expired sessions, and idle users'
// keys expire on their own.
func (s *RedisStore) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) Users(ctx context.Context) (int, error) {
	n := 0
	iter := s.rdb.Scan(ctx, 0, s.prefix+":*:seen", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("count presence users: %w", err)
	}
	return n, nil
}
