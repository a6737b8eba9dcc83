package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/animo-app/animo/backend/internal/model/chat"
)

const defaultRedisPrefix = "animo:chat:"

// appendScript appends only when the session hash exists, so a line can
// never resurrect an expired or unknown chat.
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

// RedisStore keeps sessions in Redis so they survive a process restart and
// expire on their own. The transcript is a list, metadata a hash.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// RedisConfig holds Redis connection settings for the session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL is the idle expiry of a session (0 = never expire).
	TTL time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisStore) metaKey(chatID string) string {
	return s.prefix + "meta:" + chatID
}

func (s *RedisStore) linesKey(chatID string) string {
	return s.prefix + "lines:" + chatID
}

// Get reads metadata and transcript in one transaction.
func (s *RedisStore) Get(ctx context.Context, chatID string) (chat.Session, error) {
	var (
		metaCmd  *redis.MapStringStringCmd
		linesCmd *redis.StringSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmd = pipe.HGetAll(ctx, s.metaKey(chatID))
		linesCmd = pipe.LRange(ctx, s.linesKey(chatID), 0, -1)
		return nil
	})
	if err != nil {
		return chat.Session{}, fmt.Errorf("get session: %w", err)
	}

	meta := metaCmd.Val()
	lines := linesCmd.Val()
	if len(meta) == 0 || len(lines) == 0 {
		return chat.Session{}, ErrSessionNotFound
	}

	return chat.Session{
		ChatID:        chatID,
		CharacterName: meta["character"],
		Transcript:    lines,
		CreatedAt:     parseStamp(meta["created_at"]),
		UpdatedAt:     parseStamp(meta["updated_at"]),
	}, nil
}

// CreateOrReset atomically replaces the session with a fresh one.
func (s *RedisStore) CreateOrReset(ctx context.Context, chatID, characterName, primingLine string) (chat.Session, error) {
	if chatID == "" {
		return chat.Session{}, errEmptyChatID
	}
	if primingLine == "" {
		return chat.Session{}, errEmptyPrimingLine
	}

	now := s.now()
	stamp := now.Format(time.RFC3339Nano)
	metaKey, linesKey := s.metaKey(chatID), s.linesKey(chatID)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, metaKey, linesKey)
		pipe.RPush(ctx, linesKey, primingLine)
		pipe.HSet(ctx, metaKey, "character", characterName, "created_at", stamp, "updated_at", stamp)
		if s.ttl > 0 {
			pipe.PExpire(ctx, metaKey, s.ttl)
			pipe.PExpire(ctx, linesKey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return chat.Session{}, fmt.Errorf("reset session: %w", err)
	}

	return chat.Session{
		ChatID:        chatID,
		CharacterName: characterName,
		Transcript:    []string{primingLine},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Append pushes line and refreshes the idle expiry.
func (s *RedisStore) Append(ctx context.Context, chatID, line string) error {
	keys := []string{s.metaKey(chatID), s.linesKey(chatID)}
	ok, err := appendScript.Run(ctx, s.client, keys, line, s.now().Format(time.RFC3339Nano), s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("append line: %w", err)
	}
	if ok == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func parseStamp(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
