package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "stego"

// claimScript creates the metadata hash with its manifest and creation
// time in one step, or returns 0 when the message already exists.
var claimScript = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], "manifest", ARGV[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "created", ARGV[2])
return 1
`)

// RedisStorage keeps published carriers in Redis so several relay
// instances can serve the same messages.
//
//	<prefix>:msg:<id>     hash  manifest, total, created, state, fetches
//	<prefix>:chunks:<id>  hash  sequence -> encoded chunk
//	<prefix>:messages     set   message ids
type RedisStorage struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStorage wraps an existing client. An empty prefix uses "stego".
func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &RedisStorage{redis: client, prefix: prefix}
}

func (rs *RedisStorage) metaKey(id string) string   { return rs.prefix + ":msg:" + id }
func (rs *RedisStorage) chunksKey(id string) string { return rs.prefix + ":chunks:" + id }
func (rs *RedisStorage) indexKey() string           { return rs.prefix + ":messages" }

// StoreMessage adds a new message. The manifest field doubles as the
// existence marker, so two concurrent uploads of one ID cannot both win.
// It is written together with the creation time.
func (rs *RedisStorage) StoreMessage(ctx context.Context, msg *Message) error {
	meta := rs.metaKey(msg.ID)

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	claimed, err := claimScript.Run(ctx, rs.redis, []string{meta}, msg.Manifest, createdAt.UnixNano()).Int()
	if err != nil {
		return fmt.Errorf("redis store %s: %w", msg.ID, err)
	}
	if claimed == 0 {
		return fmt.Errorf("%w: %s", ErrExists, msg.ID)
	}

	chunks := make(map[string]interface{}, len(msg.Chunks))
	for seq, value := range msg.Chunks {
		chunks[strconv.Itoa(seq)] = value
	}

	_, err = rs.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, meta,
			"total", msg.TotalChunks,
			"state", int(StateNew),
			"fetches", 0,
		)
		if len(chunks) > 0 {
			pipe.HSet(ctx, rs.chunksKey(msg.ID), chunks)
		}
		pipe.SAdd(ctx, rs.indexKey(), msg.ID)
		return nil
	})
	if err != nil {
		rs.redis.Del(ctx, meta, rs.chunksKey(msg.ID))
		return fmt.Errorf("redis store %s: %w", msg.ID, err)
	}
	return nil
}

// GetManifest returns the manifest TXT value of a message
func (rs *RedisStorage) GetManifest(ctx context.Context, id string) (string, error) {
	value, err := rs.redis.HGet(ctx, rs.metaKey(id), "manifest").Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("redis manifest %s: %w", id, err)
	}
	return value, nil
}

// GetChunk retrieves a specific chunk
func (rs *RedisStorage) GetChunk(ctx context.Context, id string, seq int) (string, error) {
	value, err := rs.redis.HGet(ctx, rs.chunksKey(id), strconv.Itoa(seq)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: chunk %d of %s", ErrNotFound, seq, id)
	}
	if err != nil {
		return "", fmt.Errorf("redis chunk %d of %s: %w", seq, id, err)
	}
	return value, nil
}

// MarkAsDelivered records a manifest lookup
func (rs *RedisStorage) MarkAsDelivered(ctx context.Context, id string) error {
	meta := rs.metaKey(id)

	n, err := rs.redis.Exists(ctx, meta).Result()
	if err != nil {
		return fmt.Errorf("redis deliver %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: message %s", ErrNotFound, id)
	}

	_, err = rs.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, meta, "state", int(StateDelivered))
		pipe.HIncrBy(ctx, meta, "fetches", 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis deliver %s: %w", id, err)
	}
	return nil
}

// ListMessages returns all messages without chunk bodies. IDs whose hash
// has disappeared are skipped.
func (rs *RedisStorage) ListMessages(ctx context.Context) ([]*Message, error) {
	ids, err := rs.redis.SMembers(ctx, rs.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}

	messages := make([]*Message, 0, len(ids))
	for _, id := range ids {
		fields, err := rs.redis.HGetAll(ctx, rs.metaKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis list %s: %w", id, err)
		}
		if len(fields) == 0 {
			continue
		}
		messages = append(messages, messageFromHash(id, fields))
	}
	sortByAge(messages)
	return messages, nil
}

func messageFromHash(id string, fields map[string]string) *Message {
	total, _ := strconv.Atoi(fields["total"])
	created, _ := strconv.ParseInt(fields["created"], 10, 64)
	state, _ := strconv.Atoi(fields["state"])
	fetches, _ := strconv.Atoi(fields["fetches"])

	var createdAt time.Time
	if created > 0 {
		createdAt = time.Unix(0, created)
	}

	return &Message{
		ID:          id,
		Manifest:    fields["manifest"],
		TotalChunks: total,
		CreatedAt:   createdAt,
		State:       MessageState(state),
		Fetches:     fetches,
	}
}

// CleanExpired removes messages older than ttl. Hashes without a
// creation time are left alone.
func (rs *RedisStorage) CleanExpired(ctx context.Context, ttl time.Duration) (int, error) {
	messages, err := rs.ListMessages(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, msg := range messages {
		if msg.CreatedAt.IsZero() || !msg.CreatedAt.Before(cutoff) {
			continue
		}
		_, err := rs.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rs.metaKey(msg.ID), rs.chunksKey(msg.ID))
			pipe.SRem(ctx, rs.indexKey(), msg.ID)
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("redis clean %s: %w", msg.ID, err)
		}
		removed++
	}
	return removed, nil
}

// GetStats returns storage statistics
func (rs *RedisStorage) GetStats(ctx context.Context) (StorageStats, error) {
	messages, err := rs.ListMessages(ctx)
	if err != nil {
		return StorageStats{}, err
	}
	return statsOf(messages), nil
}
