package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/norachat/agentic/domain"
)

// NewClient connects to Redis from a URL and verifies the connection.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// RedisStore keeps each conversation transcript as a list of JSON-encoded
// turns. Keys are derived by hashing the caller-supplied conversation ID so
// raw identifiers never appear in the keyspace.
type RedisStore struct {
	client *redis.Client
	hasher domain.Hasher
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, hasher domain.Hasher, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		hasher: hasher,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(conversationID string) string {
	return "conversation:" + s.hasher.Hash([]byte(conversationID))
}

func (s *RedisStore) Append(ctx context.Context, conversationID string, turn domain.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	key := s.key(conversationID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, conversationID string) ([]domain.Turn, error) {
	entries, err := s.client.LRange(ctx, s.key(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	turns := make([]domain.Turn, 0, len(entries))
	for _, entry := range entries {
		var turn domain.Turn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			return nil, fmt.Errorf("decode stored turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisStore) Clear(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, s.key(conversationID)).Err(); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}
	return nil
}

func (s *RedisStore) TurnCount(ctx context.Context, conversationID string) (int, error) {
	n, err := s.client.LLen(ctx, s.key(conversationID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return int(n), nil
}
