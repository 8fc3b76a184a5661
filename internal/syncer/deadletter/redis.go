package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/indexflow-go/pkg/logger"
)

// RedisStore keeps dead letters in a capped Redis list so operators can
// inspect and requeue them after the process restarts.
type RedisStore struct {
	client  *redis.Client
	key     string
	maxSize int64
	logger  logger.Logger
}

func NewRedisStore(client *redis.Client, key string, maxSize int, log logger.Logger) *RedisStore {
	return &RedisStore{client: client, key: key, maxSize: int64(maxSize), logger: log}
}

// OnDeadLetter appends the letter, trimming the oldest entries past the cap.
func (s *RedisStore) OnDeadLetter(ctx context.Context, letter Letter) {
	data, err := json.Marshal(letter)
	if err != nil {
		s.logger.Error("Failed to encode dead letter", "error", err)
		return
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	if s.maxSize > 0 {
		pipe.LTrim(ctx, s.key, 0, s.maxSize-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to store dead letter",
			"error", err, "identity", letter.Task.Identity.String())
	}
}

// List returns up to limit letters, newest first.
func (s *RedisStore) List(ctx context.Context, limit int64) ([]Letter, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := s.client.LRange(ctx, s.key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	letters := make([]Letter, 0, len(raw))
	for _, item := range raw {
		var letter Letter
		if err := json.Unmarshal([]byte(item), &letter); err != nil {
			s.logger.Warn("Skipping malformed dead letter", "error", err)
			continue
		}
		letters = append(letters, letter)
	}
	return letters, nil
}

// Pop removes and returns the newest letter, or nil when the list is empty.
func (s *RedisStore) Pop(ctx context.Context) (*Letter, error) {
	raw, err := s.client.LPop(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop dead letter: %w", err)
	}

	var letter Letter
	if err := json.Unmarshal([]byte(raw), &letter); err != nil {
		return nil, fmt.Errorf("decode dead letter: %w", err)
	}
	return &letter, nil
}

// Size returns the number of stored letters.
func (s *RedisStore) Size(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, s.key).Result()
}
