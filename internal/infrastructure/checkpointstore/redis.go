package checkpointstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"PaperDigest/internal/checkpoint"
	"PaperDigest/internal/ports"
)

// RedisStore keeps per-day checkpoints in Redis under
// checkpoint:automation:<date> with the retention window as TTL.
type RedisStore struct {
	client redis.Cmdable
	logger *slog.Logger
}

var _ ports.CheckpointStore = (*RedisStore)(nil)

// New wires a Redis client (standalone or otherwise).
func New(client redis.Cmdable, log *slog.Logger) *RedisStore {
	return &RedisStore{client: client, logger: log}
}

// Load fetches the day's checkpoint. Absence and a record encoded under a
// different schema version both report (nil, nil): an older-shaped record
// fails closed rather than producing partially-defined state.
func (s *RedisStore) Load(ctx context.Context, date string) (*checkpoint.Checkpoint, error) {
	raw, err := s.client.Get(ctx, checkpoint.Key(date)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", date, err)
	}

	cp, err := checkpoint.Decode([]byte(raw))
	if err != nil {
		s.warn("stored checkpoint is unreadable, treating as absent", "date", date, "error", err)
		return nil, nil
	}
	if cp == nil {
		s.warn("stored checkpoint has unknown schema version, treating as absent", "date", date)
	}
	return cp, nil
}

// Save writes the checkpoint with the retention TTL.
func (s *RedisStore) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	raw, err := cp.Encode()
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", cp.Date, err)
	}

	if err := s.client.Set(ctx, checkpoint.Key(cp.Date), raw, checkpoint.Retention).Err(); err != nil {
		return fmt.Errorf("set checkpoint %s: %w", cp.Date, err)
	}
	return nil
}

func (s *RedisStore) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
