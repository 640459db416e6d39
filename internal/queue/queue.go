// Package queue stores document batches that failed to index after all
// retries, so an operator can replay them once the underlying problem
// is fixed. Backed by a Redis list; the CLI works without it when no
// Redis address is configured.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/searchkit/searchkit/pkg/config"
	"github.com/searchkit/searchkit/pkg/search"
)

const failedBatchKey = "searchkit:failed_batches"

// FailedBatch is one rejected upload batch with enough context to
// replay it.
type FailedBatch struct {
	ID        string             `json:"id"`
	Index     string             `json:"index"`
	Action    search.IndexAction `json:"action"`
	Documents []search.Document  `json:"documents"`
	Error     string             `json:"error"`
	Kind      string             `json:"kind"`
	Attempts  int                `json:"attempts"`
	FailedAt  time.Time          `json:"failed_at"`
}

// Store persists failed batches in Redis.
type Store struct {
	client *redis.Client
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client. Used by tests.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Push appends a failed batch to the store.
func (s *Store) Push(ctx context.Context, batch *FailedBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.FailedAt.IsZero() {
		batch.FailedAt = time.Now().UTC()
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}
	if err := s.client.LPush(ctx, failedBatchKey, data).Err(); err != nil {
		return fmt.Errorf("failed to store batch: %w", err)
	}
	return nil
}

// Pop removes and returns the oldest failed batch, or nil when the
// store is empty.
func (s *Store) Pop(ctx context.Context) (*FailedBatch, error) {
	data, err := s.client.RPop(ctx, failedBatchKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop batch: %w", err)
	}

	var batch FailedBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	return &batch, nil
}

// List returns up to limit batches, newest first, without removing them.
func (s *Store) List(ctx context.Context, limit int64) ([]*FailedBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.client.LRange(ctx, failedBatchKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	batches := make([]*FailedBatch, 0, len(entries))
	for _, entry := range entries {
		var batch FailedBatch
		if err := json.Unmarshal([]byte(entry), &batch); err != nil {
			return nil, fmt.Errorf("failed to decode batch: %w", err)
		}
		batches = append(batches, &batch)
	}
	return batches, nil
}

// Len returns the number of stored batches.
func (s *Store) Len(ctx context.Context) (int64, error) {
	n, err := s.client.LLen(ctx, failedBatchKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count batches: %w", err)
	}
	return n, nil
}

// Replayer resubmits a failed batch.
type Replayer interface {
	IndexDocuments(ctx context.Context, index string, action search.IndexAction, docs []search.Document) search.UploadOutcome
}

// Replay pops batches and resubmits them through the resilient client.
// A batch that fails again goes back to the store with an incremented
// attempt count. Returns how many batches were replayed successfully.
func (s *Store) Replay(ctx context.Context, replayer Replayer, max int) (int, error) {
	replayed := 0
	for i := 0; max <= 0 || i < max; i++ {
		batch, err := s.Pop(ctx)
		if err != nil {
			return replayed, err
		}
		if batch == nil {
			return replayed, nil
		}

		outcome := replayer.IndexDocuments(ctx, batch.Index, batch.Action, batch.Documents)
		if outcome.Failure != nil {
			batch.Attempts++
			batch.Error = outcome.Failure.Message
			batch.Kind = string(outcome.Failure.Classification.Kind)
			if pushErr := s.Push(ctx, batch); pushErr != nil {
				return replayed, pushErr
			}
			return replayed, fmt.Errorf("replay of batch %s failed: %s", batch.ID, batch.Error)
		}
		replayed++
	}
	return replayed, nil
}
