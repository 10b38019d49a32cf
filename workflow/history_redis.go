package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisHistoryConfig configures the Redis-backed history store.
type RedisHistoryConfig struct {
	// Addr is the Redis server address.
	Addr string `yaml:"addr" json:"addr"`
	// Password authenticates the connection.
	Password string `yaml:"password" json:"password"`
	// DB selects the Redis database.
	DB int `yaml:"db" json:"db"`
	// TTL expires execution records. Zero keeps them indefinitely.
	TTL time.Duration `yaml:"ttl" json:"ttl"`
	// KeyPrefix namespaces the store's keys.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
	// MaxPerWorkflow caps the per-workflow index length. Zero means unbounded.
	MaxPerWorkflow int64 `yaml:"max_per_workflow" json:"max_per_workflow"`
}

// DefaultRedisHistoryConfig returns the default Redis history configuration.
func DefaultRedisHistoryConfig() RedisHistoryConfig {
	return RedisHistoryConfig{
		Addr:           "localhost:6379",
		TTL:            24 * time.Hour,
		KeyPrefix:      "hubflow",
		MaxPerWorkflow: 1000,
	}
}

// RedisHistoryStore persists execution records in Redis: one JSON value per
// execution plus a per-workflow list of execution IDs, newest first.
type RedisHistoryStore struct {
	client *redis.Client
	config RedisHistoryConfig
	logger *zap.Logger
}

// NewRedisHistoryStore connects to Redis and returns a history store.
func NewRedisHistoryStore(config RedisHistoryConfig, logger *zap.Logger) (*RedisHistoryStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis history store initialized",
		zap.String("addr", config.Addr),
		zap.Duration("ttl", config.TTL),
	)

	return &RedisHistoryStore{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "redis_history")),
	}, nil
}

func (s *RedisHistoryStore) recordKey(executionID string) string {
	return fmt.Sprintf("%s:exec:%s", s.config.KeyPrefix, executionID)
}

func (s *RedisHistoryStore) indexKey(workflow string) string {
	return fmt.Sprintf("%s:wf:%s", s.config.KeyPrefix, workflow)
}

// Save implements HistoryStore.
func (s *RedisHistoryStore) Save(ctx context.Context, rec *ExecutionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(rec.ExecutionID), data, s.config.TTL)
	pipe.LPush(ctx, s.indexKey(rec.Workflow), rec.ExecutionID)
	if s.config.MaxPerWorkflow > 0 {
		pipe.LTrim(ctx, s.indexKey(rec.Workflow), 0, s.config.MaxPerWorkflow-1)
	}
	if s.config.TTL > 0 {
		pipe.Expire(ctx, s.indexKey(rec.Workflow), s.config.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("history save failed",
			zap.String("execution_id", rec.ExecutionID),
			zap.Error(err),
		)
		return fmt.Errorf("history save failed: %w", err)
	}
	return nil
}

// Get implements HistoryStore.
func (s *RedisHistoryStore) Get(ctx context.Context, executionID string) (*ExecutionRecord, bool, error) {
	data, err := s.client.Get(ctx, s.recordKey(executionID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("history get failed: %w", err)
	}

	var rec ExecutionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("unmarshal execution record: %w", err)
	}
	return &rec, true, nil
}

// ListByWorkflow implements HistoryStore. Records whose value has expired
// ahead of the index entry are silently dropped from the result.
func (s *RedisHistoryStore) ListByWorkflow(ctx context.Context, workflow string) ([]*ExecutionRecord, error) {
	ids, err := s.client.LRange(ctx, s.indexKey(workflow), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history list failed: %w", err)
	}

	out := make([]*ExecutionRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Close closes the underlying Redis client.
func (s *RedisHistoryStore) Close() error {
	return s.client.Close()
}
