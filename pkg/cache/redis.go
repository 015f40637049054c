package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"ttl"`

	// KeyPrefix namespaces several caches on one Redis instance.
	KeyPrefix string `yaml:"prefix"`
}

// RedisStore is a per-key store on Redis. Keys are the prefix followed by the
// canonical key bytes; values are codec output. A zero TTL keeps entries forever.
type RedisStore[K comparable, V any] struct {
	redisClient *redis.Client
	codec       Codec
	prefix      string
	ttl         time.Duration
	logger      zerolog.Logger
}

// NewRedisStore creates and connects a new generic RedisStore.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisStore[K comparable, V any](
	ctx context.Context,
	cfg *RedisConfig,
	codec Codec,
	logger zerolog.Logger,
) (*RedisStore[K, V], error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if codec == nil {
		codec = JSONCodec{}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisStore[K, V]{
		redisClient: rdb,
		codec:       codec,
		prefix:      cfg.KeyPrefix,
		ttl:         cfg.CacheTTL,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
	}, nil
}

func (s *RedisStore[K, V]) redisKey(key K) (string, error) {
	keyBytes, err := KeyBytes(key)
	if err != nil {
		return "", err
	}
	return s.prefix + string(keyBytes), nil
}

// Lookup retrieves a value from Redis. redis.Nil is a normal miss.
func (s *RedisStore[K, V]) Lookup(ctx context.Context, key K) (V, bool, error) {
	var zero V
	stringKey, err := s.redisKey(key)
	if err != nil {
		return zero, false, err
	}

	cachedData, err := s.redisClient.Get(ctx, stringKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Unexpected Redis error during lookup.")
		return zero, false, fmt.Errorf("redis get for %s: %w", stringKey, err)
	}

	var value V
	if err := s.codec.Unmarshal(cachedData, &value); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal cached data.")
		return zero, false, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Redis cache hit.")
	return value, true, nil
}

// Insert sets a value in Redis with the configured TTL.
func (s *RedisStore[K, V]) Insert(ctx context.Context, key K, value V) error {
	stringKey, err := s.redisKey(key)
	if err != nil {
		return err
	}
	data, err := s.codec.Marshal(value)
	if err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to marshal data for caching.")
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := s.redisClient.Set(ctx, stringKey, data, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to set data in Redis cache.")
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Successfully stored data in Redis cache.")
	return nil
}

// Flush is a no-op; Redis persistence is the server's concern.
func (s *RedisStore[K, V]) Flush(_ context.Context, _ bool) error {
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore[K, V]) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}
