// Package redisstore is an ArtifactStore backed by Redis, for artifact caches
// shared between machines.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Avinash-1994/Nexxo-sub001/store"
)

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// Prefix namespaces every key. Defaults to "nexxo:".
	Prefix string

	// TTL expires entries; zero keeps them forever.
	TTL time.Duration

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// Store implements store.ArtifactStore.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

var _ store.ArtifactStore = (*Store)(nil)

// New connects to Redis and verifies the connection with PING.
func New(opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Prefix == "" {
		opts.Prefix = "nexxo:"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Store{client: client, prefix: opts.Prefix, ttl: opts.TTL}, nil
}

// Get implements store.ArtifactStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	s.hits.Add(1)
	return value, true, nil
}

// Set implements store.ArtifactStore.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// BatchSet implements store.ArtifactStore using a MULTI/EXEC pipeline.
func (s *Store) BatchSet(ctx context.Context, entries []store.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, s.prefix+e.Key, e.Value, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %d entries: %w", len(entries), err)
	}
	return nil
}

// Stats implements store.ArtifactStore. Entries and Bytes are counted with a
// SCAN over the prefix.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	st := store.Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		st.Entries++
		n, err := s.client.StrLen(ctx, iter.Val()).Result()
		if err != nil {
			return store.Stats{}, fmt.Errorf("sizing %s: %w", iter.Val(), err)
		}
		st.Bytes += n
	}
	if err := iter.Err(); err != nil {
		return store.Stats{}, fmt.Errorf("scanning keys: %w", err)
	}
	return st, nil
}

// Close implements store.ArtifactStore.
func (s *Store) Close() error {
	return s.client.Close()
}
