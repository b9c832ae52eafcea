package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"phishguard/pkg/models"
)

// RedisConfig configures Redis access for snapshot persistence.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore persists snapshots in Redis: the full snapshot as a JSON
// blob plus a small stats hash other consumers can read cheaply.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed snapshot store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "phishguard:state"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis state store: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// SaveSnapshot writes the snapshot blob and the stats hash in one
// pipeline round trip.
func (s *RedisStore) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.snapshotKey(), data, 0)
	pipe.HSet(ctx, s.statsKey(),
		"protection_enabled", strconv.FormatBool(snap.ProtectionEnabled),
		"total_requests", strconv.FormatInt(snap.Statistics.TotalRequests, 10),
		"blocked_requests", strconv.FormatInt(snap.Statistics.BlockedRequests, 10),
		"phishing_sites_blocked", strconv.FormatInt(snap.Statistics.PhishingSitesBlocked, 10),
		"blacklisted_domains", strconv.Itoa(snap.Statistics.BlacklistedDomains),
		"cc_servers_detected", strconv.Itoa(snap.Statistics.CCServersDetected),
		"saved_at", strconv.FormatInt(snap.SavedAt.Unix(), 10),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write snapshot keys: %w", err)
	}
	return nil
}

// LoadSnapshot reads the snapshot blob; a missing key is a clean first
// run, not an error.
func (s *RedisStore) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	data, err := s.client.Get(ctx, s.snapshotKey()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot key: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) snapshotKey() string {
	return s.prefix + ":snapshot"
}

func (s *RedisStore) statsKey() string {
	return s.prefix + ":stats"
}
