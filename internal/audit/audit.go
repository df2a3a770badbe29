// Package audit keeps a bounded trail of rejected validation attempts in
// Redis. Rejections are expected behavior for untrusted input, so entries
// are recorded quietly; the trail exists for operators, not for alerting.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyRejections     = "assetgate:audit:rejections"
	channelRejections = "assetgate:events:rejections"
)

type Entry struct {
	Validator  string    `json:"validator"`
	Input      string    `json:"input"`
	Reason     string    `json:"reason"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Time       time.Time `json:"time"`
}

type Store struct {
	client     *redis.Client
	maxEntries int64
}

func New(addr, password string, db, maxEntries int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Store{
		client:     client,
		maxEntries: int64(maxEntries),
	}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Record appends a rejection to the trail, trims it to the configured
// bound, and publishes the entry for any live subscribers.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, keyRejections, data)
	pipe.LTrim(ctx, keyRejections, 0, s.maxEntries-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}

	// Publish is best effort; the list is the source of truth.
	_ = s.client.Publish(ctx, channelRejections, data).Err()
	return nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int64) ([]Entry, error) {
	if n <= 0 {
		n = 50
	}
	raw, err := s.client.LRange(ctx, keyRejections, 0, n-1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Count returns the current length of the trail.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, keyRejections).Result()
}

// Subscribe delivers entries recorded after the call. The returned stop
// function closes the subscription and the channel; it unblocks a
// forwarding goroutine stalled on a consumer that stopped receiving, and
// is safe to call more than once.
func (s *Store) Subscribe(ctx context.Context) (<-chan Entry, func()) {
	pubsub := s.client.Subscribe(ctx, channelRejections)
	out := make(chan Entry)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var entry Entry
			if err := json.Unmarshal([]byte(msg.Payload), &entry); err != nil {
				continue
			}
			select {
			case out <- entry:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, stop
}
