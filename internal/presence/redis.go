// Package presence mirrors device connectivity changes to Redis pub/sub so
// other services can follow which devices are online.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/devlink/internal/gateway"
)

const (
	queueSize      = 1024
	publishTimeout = 2 * time.Second
)

// publisher is the slice of the Redis client the sink needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink publishes presence events as JSON on a Redis channel.
// Publishing happens on a background goroutine; when Redis is slow or
// down, events are dropped rather than stalling the gateway.
type RedisSink struct {
	pub     publisher
	closer  func() error
	channel string
	queue   chan gateway.PresenceEvent
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewRedisSink connects to url (redis://...) and starts the publisher.
func NewRedisSink(ctx context.Context, url, channel string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := newSink(client, channel)
	s.closer = client.Close
	return s, nil
}

func newSink(pub publisher, channel string) *RedisSink {
	s := &RedisSink{
		pub:     pub,
		channel: channel,
		queue:   make(chan gateway.PresenceEvent, queueSize),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

var _ gateway.PresenceSink = (*RedisSink)(nil)

// Publish queues ev without blocking.
// Publish after Close is a no-op.
func (s *RedisSink) Publish(_ context.Context, ev gateway.PresenceEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- ev:
	default:
		slog.Warn("presence queue full, dropping event", "device", ev.DeviceID, "kind", ev.Kind)
	}
}

// Close drains queued events and closes the Redis connection.
func (s *RedisSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

func (s *RedisSink) run() {
	defer s.wg.Done()
	for ev := range s.queue {
		s.send(ev)
	}
}

func (s *RedisSink) send(ev gateway.PresenceEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal presence event failed", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.pub.Publish(ctx, s.channel, data).Err(); err != nil {
		slog.Warn("presence publish failed", "channel", s.channel, "device", ev.DeviceID, "error", err)
	}
}
