package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/devlink/pkg/protocol"
)

// Presence event kinds published to a PresenceSink.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// PresenceEvent describes one connectivity change.
type PresenceEvent struct {
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	At         time.Time `json:"at"`
}

// PresenceSink receives presence changes for observers outside the process.
// Publish must not block the caller for long.
type PresenceSink interface {
	Publish(ctx context.Context, ev PresenceEvent)
}

type noopSink struct{}

func (noopSink) Publish(context.Context, PresenceEvent) {}

func presenceFrame(typ string, sess *Session) protocol.Frame {
	return protocol.NewFrame(typ, map[string]any{
		"deviceId":   sess.DeviceID,
		"deviceName": sess.DeviceName,
		"deviceType": sess.DeviceType,
		"platform":   sess.Platform,
	})
}

func (s *Server) publishPresence(kind string, sess *Session) {
	s.sink.Publish(s.ctx, PresenceEvent{
		Kind:       kind,
		UserID:     sess.UserID,
		DeviceID:   sess.DeviceID,
		DeviceName: sess.DeviceName,
		At:         time.Now().UTC(),
	})
}

// disconnect is the single exit path for a connection, whether the peer
// closed, the transport failed, or the heartbeat evicted it. It runs at most
// once per client and is a no-op for clients that never authenticated or
// whose session was already superseded.
func (s *Server) disconnect(c *Client) {
	c.disconnectOnce.Do(func() {
		c.stopAuthTimer()

		sess := c.Session()
		if sess == nil {
			return
		}
		if !s.registry.Remove(sess.DeviceID, sess) {
			slog.Debug("superseded session closed", "device", sess.DeviceID, "client", c.id)
			return
		}
		s.limiter.Forget(sess.DeviceID)

		// Record the disconnect even while the server is shutting down.
		ctx := context.WithoutCancel(s.ctx)
		if err := s.store.SetOnline(ctx, sess.DeviceID, false); err != nil {
			slog.Warn("mark device offline failed", "device", sess.DeviceID, "error", err)
		}

		s.broadcast(sess.UserID, sess.DeviceID, presenceFrame(protocol.TypeDeviceOffline, sess))
		s.publishPresence(PresenceOffline, sess)

		slog.Info("device disconnected", "device", sess.DeviceID, "user", sess.UserID,
			"duration", time.Since(sess.ConnectedAt).Truncate(time.Second))
	})
}

// Monitor periodically probes every live session and evicts dead ones.
type Monitor struct {
	server   *Server
	interval time.Duration
	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
}

func NewMonitor(server *Server, interval time.Duration) *Monitor {
	return &Monitor{server: server, interval: interval}
}

// Start begins the probe loop in a background goroutine.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	go m.loop(ctx)
	slog.Info("heartbeat monitor started", "interval", m.interval)
}

// Stop halts the probe loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.cancel()
	m.running = false
	slog.Info("heartbeat monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep pings open connections and evicts closed ones. It returns the
// number of evicted sessions.
func (m *Monitor) sweep() int {
	evicted := 0
	for _, sess := range m.server.registry.Snapshot() {
		c := sess.Client
		if !c.Closed() {
			err := c.Probe()
			if err == nil {
				continue
			}
			slog.Debug("heartbeat probe failed", "device", sess.DeviceID, "error", err)
			c.terminate()
		}
		m.server.disconnect(c)
		evicted++
	}
	if evicted > 0 {
		slog.Info("heartbeat evicted stale sessions", "count", evicted)
	}
	return evicted
}
