package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/devlink/internal/config"
	"github.com/nextlevelbuilder/devlink/internal/store"
	"github.com/nextlevelbuilder/devlink/pkg/protocol"
)

// handleAuth binds the connection to a verified user and device.
func (s *Server) handleAuth(ctx context.Context, c *Client, m protocol.Auth) {
	ctx, span := s.tracer.Start(ctx, "gateway.handshake")
	defer span.End()

	// 1. Verify before touching any state.
	id, err := s.verifier.Verify(ctx, m.Token)
	if err != nil {
		slog.Warn("security.auth_failed", "client", c.id, "error", err)
		c.Send(protocol.NewError(protocol.ErrAuthFailed, protocol.MsgAuthFailed))
		c.CloseWith(protocol.CloseAuthFailed, protocol.MsgAuthFailed)
		return
	}

	// 2. Resolve the device id.
	deviceID := strings.TrimSpace(m.DeviceID)
	if deviceID == "" {
		deviceID = store.GenNewID()
	}
	if err := store.ValidateID("device", deviceID); err != nil {
		c.Send(protocol.NewError(protocol.ErrInvalidRequest, err.Error()))
		return
	}
	span.SetAttributes(attribute.String("device.id", deviceID), attribute.String("user.id", id.UserID))

	// 3. Upsert the durable record.
	dev, err := s.store.UpsertDevice(ctx, deviceID, store.DeviceFields{
		UserID:   id.UserID,
		Name:     strings.TrimSpace(m.DeviceName),
		Type:     reportedClass(m.DeviceType),
		Platform: reportedClass(m.Platform),
	})
	if errors.Is(err, store.ErrDeviceOwnership) {
		slog.Warn("security.device_ownership", "client", c.id, "device", deviceID, "user", id.UserID)
		c.Send(protocol.NewError(protocol.ErrNotAuthorized, protocol.MsgNotAuthorized))
		c.CloseWith(protocol.CloseAuthFailed, protocol.MsgNotAuthorized)
		return
	}
	if err != nil {
		replyError(c, "handshake", err)
		return
	}

	// The peer may have gone away while the store was busy.
	if c.Closed() {
		slog.Debug("client closed during handshake", "client", c.id, "device", dev.ID)
		return
	}

	// 4. Register, closing any connection this one supersedes.
	sess := &Session{
		Client:      c,
		UserID:      id.UserID,
		Username:    id.Username,
		DeviceID:    dev.ID,
		DeviceName:  dev.Name,
		DeviceType:  dev.Type,
		Platform:    dev.Platform,
		ConnectedAt: time.Now(),
	}
	c.setSession(sess)
	if prev := s.registry.Register(sess); prev != nil && prev.Client != c {
		slog.Info("session replaced", "device", dev.ID, "old_client", prev.Client.id, "new_client", c.id)
		prev.Client.Send(protocol.NewError(protocol.ErrSessionReplaced, "session replaced by a newer connection"))
		prev.Client.CloseWith(protocol.CloseSessionReplaced, "session replaced")
	}

	// 5. Tell the user's other devices.
	s.broadcast(sess.UserID, sess.DeviceID, presenceFrame(protocol.TypeDeviceOnline, sess))
	s.publishPresence(PresenceOnline, sess)

	// 6. Confirm to the caller.
	c.Send(protocol.NewFrame(protocol.TypeAuthSuccess, map[string]any{
		"deviceId":   dev.ID,
		"deviceName": dev.Name,
		"user": map[string]any{
			"id":       id.UserID,
			"username": id.Username,
		},
		"protocol": protocol.ProtocolVersion,
	}))

	slog.Info("device connected", "device", dev.ID, "user", id.UserID, "client", c.id, "sessions", s.registry.Count())
}

// reportedClass normalizes a device type or platform the device sent.
// Omitted values stay empty so the stored value is kept.
func reportedClass(v string) string {
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return config.NormalizeDeviceClass(v)
}
