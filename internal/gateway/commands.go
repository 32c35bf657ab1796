package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/devlink/internal/store"
	"github.com/nextlevelbuilder/devlink/pkg/protocol"
)

func (s *Server) handleCommand(ctx context.Context, sess *Session, m protocol.Command) {
	if !s.limiter.Allow(sess.DeviceID) {
		sess.Client.Send(protocol.NewError(protocol.ErrRateLimited, "too many commands, slow down"))
		return
	}
	if err := s.Route(ctx, sess, m.Target, m.Command, m.Payload); err != nil {
		replyError(sess.Client, "command", err)
	}
}

// Route forwards a command from sender to targetDeviceID. Checks run in a
// fixed order and each failure is a distinct Rejection:
// missing fields, target offline, different user, not paired.
// The payload is relayed verbatim; delivery is fire-and-forget.
func (s *Server) Route(ctx context.Context, sender *Session, targetDeviceID, command string, payload json.RawMessage) error {
	ctx, span := s.tracer.Start(ctx, "gateway.route")
	defer span.End()
	span.SetAttributes(
		attribute.String("device.from", sender.DeviceID),
		attribute.String("device.to", targetDeviceID),
		attribute.String("command", command),
	)

	err := s.authorizeRoute(ctx, sender, targetDeviceID, command)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	target := s.liveSession(targetDeviceID)
	if target == nil {
		// Went offline during the pair lookup.
		return reject(protocol.ErrTargetOffline, protocol.MsgTargetOffline)
	}

	fields := map[string]any{
		"from":     sender.DeviceID,
		"fromName": sender.DeviceName,
		"command":  command,
	}
	if len(payload) > 0 {
		fields["payload"] = payload
	}
	target.Client.Send(protocol.NewFrame(protocol.TypeCommand, fields))

	slog.Debug("command relayed", "from", sender.DeviceID, "to", targetDeviceID, "command", command)
	return nil
}

func (s *Server) authorizeRoute(ctx context.Context, sender *Session, targetDeviceID, command string) error {
	if targetDeviceID == "" || command == "" {
		return reject(protocol.ErrInvalidRequest, "target and command are required")
	}

	target := s.liveSession(targetDeviceID)
	if target == nil {
		slog.Debug("command target offline", "from", sender.DeviceID, "to", targetDeviceID)
		return reject(protocol.ErrTargetOffline, protocol.MsgTargetOffline)
	}

	if target.UserID != sender.UserID {
		slog.Warn("security.cross_user_command", "from", sender.DeviceID, "to", targetDeviceID, "user", sender.UserID)
		return reject(protocol.ErrNotAuthorized, protocol.MsgNotAuthorized)
	}

	// Always read the pair fresh: an unpair must take effect on the next command.
	pair, err := s.store.FindPair(ctx, sender.DeviceID, targetDeviceID)
	if errors.Is(err, store.ErrNotFound) {
		return reject(protocol.ErrNotPaired, protocol.MsgNotPaired)
	}
	if err != nil {
		return err
	}
	if pair.Status != store.PairAccepted {
		return reject(protocol.ErrNotPaired, protocol.MsgNotPaired)
	}
	return nil
}

// liveSession returns the registered session for deviceID unless its
// transport is already gone and only awaits disconnect processing.
func (s *Server) liveSession(deviceID string) *Session {
	sess := s.registry.Lookup(deviceID)
	if sess == nil || sess.Client.Closed() {
		return nil
	}
	return sess
}
