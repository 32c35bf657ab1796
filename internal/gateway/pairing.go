package gateway

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/devlink/internal/store"
	"github.com/nextlevelbuilder/devlink/pkg/protocol"
)

// Pair states: absent (no row) → pending → accepted | rejected.
// A pending row records which side asked, so responses are only accepted
// from the other side.

func (s *Server) handlePairRequest(ctx context.Context, sess *Session, m protocol.PairRequest) {
	if err := s.RequestPair(ctx, sess, m.Target); err != nil {
		replyError(sess.Client, "pair_request", err)
	}
}

func (s *Server) handlePairResponse(ctx context.Context, sess *Session, m protocol.PairResponse) {
	if err := s.RespondPair(ctx, sess, m.Requester, m.Accept); err != nil {
		replyError(sess.Client, "pair_response", err)
	}
}

// RequestPair moves the requester/target pair into pending and notifies the
// target. An already accepted pair is reported back without re-notifying.
func (s *Server) RequestPair(ctx context.Context, requester *Session, targetDeviceID string) error {
	ctx, span := s.tracer.Start(ctx, "gateway.pair_request")
	defer span.End()
	span.SetAttributes(attribute.String("device.from", requester.DeviceID), attribute.String("device.to", targetDeviceID))

	if targetDeviceID == "" {
		return reject(protocol.ErrInvalidRequest, "target is required")
	}
	if targetDeviceID == requester.DeviceID {
		return reject(protocol.ErrInvalidRequest, "cannot pair a device with itself")
	}

	target := s.liveSession(targetDeviceID)
	if target == nil {
		return reject(protocol.ErrTargetOffline, protocol.MsgTargetOffline)
	}
	if target.UserID != requester.UserID {
		slog.Warn("security.cross_user_pair", "from", requester.DeviceID, "to", targetDeviceID)
		return reject(protocol.ErrNotAuthorized, protocol.MsgNotAuthorized)
	}

	pair, err := s.store.FindPair(ctx, requester.DeviceID, targetDeviceID)
	created := false
	if errors.Is(err, store.ErrNotFound) {
		// A concurrent request or accept may win the insert; CreatePair
		// returns the row as stored.
		pair, err = s.store.CreatePair(ctx, requester.DeviceID, targetDeviceID, requester.DeviceID, store.PairPending)
		created = true
	}
	if err != nil {
		return err
	}

	switch {
	case pair.Status == store.PairAccepted:
		requester.Client.Send(protocol.NewFrame(protocol.TypePairAlready, map[string]any{
			"target": targetDeviceID,
			"pairId": pair.ID,
		}))
		return nil
	case !created:
		// pending or rejected: re-arm with this device as the requester.
		if err := s.store.UpdatePairStatus(ctx, pair.ID, store.PairPending, requester.DeviceID); err != nil {
			return err
		}
	}

	target.Client.Send(protocol.NewFrame(protocol.TypePairRequest, map[string]any{
		"from":         requester.DeviceID,
		"fromName":     requester.DeviceName,
		"fromType":     requester.DeviceType,
		"fromPlatform": requester.Platform,
		"pairId":       pair.ID,
	}))
	requester.Client.Send(protocol.NewFrame(protocol.TypePairSent, map[string]any{
		"target": targetDeviceID,
		"pairId": pair.ID,
	}))

	slog.Info("pair requested", "from", requester.DeviceID, "to", targetDeviceID, "pair", pair.ID)
	return nil
}

// RespondPair resolves a pending request that requesterDeviceID sent to responder.
func (s *Server) RespondPair(ctx context.Context, responder *Session, requesterDeviceID string, accept bool) error {
	ctx, span := s.tracer.Start(ctx, "gateway.pair_response")
	defer span.End()
	span.SetAttributes(attribute.String("device.from", responder.DeviceID), attribute.String("device.to", requesterDeviceID))

	if requesterDeviceID == "" {
		return reject(protocol.ErrInvalidRequest, "requester is required")
	}

	pair, err := s.store.FindPair(ctx, responder.DeviceID, requesterDeviceID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Debug("pair response without request", "from", responder.DeviceID, "requester", requesterDeviceID)
		return reject(protocol.ErrNoPendingRequest, protocol.MsgNoPendingRequest)
	}
	if err != nil {
		return err
	}
	if pair.Status != store.PairPending || pair.RequesterID != requesterDeviceID {
		slog.Debug("pair response without pending request", "pair", pair.ID, "status", pair.Status)
		return reject(protocol.ErrNoPendingRequest, protocol.MsgNoPendingRequest)
	}

	status := store.PairRejected
	if accept {
		status = store.PairAccepted
	}
	if err := s.store.UpdatePairStatus(ctx, pair.ID, status, ""); err != nil {
		return err
	}

	if requester := s.registry.Lookup(requesterDeviceID); requester != nil {
		requester.Client.Send(protocol.NewFrame(protocol.TypePairResponse, map[string]any{
			"from":     responder.DeviceID,
			"fromName": responder.DeviceName,
			"accepted": accept,
			"status":   string(status),
			"pairId":   pair.ID,
		}))
	}
	responder.Client.Send(protocol.NewFrame(protocol.TypePairUpdated, map[string]any{
		"requester": requesterDeviceID,
		"status":    string(status),
		"pairId":    pair.ID,
	}))

	slog.Info("pair resolved", "pair", pair.ID, "status", status)
	return nil
}
