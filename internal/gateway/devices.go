package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/devlink/internal/store"
	"github.com/nextlevelbuilder/devlink/pkg/protocol"
)

// DeviceView is a durable device annotated with live presence.
// Online comes from the registry, never from the stored flag.
type DeviceView struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Platform string    `json:"platform"`
	LastSeen time.Time `json:"lastSeen"`
	Online   bool      `json:"online"`
	Self     bool      `json:"self"`
}

// PairView is a pair record with each side's live presence.
type PairView struct {
	ID          string           `json:"id"`
	DeviceA     string           `json:"deviceA"`
	DeviceB     string           `json:"deviceB"`
	RequesterID string           `json:"requesterId"`
	Status      store.PairStatus `json:"status"`
	AOnline     bool             `json:"deviceAOnline"`
	BOnline     bool             `json:"deviceBOnline"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

func (s *Server) viewOf(d *store.Device, selfDeviceID string) DeviceView {
	return DeviceView{
		ID:       d.ID,
		Name:     d.Name,
		Type:     d.Type,
		Platform: d.Platform,
		LastSeen: d.LastSeen,
		Online:   s.registry.IsOnline(d.ID),
		Self:     d.ID == selfDeviceID,
	}
}

// DeviceList returns every device owned by userID. selfDeviceID may be empty.
func (s *Server) DeviceList(ctx context.Context, userID, selfDeviceID string) ([]DeviceView, error) {
	devices, err := s.store.ListDevicesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]DeviceView, 0, len(devices))
	for i := range devices {
		out = append(out, s.viewOf(&devices[i], selfDeviceID))
	}
	return out, nil
}

// DeviceInfo returns one of userID's devices. Devices of other users are
// reported as not found.
func (s *Server) DeviceInfo(ctx context.Context, userID, deviceID, selfDeviceID string) (*DeviceView, error) {
	d, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, store.ErrNotFound
	}
	v := s.viewOf(d, selfDeviceID)
	return &v, nil
}

// PairList returns pairs touching any of userID's devices.
func (s *Server) PairList(ctx context.Context, userID string) ([]PairView, error) {
	pairs, err := s.store.ListPairsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]PairView, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, PairView{
			ID:          p.ID,
			DeviceA:     p.DeviceA,
			DeviceB:     p.DeviceB,
			RequesterID: p.RequesterID,
			Status:      p.Status,
			AOnline:     s.registry.IsOnline(p.DeviceA),
			BOnline:     s.registry.IsOnline(p.DeviceB),
			UpdatedAt:   p.UpdatedAt,
		})
	}
	return out, nil
}

// Unpair deletes a pair owned by userID. The router sees the change on the
// next command.
func (s *Server) Unpair(ctx context.Context, userID, pairID string) error {
	p, err := s.store.GetPair(ctx, pairID)
	if err != nil {
		return err
	}
	if err := s.checkOwner(ctx, userID, p.DeviceA); err != nil {
		return err
	}
	if err := s.store.DeletePair(ctx, pairID); err != nil {
		return err
	}
	slog.Info("pair deleted", "pair", pairID, "user", userID)
	return nil
}

// RemoveDevice deletes a device with all its pairs and drops its live session.
func (s *Server) RemoveDevice(ctx context.Context, userID, deviceID string) error {
	if err := s.checkOwner(ctx, userID, deviceID); err != nil {
		return err
	}
	if err := s.store.DeletePairsForDevice(ctx, deviceID); err != nil {
		return fmt.Errorf("delete pairs: %w", err)
	}
	if err := s.store.DeleteDevice(ctx, deviceID); err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if sess := s.registry.Lookup(deviceID); sess != nil {
		sess.Client.Send(protocol.NewError(protocol.ErrNotAuthorized, "device removed"))
		sess.Client.CloseWith(protocol.CloseDeviceRemoved, "device removed")
	}
	slog.Info("device removed", "device", deviceID, "user", userID)
	return nil
}

func (s *Server) checkOwner(ctx context.Context, userID, deviceID string) error {
	d, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if d.UserID != userID {
		return store.ErrNotFound
	}
	return nil
}

func (s *Server) handleDeviceList(ctx context.Context, sess *Session) {
	devices, err := s.DeviceList(ctx, sess.UserID, sess.DeviceID)
	if err != nil {
		replyError(sess.Client, "device_list", err)
		return
	}
	sess.Client.Send(protocol.NewFrame(protocol.TypeDeviceList, map[string]any{
		"devices": devices,
	}))
}

func (s *Server) handleDeviceInfo(ctx context.Context, sess *Session, m protocol.DeviceInfo) {
	deviceID := m.DeviceID
	if deviceID == "" {
		deviceID = sess.DeviceID
	}
	info, err := s.DeviceInfo(ctx, sess.UserID, deviceID, sess.DeviceID)
	if errors.Is(err, store.ErrNotFound) {
		sess.Client.Send(protocol.NewError(protocol.ErrNotFound, "device not found"))
		return
	}
	if err != nil {
		replyError(sess.Client, "device_info", err)
		return
	}
	sess.Client.Send(protocol.NewFrame(protocol.TypeDeviceInfo, map[string]any{
		"device": info,
	}))
}
