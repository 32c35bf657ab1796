package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/devlink/internal/auth"
	"github.com/nextlevelbuilder/devlink/internal/store"
)

// fakeVerifier accepts tokens of the form "tok-<user>".
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (*auth.Identity, error) {
	user, ok := strings.CutPrefix(token, "tok-")
	if !ok || user == "" {
		return nil, fmt.Errorf("%w: bad token", auth.ErrInvalidCredential)
	}
	return &auth.Identity{UserID: user, Username: user + "-name"}, nil
}

// slowVerifier delays every verification, as a remote identity lookup would.
type slowVerifier struct {
	delay time.Duration
}

func (v slowVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	time.Sleep(v.delay)
	return fakeVerifier{}.Verify(ctx, token)
}

// memStore is an in-memory store.Store with failure injection.
type memStore struct {
	mu      sync.Mutex
	devices map[string]store.Device
	pairs   map[string]store.DevicePair

	upserts     int
	pairCreates int
	failFind    error
	failOnline  error
}

func newMemStore() *memStore {
	return &memStore{
		devices: make(map[string]store.Device),
		pairs:   make(map[string]store.DevicePair),
	}
}

var _ store.Store = (*memStore)(nil)

func (m *memStore) Close() error { return nil }

func (m *memStore) GetDevice(_ context.Context, id string) (*store.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (m *memStore) UpsertDevice(_ context.Context, id string, f store.DeviceFields) (*store.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	d, ok := m.devices[id]
	if ok && d.UserID != f.UserID {
		return nil, store.ErrDeviceOwnership
	}
	if !ok {
		ins := f.WithDefaults()
		d = store.Device{ID: id, UserID: f.UserID, Name: ins.Name, Type: ins.Type, Platform: ins.Platform, CreatedAt: now}
	}
	if f.Name != "" {
		d.Name = f.Name
	}
	if f.Type != "" {
		d.Type = f.Type
	}
	if f.Platform != "" {
		d.Platform = f.Platform
	}
	d.Online, d.LastSeen = true, now
	m.devices[id] = d
	m.upserts++
	return &d, nil
}

func (m *memStore) SetOnline(_ context.Context, id string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOnline != nil {
		return m.failOnline
	}
	d, ok := m.devices[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Online, d.LastSeen = online, time.Now().UTC()
	m.devices[id] = d
	return nil
}

func (m *memStore) ListDevicesByUser(_ context.Context, userID string) ([]store.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Device
	for _, d := range m.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) DeleteDevice(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *memStore) FindPair(_ context.Context, a, b string) (*store.DevicePair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFind != nil {
		return nil, m.failFind
	}
	lo, hi := store.OrderPair(a, b)
	for _, p := range m.pairs {
		if p.DeviceA == lo && p.DeviceB == hi {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) CreatePair(_ context.Context, a, b, requesterID string, status store.PairStatus) (*store.DevicePair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := store.OrderPair(a, b)
	now := time.Now().UTC()
	for id, p := range m.pairs {
		if p.DeviceA == lo && p.DeviceB == hi {
			if p.Status == store.PairAccepted {
				return &p, nil
			}
			p.Status, p.RequesterID, p.UpdatedAt = status, requesterID, now
			m.pairs[id] = p
			return &p, nil
		}
	}
	p := store.DevicePair{
		ID: store.GenNewID(), DeviceA: lo, DeviceB: hi,
		RequesterID: requesterID, Status: status, CreatedAt: now, UpdatedAt: now,
	}
	m.pairs[p.ID] = p
	m.pairCreates++
	return &p, nil
}

func (m *memStore) UpdatePairStatus(_ context.Context, id string, status store.PairStatus, requesterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pairs[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Status, p.UpdatedAt = status, time.Now().UTC()
	if requesterID != "" {
		p.RequesterID = requesterID
	}
	m.pairs[id] = p
	return nil
}

func (m *memStore) GetPair(_ context.Context, id string) (*store.DevicePair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pairs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) ListPairsByUser(_ context.Context, userID string) ([]store.DevicePair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.DevicePair
	for _, p := range m.pairs {
		if d, ok := m.devices[p.DeviceA]; ok && d.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) DeletePair(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pairs[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.pairs, id)
	return nil
}

func (m *memStore) DeletePairsForDevice(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.pairs {
		if p.Involves(deviceID) {
			delete(m.pairs, id)
		}
	}
	return nil
}

func (m *memStore) device(id string) (store.Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	return d, ok
}

func (m *memStore) counts() (upserts, pairCreates, pairs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts, m.pairCreates, len(m.pairs)
}

// recordingSink captures published presence events.
type recordingSink struct {
	mu     sync.Mutex
	events []PresenceEvent
}

func (r *recordingSink) Publish(_ context.Context, ev PresenceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) count(kind, deviceID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind && ev.DeviceID == deviceID {
			n++
		}
	}
	return n
}

var errInjected = errors.New("injected failure")
