package gateway

import (
	"sync"
	"time"
)

// Session binds one authenticated device to its live connection.
type Session struct {
	Client      *Client
	UserID      string
	Username    string
	DeviceID    string
	DeviceName  string
	DeviceType  string
	Platform    string
	ConnectedAt time.Time
}

// Registry is the process-wide view of which devices are connected.
// It holds at most one session per device id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register stores s under its device id and returns the session it
// replaced, or nil.
func (r *Registry) Register(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[s.DeviceID]
	r.sessions[s.DeviceID] = s
	return prev
}

// Lookup returns the live session for deviceID, or nil.
func (r *Registry) Lookup(deviceID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[deviceID]
}

// IsOnline reports whether deviceID has a live session.
func (r *Registry) IsOnline(deviceID string) bool {
	return r.Lookup(deviceID) != nil
}

// IsCurrent reports whether s is still the registered session for its device.
func (r *Registry) IsCurrent(s *Session) bool {
	return s != nil && r.Lookup(s.DeviceID) == s
}

// Remove deletes the entry for deviceID only if it is still s.
// A superseded session closing late must not evict its replacement.
func (r *Registry) Remove(deviceID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[deviceID]; ok && cur == s {
		delete(r.sessions, deviceID)
		return true
	}
	return false
}

// ForUser returns the user's sessions, excluding exceptDeviceID.
func (r *Registry) ForUser(userID, exceptDeviceID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for id, s := range r.sessions {
		if s.UserID == userID && id != exceptDeviceID {
			out = append(out, s)
		}
	}
	return out
}

// Snapshot returns every live session.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
