package store

import (
	"time"

	"github.com/google/uuid"
)

// PairStatus is the state of a DevicePair record.
type PairStatus string

const (
	PairPending  PairStatus = "pending"
	PairAccepted PairStatus = "accepted"
	PairRejected PairStatus = "rejected"
)

// Valid reports whether s is one of the persisted statuses.
func (s PairStatus) Valid() bool {
	switch s {
	case PairPending, PairAccepted, PairRejected:
		return true
	}
	return false
}

// Device is the durable record of one endpoint owned by a user.
// Online is best-effort; live presence belongs to the gateway registry.
type Device struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Type      string    `db:"device_type" json:"device_type"`
	Platform  string    `db:"platform" json:"platform"`
	LastSeen  time.Time `db:"last_seen" json:"last_seen"`
	Online    bool      `db:"online" json:"online"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Placeholders stored for attributes a device never reported.
const (
	DefaultDeviceName  = "Unnamed device"
	DefaultDeviceClass = "unknown"
)

// DeviceFields are the attributes written on every handshake. Empty
// attributes leave an existing record's values in place.
type DeviceFields struct {
	UserID   string
	Name     string
	Type     string
	Platform string
}

// WithDefaults fills empty attributes with placeholders for a new record.
func (f DeviceFields) WithDefaults() DeviceFields {
	if f.Name == "" {
		f.Name = DefaultDeviceName
	}
	if f.Type == "" {
		f.Type = DefaultDeviceClass
	}
	if f.Platform == "" {
		f.Platform = DefaultDeviceClass
	}
	return f
}

// DevicePair authorizes command forwarding between two devices.
// DeviceA < DeviceB always; RequesterID records which side last asked.
type DevicePair struct {
	ID          string     `db:"id" json:"id"`
	DeviceA     string     `db:"device_a" json:"device_a"`
	DeviceB     string     `db:"device_b" json:"device_b"`
	RequesterID string     `db:"requester_id" json:"requester_id"`
	Status      PairStatus `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Other returns the pair member that is not deviceID.
func (p *DevicePair) Other(deviceID string) string {
	if p.DeviceA == deviceID {
		return p.DeviceB
	}
	return p.DeviceA
}

// Involves reports whether deviceID is one side of the pair.
func (p *DevicePair) Involves(deviceID string) bool {
	return p.DeviceA == deviceID || p.DeviceB == deviceID
}

// OrderPair returns a and b in canonical storage order.
func OrderPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// GenNewID generates a new UUID v7 (time-ordered).
func GenNewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// StoreConfig configures the store layer.
type StoreConfig struct {
	// PostgresDSN selects the Postgres backend. If empty, SQLite is used.
	PostgresDSN string

	// SQLitePath is the database file for standalone mode.
	SQLitePath string
}

// IsManaged returns true if the relay is backed by Postgres.
func (c StoreConfig) IsManaged() bool {
	return c.PostgresDSN != ""
}
