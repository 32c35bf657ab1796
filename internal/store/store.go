// Package store defines the durable records behind the relay and the
// interface the gateway consumes them through.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDeviceOwnership is returned when an upsert would move a device id to another user.
var ErrDeviceOwnership = errors.New("device owned by another user")

// DeviceStore manages Device records.
type DeviceStore interface {
	GetDevice(ctx context.Context, id string) (*Device, error)
	// UpsertDevice creates the device or refreshes its fields, marking it
	// online with last_seen = now. Returns ErrDeviceOwnership if id exists
	// under a different user.
	UpsertDevice(ctx context.Context, id string, f DeviceFields) (*Device, error)
	SetOnline(ctx context.Context, id string, online bool) error
	ListDevicesByUser(ctx context.Context, userID string) ([]Device, error)
	DeleteDevice(ctx context.Context, id string) error
}

// PairStore manages DevicePair records.
type PairStore interface {
	// FindPair returns the record between a and b in either order.
	FindPair(ctx context.Context, a, b string) (*DevicePair, error)
	// CreatePair inserts a record, or updates the existing one for the same
	// unordered pair, and returns the stored row.
	CreatePair(ctx context.Context, a, b, requesterID string, status PairStatus) (*DevicePair, error)
	UpdatePairStatus(ctx context.Context, id string, status PairStatus, requesterID string) error
	GetPair(ctx context.Context, id string) (*DevicePair, error)
	ListPairsByUser(ctx context.Context, userID string) ([]DevicePair, error)
	DeletePair(ctx context.Context, id string) error
	DeletePairsForDevice(ctx context.Context, deviceID string) error
}

// Store is the full durable collaborator consumed by the gateway.
type Store interface {
	DeviceStore
	PairStore
	Close() error
}
