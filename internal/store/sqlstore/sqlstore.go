// Package sqlstore implements store.Store on database/sql through sqlx.
// Queries are written with '?' placeholders and rebound per driver, so the
// same code serves the Postgres and SQLite backends.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/devlink/internal/store"
)

const deviceColumns = "id, user_id, name, device_type, platform, last_seen, online, created_at"

const pairColumns = "id, device_a, device_b, requester_id, status, created_at, updated_at"

// SQLStore implements store.Store.
type SQLStore struct {
	db *sqlx.DB
}

// New wraps an open *sql.DB. driverName selects the placeholder style.
func New(db *sql.DB, driverName string) *SQLStore {
	return &SQLStore{db: sqlx.NewDb(db, driverName)}
}

// DB exposes the underlying handle for health checks.
func (s *SQLStore) DB() *sql.DB { return s.db.DB }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) q(query string) string { return s.db.Rebind(query) }

func nowUTC() time.Time {
	return time.Now().UTC()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// --- Devices ---

func (s *SQLStore) GetDevice(ctx context.Context, id string) (*store.Device, error) {
	var d store.Device
	err := s.db.GetContext(ctx, &d, s.q("SELECT "+deviceColumns+" FROM devices WHERE id = ?"), id)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// UpsertDevice inserts with placeholders for missing attributes; an update
// only overwrites the attributes the device actually reported.
func (s *SQLStore) UpsertDevice(ctx context.Context, id string, f store.DeviceFields) (*store.Device, error) {
	now := nowUTC()
	ins := f.WithDefaults()
	res, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO devices (id, user_id, name, device_type, platform, last_seen, online, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = COALESCE(NULLIF(?, ''), devices.name),
			device_type = COALESCE(NULLIF(?, ''), devices.device_type),
			platform = COALESCE(NULLIF(?, ''), devices.platform),
			last_seen = excluded.last_seen,
			online = excluded.online
		 WHERE devices.user_id = excluded.user_id`),
		id, f.UserID, ins.Name, ins.Type, ins.Platform, now, true, now,
		f.Name, f.Type, f.Platform,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrDeviceOwnership
	}
	return s.GetDevice(ctx, id)
}

func (s *SQLStore) SetOnline(ctx context.Context, id string, online bool) error {
	_, err := s.db.ExecContext(ctx, s.q("UPDATE devices SET online = ?, last_seen = ? WHERE id = ?"),
		online, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}

func (s *SQLStore) ListDevicesByUser(ctx context.Context, userID string) ([]store.Device, error) {
	devices := []store.Device{}
	err := s.db.SelectContext(ctx, &devices,
		s.q("SELECT "+deviceColumns+" FROM devices WHERE user_id = ? ORDER BY created_at, id"), userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

func (s *SQLStore) DeleteDevice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM devices WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Pairs ---

func (s *SQLStore) FindPair(ctx context.Context, a, b string) (*store.DevicePair, error) {
	var p store.DevicePair
	err := s.db.GetContext(ctx, &p, s.q(
		"SELECT "+pairColumns+" FROM device_pairs WHERE (device_a = ? AND device_b = ?) OR (device_a = ? AND device_b = ?)"),
		a, b, b, a)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *SQLStore) GetPair(ctx context.Context, id string) (*store.DevicePair, error) {
	var p store.DevicePair
	err := s.db.GetContext(ctx, &p, s.q("SELECT "+pairColumns+" FROM device_pairs WHERE id = ?"), id)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *SQLStore) CreatePair(ctx context.Context, a, b, requesterID string, status store.PairStatus) (*store.DevicePair, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid pair status %q", status)
	}
	first, second := store.OrderPair(a, b)
	now := nowUTC()
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO device_pairs (id, device_a, device_b, requester_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (device_a, device_b) DO UPDATE SET
			requester_id = excluded.requester_id,
			status = excluded.status,
			updated_at = excluded.updated_at
		 WHERE device_pairs.status <> ?`),
		store.GenNewID(), first, second, requesterID, string(status), now, now,
		string(store.PairAccepted),
	)
	if err != nil {
		return nil, fmt.Errorf("create pair: %w", err)
	}
	return s.FindPair(ctx, first, second)
}

func (s *SQLStore) UpdatePairStatus(ctx context.Context, id string, status store.PairStatus, requesterID string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid pair status %q", status)
	}
	res, err := s.db.ExecContext(ctx, s.q(
		"UPDATE device_pairs SET status = ?, requester_id = COALESCE(NULLIF(?, ''), requester_id), updated_at = ? WHERE id = ?"),
		string(status), requesterID, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("update pair status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListPairsByUser(ctx context.Context, userID string) ([]store.DevicePair, error) {
	pairs := []store.DevicePair{}
	err := s.db.SelectContext(ctx, &pairs, s.q(
		`SELECT `+pairColumns+` FROM device_pairs
		 WHERE device_a IN (SELECT id FROM devices WHERE user_id = ?)
			OR device_b IN (SELECT id FROM devices WHERE user_id = ?)
		 ORDER BY created_at, id`), userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}
	return pairs, nil
}

func (s *SQLStore) DeletePair(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM device_pairs WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete pair: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeletePairsForDevice(ctx context.Context, deviceID string) error {
	_, err := s.db.ExecContext(ctx, s.q("DELETE FROM device_pairs WHERE device_a = ? OR device_b = ?"), deviceID, deviceID)
	if err != nil {
		return fmt.Errorf("delete pairs for device: %w", err)
	}
	return nil
}

var _ store.Store = (*SQLStore)(nil)
