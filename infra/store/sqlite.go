package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/kilianp07/evtrip/core/model"
	"github.com/kilianp07/evtrip/core/trips"
	"github.com/kilianp07/evtrip/infra/store/migrations"
)

// SQLiteStore persists trip lists in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time

	afterLoad func()
}

// busyTimeoutMS is how long a writer waits for another connection's write
// transaction before giving up.
const busyTimeoutMS = 5000

// NewSQLiteStore opens or creates the database at path and applies the
// migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("busy timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (migrate err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, vehicleID string) ([]model.Trip, bool, error) {
	return loadRow(ctx, s.db, vehicleID)
}

func (s *SQLiteStore) Save(ctx context.Context, vehicleID string, list []model.Trip) error {
	return s.upsert(ctx, s.db, vehicleID, list)
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Mutate runs the read and the write inside one BEGIN IMMEDIATE transaction,
// which takes the database write lock up front. Other connections, in this
// process or another, wait up to the busy timeout.
func (s *SQLiteStore) Mutate(ctx context.Context, vehicleID string, fn trips.MutateFunc) (changed bool, err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS)); err != nil {
		return false, fmt.Errorf("busy timeout: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil || !changed {
			if _, rerr := conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); rerr != nil && err == nil {
				err = fmt.Errorf("rollback: %w", rerr)
			}
		}
	}()
	cur, found, err := loadRow(ctx, conn, vehicleID)
	if err != nil {
		return false, err
	}
	if s.afterLoad != nil {
		s.afterLoad()
	}
	next, changed, err := fn(cur, found)
	if err != nil || !changed {
		return false, err
	}
	if err := s.upsert(ctx, conn, vehicleID, next); err != nil {
		return false, err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func loadRow(ctx context.Context, q sqlExecer, vehicleID string) ([]model.Trip, bool, error) {
	var (
		version int
		data    string
	)
	err := q.QueryRowContext(ctx,
		`SELECT version, data FROM trip_lists WHERE vehicle_id = ?`, vehicleID).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	list, err := decodeList([]byte(data), version)
	if err != nil {
		return nil, true, err
	}
	return list, true, nil
}

func (s *SQLiteStore) upsert(ctx context.Context, q sqlExecer, vehicleID string, list []model.Trip) error {
	env := NewEnvelope(vehicleID, list)
	b, err := json.Marshal(env.Data)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO trip_lists (vehicle_id, storage_key, version, data, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(vehicle_id) DO UPDATE SET
            storage_key = excluded.storage_key,
            version = excluded.version,
            data = excluded.data,
            updated_at = excluded.updated_at`,
		vehicleID, env.Key, env.Version, string(b), s.now().Unix())
	return err
}

// Vehicles lists the vehicles that have a stored trip list.
func (s *SQLiteStore) Vehicles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT vehicle_id FROM trip_lists ORDER BY vehicle_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ trips.Mutator = (*SQLiteStore)(nil)
