// Package modelstore persists serialized finite-context models in a local
// SQLite catalog. The store is a convenience for applications that manage
// several named models; the models themselves remain plain in-process
// fcm.Model values.
package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/CTAG07/Drosera/pkg/fcm"
)

// ErrNotFound is returned when a named model is not in the catalog.
var ErrNotFound = errors.New("model not found")

// SetupSchema initializes the catalog table in the provided database. It
// is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const schemaModels = `
CREATE TABLE IF NOT EXISTS fcm_models (
    model_name TEXT PRIMARY KEY,
    model_order INTEGER NOT NULL,
    alpha REAL NOT NULL,
    recursive INTEGER NOT NULL,
    binary_format INTEGER NOT NULL,
    payload BLOB NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`
	if _, err := db.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create model catalog schema: %w", err)
	}
	return nil
}

// Entry describes one stored model.
type Entry struct {
	Name      string
	Order     int
	Alpha     float64
	Recursive bool
	Binary    bool
	Size      int
	UpdatedAt string
}

// CatalogStats holds aggregate counters for the whole catalog.
type CatalogStats struct {
	Models       int
	PayloadBytes int
}

// Store is a catalog of serialized models backed by a SQL database. It
// holds prepared statements for its queries; call Close when done.
type Store struct {
	db         *sql.DB
	stmtSave   *sql.Stmt
	stmtLoad   *sql.Stmt
	stmtList   *sql.Stmt
	stmtDelete *sql.Stmt
	stmtStats  *sql.Stmt
	logger     *slog.Logger
}

// New creates a Store over db. SetupSchema must have been called first.
func New(db *sql.DB) (*Store, error) {
	stmtSave, err := db.Prepare(`
INSERT INTO fcm_models (model_name, model_order, alpha, recursive, binary_format, payload, updated_at)
VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
ON CONFLICT(model_name) DO UPDATE SET
    model_order = excluded.model_order,
    alpha = excluded.alpha,
    recursive = excluded.recursive,
    binary_format = excluded.binary_format,
    payload = excluded.payload,
    updated_at = excluded.updated_at;`)
	if err != nil {
		return nil, err
	}

	stmtLoad, err := db.Prepare(`SELECT model_order, alpha, recursive, binary_format, payload FROM fcm_models WHERE model_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtList, err := db.Prepare(`SELECT model_name, model_order, alpha, recursive, binary_format, length(payload), updated_at FROM fcm_models ORDER BY model_name;`)
	if err != nil {
		return nil, err
	}

	stmtDelete, err := db.Prepare(`DELETE FROM fcm_models WHERE model_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtStats, err := db.Prepare(`SELECT COUNT(*), coalesce(SUM(length(payload)), 0) FROM fcm_models;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:         db,
		stmtSave:   stmtSave,
		stmtLoad:   stmtLoad,
		stmtList:   stmtList,
		stmtDelete: stmtDelete,
		stmtStats:  stmtStats,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases the prepared statements held by the Store.
func (s *Store) Close() {
	_ = s.stmtSave.Close()
	_ = s.stmtLoad.Close()
	_ = s.stmtList.Close()
	_ = s.stmtDelete.Close()
	_ = s.stmtStats.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are
// discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Save serializes m and upserts it under name. Serialization locks the
// model (see fcm.Model.MarshalDocument).
func (s *Store) Save(ctx context.Context, name string, m *fcm.Model, binary bool) error {
	payload, err := m.MarshalDocument(binary)
	if err != nil {
		return fmt.Errorf("could not serialize model %q: %w", name, err)
	}
	if _, err := s.stmtSave.ExecContext(ctx, name, m.K(), m.Alpha(), m.Recursive(), binary, payload); err != nil {
		return fmt.Errorf("could not save model %q: %w", name, err)
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", name),
		slog.Int("model_order", m.K()),
		slog.Int("payload_bytes", len(payload)),
		slog.Bool("binary", binary),
	)
	return nil
}

// Load reconstructs the named model from its stored document.
func (s *Store) Load(ctx context.Context, name string) (*fcm.Model, error) {
	var (
		order             int
		alpha             float64
		recursive, binary bool
		payload           []byte
	)
	err := s.stmtLoad.QueryRowContext(ctx, name).Scan(&order, &alpha, &recursive, &binary, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("could not load model %q: %w", name, err)
	}

	var opts []fcm.Option
	if recursive {
		opts = append(opts, fcm.WithBackoff())
	}
	m, err := fcm.New(order, alpha, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid stored parameters for model %q: %w", name, err)
	}
	if err := m.UnmarshalDocument(payload, binary); err != nil {
		return nil, fmt.Errorf("could not restore model %q: %w", name, err)
	}
	return m, nil
}

// List returns the catalog entries, sorted by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Order, &e.Alpha, &e.Recursive, &e.Binary, &e.Size, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Delete removes the named model from the catalog. Deleting a model that
// does not exist is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.stmtDelete.ExecContext(ctx, name)
	if err != nil {
		return fmt.Errorf("could not delete model %q: %w", name, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model deleted",
		slog.String("model_name", name),
		slog.Int64("rows_affected", rowsAffected),
	)
	return nil
}

// Stats returns aggregate counters for the catalog.
func (s *Store) Stats(ctx context.Context) (CatalogStats, error) {
	var stats CatalogStats
	if err := s.stmtStats.QueryRowContext(ctx).Scan(&stats.Models, &stats.PayloadBytes); err != nil {
		return CatalogStats{}, err
	}
	return stats, nil
}
