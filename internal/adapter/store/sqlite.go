package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/berfenger/solaxgw2mqtt/internal/core/port"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	STORE_TYPE_MEMORY = "memory"
	STORE_TYPE_SQLITE = "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entity_state (
	entity_id  TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	value      REAL NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteStore keeps entity states in a single sqlite table.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state store %s: %w", path, err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state store schema: %w", err)
	}
	logger.Info("state store opened", zap.String("path", path))
	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

func (s *SQLiteStore) load(entityId, kind string) (*float64, error) {
	var value float64
	err := s.db.QueryRow("SELECT value FROM entity_state WHERE entity_id = ? AND kind = ?", entityId, kind).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", kind, entityId, err)
	}
	return &value, nil
}

func (s *SQLiteStore) save(entityId, kind string, value float64) error {
	_, err := s.db.Exec(`INSERT INTO entity_state (entity_id, kind, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(entity_id) DO UPDATE SET kind = excluded.kind, value = excluded.value, updated_at = excluded.updated_at`,
		entityId, kind, value)
	if err != nil {
		return fmt.Errorf("save %s %s: %w", kind, entityId, err)
	}
	s.logger.Debug("state stored", zap.String("entity", entityId), zap.Float64("value", value))
	return nil
}

func (s *SQLiteStore) LoadSwitch(entityId string) (*bool, error) {
	v, err := s.load(entityId, "switch")
	if err != nil || v == nil {
		return nil, err
	}
	state := *v != 0
	return &state, nil
}

func (s *SQLiteStore) SaveSwitch(entityId string, value bool) error {
	var v float64
	if value {
		v = 1
	}
	return s.save(entityId, "switch", v)
}

func (s *SQLiteStore) LoadNumber(entityId string) (*float64, error) {
	return s.load(entityId, "number")
}

func (s *SQLiteStore) SaveNumber(entityId string, value float64) error {
	return s.save(entityId, "number", value)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// NewStateStore creates the store selected by type. An empty type selects the memory store.
func NewStateStore(storeType, path string, logger *zap.Logger) (port.EntityStateStore, error) {
	switch storeType {
	case "", STORE_TYPE_MEMORY:
		return NewMemoryStore(), nil
	case STORE_TYPE_SQLITE:
		return NewSQLiteStore(path, logger)
	}
	return nil, fmt.Errorf("unknown state store type %q", storeType)
}

// ensure interface compliance
var _ port.EntityStateStore = (*SQLiteStore)(nil)
