package telemetry

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"appliancemon/internal/errors"
	"appliancemon/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

type Repository interface {
	Record(snapshot *Snapshot) error
	Close() error
}

type sqliteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	logger.Debug().Msgf("Initializing telemetry repository at: %s", cfg.DBPath)

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	return &sqliteRepository{
		db: db,
	}, nil
}

func (r *sqliteRepository) Record(snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	_, err := r.db.Exec(`
        INSERT INTO samples (
            timestamp, appliance, watts, phase, failures, read_failed
        ) VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(timestamp, appliance) DO UPDATE SET
            watts = excluded.watts,
            phase = excluded.phase,
            failures = excluded.failures,
            read_failed = excluded.read_failed
    `,
		snapshot.Timestamp.Unix(),
		snapshot.Appliance,
		snapshot.Watts,
		snapshot.Phase,
		snapshot.Failures,
		boolToInt(snapshot.ReadFailed),
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *sqliteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}
	return nil
}
