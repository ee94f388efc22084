package storage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/common"
	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/storage/badger"
	"github.com/ternarybob/inkwell/internal/storage/postgres"
)

// Manager owns the embedded Badger database (always used by the stage queues)
// and the configured job record store.
type Manager struct {
	db     *badger.BadgerDB
	jobs   interfaces.JobStore
	logger arbor.ILogger
}

// NewStorageManager creates a new storage manager based on config
func NewStorageManager(ctx context.Context, logger arbor.ILogger, config *common.Config) (*Manager, error) {
	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}

	var jobs interfaces.JobStore
	switch config.Storage.Driver {
	case "", "badger":
		jobs = badger.NewJobStore(db, logger)
	case "postgres":
		jobs, err = postgres.NewJobStore(ctx, logger, &config.Storage.Postgres)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	default:
		_ = db.Close()
		return nil, fmt.Errorf("unsupported storage driver: %s", config.Storage.Driver)
	}

	logger.Info().
		Str("driver", config.Storage.Driver).
		Str("badger_path", config.Storage.Badger.Path).
		Msg("Storage manager initialized")

	return &Manager{db: db, jobs: jobs, logger: logger}, nil
}

// JobStore returns the job record store
func (m *Manager) JobStore() interfaces.JobStore {
	return m.jobs
}

// DB returns the Badger database backing the stage queues
func (m *Manager) DB() *badger.BadgerDB {
	return m.db
}

// Close closes the job store then the Badger database
func (m *Manager) Close() error {
	if err := m.jobs.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to close job store")
	}
	return m.db.Close()
}
