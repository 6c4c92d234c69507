// Package migrator applies one-off rewrites of the bundler database.
package migrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/AvaProtocol/ap-bundler/core/backup"
	"github.com/AvaProtocol/ap-bundler/storage"
)

// MigrationFunc rewrites the database and returns how many records it
// touched.
type MigrationFunc func(db storage.Storage) (int, error)

type Migration struct {
	// Name is recorded once the migration succeeds. Prefix it with a
	// YYYYMMDD-HHMMSS timestamp so the keys sort in order.
	Name     string
	Function MigrationFunc
}

type Migrator struct {
	db         storage.Storage
	migrations []Migration
	backup     *backup.Service
	logger     logging.Logger
	mu         sync.Mutex
}

// NewMigrator takes a backup before running pending migrations unless
// backup is nil.
func NewMigrator(db storage.Storage, backup *backup.Service, migrations []Migration, logger logging.Logger) *Migrator {
	return &Migrator{
		db:         db,
		migrations: migrations,
		backup:     backup,
		logger:     logger,
	}
}

func (m *Migrator) Register(name string, fn MigrationFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.migrations = append(m.migrations, Migration{
		Name:     name,
		Function: fn,
	})
}

func migrationKey(name string) []byte {
	return []byte(fmt.Sprintf("migration:%s", name))
}

func (m *Migrator) pending() ([]Migration, error) {
	var pending []Migration
	for _, migration := range m.migrations {
		exists, err := m.db.Exist(migrationKey(migration.Name))
		if err != nil {
			return nil, fmt.Errorf("check migration %s: %w", migration.Name, err)
		}
		if !exists {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// Run applies every migration that has not been recorded yet, in order.
func (m *Migrator) Run() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	if m.backup != nil {
		m.logger.Info("pending migrations found, creating database backup before proceeding", "count", len(pending))
		backupFile, err := m.backup.PerformBackup()
		if err != nil {
			return fmt.Errorf("failed to create backup before migrations: %w", err)
		}
		m.logger.Info("database backup created", "file", backupFile)
	}

	for _, migration := range pending {
		m.logger.Info("running migration", "name", migration.Name)
		recordsUpdated, err := migration.Function(m.db)
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
		m.logger.Info("migration completed", "name", migration.Name, "records", recordsUpdated)

		record := fmt.Sprintf("records=%d,ts=%d", recordsUpdated, time.Now().UnixMilli())
		if err := m.db.Set(migrationKey(migration.Name), []byte(record)); err != nil {
			return fmt.Errorf("failed to mark migration as complete in database: %w", err)
		}
	}

	return nil
}
