// Package backup snapshots the bundler database, once or on an interval.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/AvaProtocol/ap-bundler/storage"
)

const (
	FileName        = "bundler.backup"
	timestampLayout = "06-01-02-15-04-05"
)

type Service struct {
	logger    logging.Logger
	db        storage.Storage
	backupDir string

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewService(logger logging.Logger, db storage.Storage, backupDir string) *Service {
	return &Service{
		logger:    logger,
		db:        db,
		backupDir: backupDir,
	}
}

func (s *Service) StartPeriodicBackup(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("backup interval must be positive, got %v", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return fmt.Errorf("backup service already running")
	}
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	s.interval = interval
	s.enabled = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.backupLoop(s.stop, s.done)

	s.logger.Infof("Started periodic backup every %v to %s", interval, s.backupDir)
	return nil
}

// StopPeriodicBackup waits for a backup in progress to finish.
func (s *Service) StopPeriodicBackup() {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	s.logger.Infof("Stopped periodic backup")
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Service) backupLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if backupFile, err := s.PerformBackup(); err != nil {
				s.logger.Errorf("Periodic backup failed: %v", err)
			} else {
				s.logger.Infof("Periodic backup completed successfully to %s", backupFile)
				if err := s.db.Vacuum(); err != nil {
					s.logger.Warnf("Value log GC failed: %v", err)
				}
			}
		case <-stop:
			return
		}
	}
}

// PerformBackup writes a full backup under a timestamped directory and
// returns the file path.
func (s *Service) PerformBackup() (string, error) {
	backupPath := filepath.Join(s.backupDir, time.Now().UTC().Format(timestampLayout))
	if err := os.MkdirAll(backupPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup timestamp directory: %w", err)
	}

	backupFile := filepath.Join(backupPath, FileName)
	f, err := os.Create(backupFile)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	s.logger.Infof("Running backup to %s", backupFile)
	if _, err := s.db.Backup(context.Background(), f, 0); err != nil {
		return "", fmt.Errorf("backup operation failed: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("backup sync failed: %w", err)
	}

	return backupFile, nil
}

// Restore loads a backup file into db. Restore into an empty database, a key
// written after the backup keeps its newer value.
func Restore(ctx context.Context, db storage.Storage, backupFile string) error {
	f, err := os.Open(backupFile)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	if err := db.Load(ctx, f); err != nil {
		return fmt.Errorf("restore operation failed: %w", err)
	}
	return nil
}
