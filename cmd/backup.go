package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-bundler/core/backup"
	bundlerconfig "github.com/AvaProtocol/ap-bundler/core/config"
	"github.com/AvaProtocol/ap-bundler/storage"
)

var (
	backupDir      string
	backupInterval time.Duration
	restoreFile    string

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Backup the bundler database",
		Long: `Backup the badger database holding settings and submission history.

Backups are stored in the format: <dir>/yy-mm-dd-hh-mm-ss/bundler.backup
Use --dir to override backup.dir from the config.
Use --interval to keep running and back up periodically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			dir := backupDir
			if dir == "" {
				dir = cfg.BackupDir
			}
			if dir == "" {
				return fmt.Errorf("no backup directory, set backup.dir or pass --dir")
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create backup directory: %w", err)
			}

			svc := backup.NewService(cfg.Logger, db, dir)
			out := cmd.OutOrStdout()

			backupFile, err := svc.PerformBackup()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✅ Backup completed successfully to %s\n", backupFile)

			if backupInterval <= 0 {
				return nil
			}
			if err := svc.StartPeriodicBackup(backupInterval); err != nil {
				return err
			}
			fmt.Fprintf(out, "⏳ Backing up every %s, Ctrl-C to stop\n", backupInterval)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			svc.StopPeriodicBackup()
			return nil
		},
	}

	restoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Restore the bundler database from a backup",
		Long: `Load a backup file into the configured database, which should be empty:
values written after the backup was taken win over the restored ones. The
bundler must be stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := backup.Restore(cmd.Context(), db, restoreFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Restore completed successfully from %s\n", restoreFile)
			return nil
		},
	}
)

func openDB() (*bundlerconfig.Config, storage.Storage, error) {
	cfg, err := bundlerconfig.NewConfig(config)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.NewWithPath(cfg.DbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open storage at %s: %w", cfg.DbPath, err)
	}
	return cfg, db, nil
}

func init() {
	backupCmd.Flags().StringVar(&backupDir, "dir", "", "directory to store backups, defaults to backup.dir")
	backupCmd.Flags().DurationVar(&backupInterval, "interval", 0, "back up periodically, e.g. 1h")
	rootCmd.AddCommand(backupCmd)

	restoreCmd.Flags().StringVar(&restoreFile, "file", "", "backup file to restore from (required)")
	restoreCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(restoreCmd)
}
