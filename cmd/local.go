package cmd

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	bundlerconfig "github.com/AvaProtocol/ap-bundler/core/config"
	"github.com/AvaProtocol/ap-bundler/core/settings"
	"github.com/AvaProtocol/ap-bundler/storage"
)

// local gives offline commands the storage of a stopped bundler. Badger
// holds a lock on its directory so these fail while `serve` runs.
type local struct {
	cfg     *bundlerconfig.Config
	db      storage.Storage
	redis   *settings.RedisKV
	account common.Address
}

func openLocal(accountFlag string) (*local, error) {
	if accountFlag != "" && !common.IsHexAddress(accountFlag) {
		return nil, fmt.Errorf("invalid account address %q", accountFlag)
	}

	cfg, db, err := openDB()
	if err != nil {
		return nil, err
	}

	l := &local{cfg: cfg, db: db, account: cfg.Account}
	if accountFlag != "" {
		l.account = common.HexToAddress(accountFlag)
	}

	if cfg.SettingsBackend == bundlerconfig.SettingsBackendRedis {
		if l.redis, err = settings.NewRedisKV(cfg.Redis); err != nil {
			l.Close()
			return nil, err
		}
	}
	return l, nil
}

func (l *local) requireAccount() error {
	if l.account == (common.Address{}) {
		return errors.New("no account configured, pass --account")
	}
	return nil
}

func (l *local) settingsStore() *settings.Store {
	var kv settings.KV = l.db
	if l.redis != nil {
		kv = l.redis
	}
	store := settings.NewStore(kv, l.account, l.cfg.Logger)
	store.Load()
	return store
}

func (l *local) Close() {
	if l.redis != nil {
		l.redis.Close()
	}
	l.db.Close()
}

func addAccountFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "account", "", "delegated account address, defaults to the configured one")
}
