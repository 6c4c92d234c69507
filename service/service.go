// Package service wires the bundler components together and runs them.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AvaProtocol/ap-bundler/core/apiserver"
	"github.com/AvaProtocol/ap-bundler/core/backup"
	"github.com/AvaProtocol/ap-bundler/core/bundler"
	"github.com/AvaProtocol/ap-bundler/core/chainio"
	"github.com/AvaProtocol/ap-bundler/core/chainio/safe"
	"github.com/AvaProtocol/ap-bundler/core/chainio/signer"
	"github.com/AvaProtocol/ap-bundler/core/config"
	"github.com/AvaProtocol/ap-bundler/core/encoder"
	"github.com/AvaProtocol/ap-bundler/core/estimator"
	"github.com/AvaProtocol/ap-bundler/core/migrator"
	"github.com/AvaProtocol/ap-bundler/core/relay"
	"github.com/AvaProtocol/ap-bundler/core/session"
	"github.com/AvaProtocol/ap-bundler/core/settings"
	"github.com/AvaProtocol/ap-bundler/metrics"
	"github.com/AvaProtocol/ap-bundler/migrations"
	"github.com/AvaProtocol/ap-bundler/model"
	"github.com/AvaProtocol/ap-bundler/storage"
	"github.com/AvaProtocol/ap-bundler/version"
)

const shutdownTimeout = 10 * time.Second

type Status string

const (
	initStatus     Status = "init"
	runningStatus  Status = "running"
	shutdownStatus Status = "shutdown"
)

// Options tweak how the components are built.
type Options struct {
	// Signer overrides the signer built from the configured owner key.
	Signer signer.Signer
	// WrapSigner decorates the signer, e.g. to ask for confirmation.
	WrapSigner func(signer.Signer) signer.Signer
}

// RunWithConfig reads the config at configPath and serves until SIGINT or
// SIGTERM.
func RunWithConfig(configPath string) error {
	nodeConfig, err := config.NewConfig(configPath)
	if err != nil {
		panic(fmt.Errorf("Failed to parse config file: %s\nMake sure it is exist and a valid yaml file %w.", configPath, err))
	}

	ctx := context.Background()
	svc, err := New(ctx, nodeConfig, Options{})
	if err != nil {
		panic(fmt.Errorf("Cannot initialize bundler from config: %w", err))
	}

	return svc.Serve(ctx)
}

// Service owns every long lived component of one bundler instance.
type Service struct {
	config *config.Config
	logger sdklogging.Logger

	chain    *ethclient.Client
	db       storage.Storage
	redis    *settings.RedisKV
	registry *prometheus.Registry
	metrics  *metrics.BundlerMetrics
	backup   *backup.Service

	relay     *relay.Client
	settings  *settings.Store
	encoder   *encoder.Encoder
	estimator *estimator.Estimator
	accounts  *chainio.AccountReader
	account   *model.DelegatedAccount
	session   *session.Controller
	http      *apiserver.Server

	status Status
}

// New connects to the chain, opens storage and builds the session. Nothing
// runs in the background until Serve or Start.
func New(ctx context.Context, c *config.Config, opts Options) (*Service, error) {
	svc := &Service{
		config: c,
		logger: c.Logger,
		status: initStatus,
	}
	if err := svc.init(ctx, opts); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

func (svc *Service) init(ctx context.Context, opts Options) error {
	c := svc.config

	var err error
	svc.chain, err = chainio.Dial(ctx, c.EthRpcUrl)
	if err != nil {
		return err
	}
	chainID, err := svc.chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("cannot fetch chain id: %w", err)
	}
	if chainID.Cmp(c.ChainID) != 0 {
		return fmt.Errorf("rpc serves chain %s but config expects %s", chainID, c.ChainID)
	}
	svc.logger.Info("connected to chain", "chainId", chainID, "env", config.ChainEnvOf(chainID))

	svc.logger.Infof("Initialize Storage")
	if err := svc.initDB(); err != nil {
		return err
	}
	if err := svc.migrate(); err != nil {
		return err
	}

	svc.registry = prometheus.NewRegistry()
	svc.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc.metrics = metrics.NewBundlerMetrics(svc.registry)

	svc.relay, err = relay.New(c.Relay, svc.chain, svc.metrics, svc.logger)
	if err != nil {
		return err
	}

	signerImpl, err := svc.buildSigner(opts)
	if err != nil {
		return err
	}

	svc.accounts = chainio.NewAccountReader(svc.chain, c.Contracts.FeeToken)
	svc.encoder = encoder.New(c.EncoderConfig(), svc.chain, signerImpl, svc.relay, svc.accounts, svc.logger)
	svc.estimator = estimator.New(c.EstimatorConfig(), svc.chain, svc.relay, svc.metrics, svc.logger)

	address := c.Account
	if address == (common.Address{}) {
		address, err = svc.encoder.PredictAddress(ctx, c.Owners)
		if err != nil {
			return fmt.Errorf("cannot derive account address: %w", err)
		}
	}
	svc.account = &model.DelegatedAccount{
		Address:   address,
		Owners:    c.Owners,
		Threshold: 1,
	}
	if deployed, err := svc.accounts.IsDeployed(ctx, address); err != nil {
		svc.logger.Warn("cannot check account deployment", "account", address.Hex(), "error", err)
	} else if deployed {
		svc.account.MarkDeployed()
	}
	svc.logger.Info("delegated account", "account", address.Hex(), "deployed", svc.account.Deployed, "owner", signerImpl.Address().Hex())

	kv, err := svc.settingsKV()
	if err != nil {
		return err
	}
	svc.settings = settings.NewStore(kv, address, svc.logger)
	svc.settings.Load()

	calls := safe.NewTokenCalls(c.Contracts.FeeToken, c.Contracts.FlowForwarder)
	svc.session, err = session.New(c.Session, svc.account, session.Deps{
		Settings:  svc.settings,
		Builder:   bundler.NewBuilder(calls, svc.logger),
		Estimator: svc.estimator,
		Encoder:   svc.encoder,
		Relay:     svc.relay,
		Accounts:  svc.accounts,
		History:   svc.db,
		Metrics:   svc.metrics,
		Logger:    svc.logger,
	})
	if err != nil {
		return err
	}

	svc.http = apiserver.New(apiserver.Options{
		Session:   svc.session,
		Settings:  svc.settings,
		History:   svc.db,
		Account:   address,
		Registry:  svc.registry,
		JwtSecret: c.JwtSecret,
		Logger:    svc.logger,
	})
	return nil
}

func (svc *Service) initDB() error {
	var err error
	svc.db, err = storage.NewWithPath(svc.config.DbPath)
	if err != nil {
		return fmt.Errorf("cannot open storage at %s: %w", svc.config.DbPath, err)
	}
	return nil
}

func (svc *Service) migrate() error {
	if svc.config.BackupDir != "" {
		svc.backup = backup.NewService(svc.logger, svc.db, svc.config.BackupDir)
	}
	if err := migrator.NewMigrator(svc.db, svc.backup, migrations.Migrations, svc.logger).Run(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (svc *Service) settingsKV() (settings.KV, error) {
	if svc.config.SettingsBackend != config.SettingsBackendRedis {
		return svc.db, nil
	}
	kv, err := settings.NewRedisKV(svc.config.Redis)
	if err != nil {
		return nil, err
	}
	svc.redis = kv
	return kv, nil
}

func (svc *Service) buildSigner(opts Options) (signer.Signer, error) {
	s := opts.Signer
	if s == nil {
		if svc.config.OwnerPrivateKey == nil {
			return nil, errors.New("owner_private_key is required to sign executions")
		}
		s = signer.NewPrivateKeySigner(svc.config.OwnerPrivateKey)
	}
	if opts.WrapSigner != nil {
		s = opts.WrapSigner(s)
	}
	return s, nil
}

// Start arms the periodic rebuild of the session.
func (svc *Service) Start() error {
	return svc.session.Start()
}

// Serve runs the session and the http server until a signal arrives.
func (svc *Service) Serve(ctx context.Context) error {
	svc.logger.Infof("Starting bundler %s", version.Get())
	svc.initSentry()
	defer sentryFlushSafely(2 * time.Second)

	if err := svc.Start(); err != nil {
		return err
	}
	if svc.backup != nil && svc.config.BackupInterval > 0 {
		if err := svc.backup.StartPeriodicBackup(svc.config.BackupInterval); err != nil {
			return err
		}
	}

	svc.logger.Infof("Starting http server")
	errs := make(chan error, 1)
	goSafe(func() {
		errs <- svc.http.Start(svc.config.HTTPBindAddress)
	})
	svc.status = runningStatus

	// Setup wait signal
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	var runErr error
	select {
	case <-sigs:
	case <-ctx.Done():
	case runErr = <-errs:
		svc.logger.Error("http server stopped", "error", runErr)
	}
	svc.logger.Infof("Shutting down...")
	svc.status = shutdownStatus

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.http.Shutdown(shutdownCtx); err != nil {
		svc.logger.Warn("http server shutdown", "error", err)
	}

	svc.Close()
	return runErr
}

// Close releases every resource New acquired. Safe on a partly built service.
func (svc *Service) Close() {
	if svc.backup != nil {
		svc.backup.StopPeriodicBackup()
	}
	if svc.session != nil {
		if err := svc.session.Close(); err != nil {
			svc.logger.Warn("cannot close session", "error", err)
		}
	}
	if svc.relay != nil {
		svc.relay.Close()
	}
	if svc.redis != nil {
		svc.redis.Close()
	}
	if svc.db != nil {
		svc.db.Close()
	}
	if svc.chain != nil {
		svc.chain.Close()
	}
}

func (svc *Service) IsShutdown() bool {
	return svc.status == shutdownStatus
}

func (svc *Service) Config() *config.Config {
	return svc.config
}

func (svc *Service) Session() *session.Controller {
	return svc.session
}

func (svc *Service) Settings() *settings.Store {
	return svc.settings
}

func (svc *Service) Relay() *relay.Client {
	return svc.relay
}

func (svc *Service) DB() storage.Storage {
	return svc.db
}

func (svc *Service) Account() model.DelegatedAccount {
	return svc.session.Account()
}
