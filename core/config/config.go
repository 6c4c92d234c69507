package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/AvaProtocol/ap-bundler/core/encoder"
	"github.com/AvaProtocol/ap-bundler/core/estimator"
	"github.com/AvaProtocol/ap-bundler/core/relay"
	"github.com/AvaProtocol/ap-bundler/core/session"
	"github.com/AvaProtocol/ap-bundler/core/settings"
)

const (
	SettingsBackendBadger = "badger"
	SettingsBackendRedis  = "redis"

	defaultHTTPBindAddress = "localhost:2206"
)

// Config is the resolved bundler configuration.
type Config struct {
	Environment sdklogging.LogLevel
	Logger      sdklogging.Logger

	EthRpcUrl string
	ChainID   *big.Int
	DbPath    string

	// BackupDir receives a backup before migrations and, when
	// BackupInterval is set, periodic ones. Empty disables backups.
	BackupDir      string
	BackupInterval time.Duration

	// OwnerPrivateKey signs execution requests. Nil when the signer is
	// provided some other way.
	OwnerPrivateKey *ecdsa.PrivateKey `json:"-"`
	Owners          []common.Address
	// Account is the delegated account. Zero means it is derived from the
	// owners and the salt nonce.
	Account   common.Address
	SaltNonce *big.Int

	HTTPBindAddress string
	// JwtSecret signs API keys. When empty the HTTP API is unauthenticated.
	JwtSecret []byte `json:"-"`

	SettingsBackend string
	Redis           settings.RedisConfig `json:"-"`

	Relay     relay.Config `json:"-"`
	Contracts ContractsConfig
	Session   session.Config
}

type ContractsConfig struct {
	SafeSingleton      common.Address
	ProxyFactory       common.Address
	FallbackHandler    common.Address
	MultiSend          common.Address
	SimulateTxAccessor common.Address
	FeeToken           common.Address
	FlowForwarder      common.Address
	L1GasOracle        common.Address
	SponsorCollector   common.Address
	RelayFeeCollector  common.Address
}

// These are read from the yaml file
type ConfigRaw struct {
	Environment     sdklogging.LogLevel `yaml:"environment" validate:"omitempty,oneof=development production"`
	EthRpcUrl       string              `yaml:"eth_rpc_url" validate:"required,url"`
	ChainID         uint64              `yaml:"chain_id" validate:"required"`
	DbPath          string              `yaml:"db_path" validate:"required"`
	OwnerPrivateKey string              `yaml:"owner_private_key"`
	Owners          []string            `yaml:"owners" validate:"dive,eth_addr"`
	Account         string              `yaml:"account" validate:"omitempty,eth_addr"`
	SaltNonce       string              `yaml:"salt_nonce" validate:"omitempty,number"`
	HTTPBindAddress string              `yaml:"http_bind_address" validate:"omitempty,hostname_port"`
	JwtSecret       string              `yaml:"jwt_secret" validate:"omitempty,min=32"`

	Backup    BackupRaw    `yaml:"backup"`
	Settings  SettingsRaw  `yaml:"settings"`
	Relay     RelayRaw     `yaml:"relay"`
	Contracts ContractsRaw `yaml:"contracts"`
	Session   SessionRaw   `yaml:"session"`
}

type BackupRaw struct {
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
}

type SettingsRaw struct {
	Backend string   `yaml:"backend" validate:"omitempty,oneof=badger redis"`
	Redis   RedisRaw `yaml:"redis"`
}

type RedisRaw struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RelayRaw struct {
	URL             string        `yaml:"url" validate:"required,url"`
	APIKey          string        `yaml:"api_key"`
	PollInterval    time.Duration `yaml:"poll_interval" validate:"gte=0"`
	MaxWait         time.Duration `yaml:"max_wait" validate:"gte=0"`
	ReceiptInterval time.Duration `yaml:"receipt_interval" validate:"gte=0"`
	FeeCacheTTL     time.Duration `yaml:"fee_cache_ttl"`
	HighPriority    bool          `yaml:"high_priority"`
	Timeout         time.Duration `yaml:"timeout" validate:"gte=0"`
}

type ContractsRaw struct {
	SafeSingleton      string `yaml:"safe_singleton" validate:"required,eth_addr"`
	ProxyFactory       string `yaml:"proxy_factory" validate:"required,eth_addr"`
	FallbackHandler    string `yaml:"fallback_handler" validate:"required,eth_addr"`
	MultiSend          string `yaml:"multi_send" validate:"required,eth_addr"`
	SimulateTxAccessor string `yaml:"simulate_tx_accessor" validate:"required,eth_addr"`
	FeeToken           string `yaml:"fee_token" validate:"required,eth_addr"`
	FlowForwarder      string `yaml:"flow_forwarder" validate:"required,eth_addr"`
	L1GasOracle        string `yaml:"l1_gas_oracle" validate:"omitempty,eth_addr"`
	SponsorCollector   string `yaml:"sponsor_collector" validate:"required,eth_addr"`
	RelayFeeCollector  string `yaml:"relay_fee_collector" validate:"required,eth_addr"`
}

type SessionRaw struct {
	RebuildInterval time.Duration `yaml:"rebuild_interval" validate:"gte=0"`
	AutoRefund      bool          `yaml:"auto_refund"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ReadYamlConfig decodes the yaml file at path into out.
func ReadYamlConfig(path string, out interface{}) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(body, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// NewConfig reads and validates the yaml config at configFilePath.
func NewConfig(configFilePath string) (*Config, error) {
	var raw ConfigRaw
	if err := ReadYamlConfig(configFilePath, &raw); err != nil {
		return nil, err
	}
	return FromRaw(&raw)
}

func FromRaw(raw *ConfigRaw) (*Config, error) {
	if raw.Environment == "" {
		raw.Environment = sdklogging.Development
	}
	if raw.Settings.Backend == "" {
		raw.Settings.Backend = SettingsBackendBadger
	}
	if err := raw.validate(); err != nil {
		return nil, err
	}

	logger, err := sdklogging.NewZapLogger(raw.Environment)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Environment:     raw.Environment,
		Logger:          logger,
		EthRpcUrl:       raw.EthRpcUrl,
		ChainID:         new(big.Int).SetUint64(raw.ChainID),
		DbPath:          raw.DbPath,
		BackupDir:       raw.Backup.Dir,
		BackupInterval:  raw.Backup.Interval,
		Owners:          convertToAddressSlice(raw.Owners),
		Account:         common.HexToAddress(raw.Account),
		HTTPBindAddress: raw.HTTPBindAddress,
		SettingsBackend: raw.Settings.Backend,
		Redis: settings.RedisConfig{
			Address:  raw.Settings.Redis.Address,
			Password: raw.Settings.Redis.Password,
			DB:       raw.Settings.Redis.DB,
			Prefix:   raw.Settings.Redis.Prefix,
			Timeout:  raw.Settings.Redis.Timeout,
		},
		Relay: relay.Config{
			URL:             raw.Relay.URL,
			APIKey:          raw.Relay.APIKey,
			PollInterval:    raw.Relay.PollInterval,
			MaxWait:         raw.Relay.MaxWait,
			ReceiptInterval: raw.Relay.ReceiptInterval,
			FeeCacheTTL:     raw.Relay.FeeCacheTTL,
			HighPriority:    raw.Relay.HighPriority,
			Timeout:         raw.Relay.Timeout,
		},
		Contracts: ContractsConfig{
			SafeSingleton:      common.HexToAddress(raw.Contracts.SafeSingleton),
			ProxyFactory:       common.HexToAddress(raw.Contracts.ProxyFactory),
			FallbackHandler:    common.HexToAddress(raw.Contracts.FallbackHandler),
			MultiSend:          common.HexToAddress(raw.Contracts.MultiSend),
			SimulateTxAccessor: common.HexToAddress(raw.Contracts.SimulateTxAccessor),
			FeeToken:           common.HexToAddress(raw.Contracts.FeeToken),
			FlowForwarder:      common.HexToAddress(raw.Contracts.FlowForwarder),
			L1GasOracle:        common.HexToAddress(raw.Contracts.L1GasOracle),
			SponsorCollector:   common.HexToAddress(raw.Contracts.SponsorCollector),
			RelayFeeCollector:  common.HexToAddress(raw.Contracts.RelayFeeCollector),
		},
		Session: session.Config{
			RebuildInterval: raw.Session.RebuildInterval,
			AutoRefund:      raw.Session.AutoRefund,
		},
	}
	if raw.JwtSecret != "" {
		config.JwtSecret = []byte(raw.JwtSecret)
	}
	if config.HTTPBindAddress == "" {
		config.HTTPBindAddress = defaultHTTPBindAddress
	}
	// a negative ttl turns the fee quote cache off
	switch {
	case raw.Relay.FeeCacheTTL == 0:
		config.Relay.FeeCacheTTL = relay.DefaultFeeCacheTTL
	case raw.Relay.FeeCacheTTL < 0:
		config.Relay.FeeCacheTTL = 0
	}

	if raw.OwnerPrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(raw.OwnerPrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("cannot parse owner private key: %w", err)
		}
		config.OwnerPrivateKey = key
		owner := crypto.PubkeyToAddress(key.PublicKey)
		if len(config.Owners) == 0 {
			config.Owners = []common.Address{owner}
		}
	}
	if len(config.Owners) == 0 {
		return nil, fmt.Errorf("config: owners or owner_private_key is required")
	}

	if raw.SaltNonce != "" {
		config.SaltNonce, _ = new(big.Int).SetString(raw.SaltNonce, 10)
	}

	return config, nil
}

func (raw *ConfigRaw) validate() error {
	if err := validate.Struct(raw); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if raw.Backup.Interval > 0 && raw.Backup.Dir == "" {
		return fmt.Errorf("invalid config: backup.dir is required for periodic backups")
	}
	if raw.Settings.Backend == SettingsBackendRedis && raw.Settings.Redis.Address == "" {
		return fmt.Errorf("invalid config: settings.redis.address is required for the redis backend")
	}
	return nil
}

// EncoderConfig is the part of the config the transaction encoder needs.
func (c *Config) EncoderConfig() encoder.Config {
	return encoder.Config{
		Contracts: encoder.Contracts{
			Singleton:         c.Contracts.SafeSingleton,
			ProxyFactory:      c.Contracts.ProxyFactory,
			FallbackHandler:   c.Contracts.FallbackHandler,
			MultiSend:         c.Contracts.MultiSend,
			SponsorCollector:  c.Contracts.SponsorCollector,
			RelayFeeCollector: c.Contracts.RelayFeeCollector,
		},
		ChainID:   c.ChainID,
		SaltNonce: c.SaltNonce,
	}
}

func (c *Config) EstimatorConfig() estimator.Config {
	return estimator.Config{
		ChainID:            c.ChainID,
		MultiSend:          c.Contracts.MultiSend,
		SimulateTxAccessor: c.Contracts.SimulateTxAccessor,
		FeeToken:           c.Contracts.FeeToken,
		L1GasOracle:        c.Contracts.L1GasOracle,
	}
}
