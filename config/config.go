package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var (
	ErrMissingChain     = errors.New("chain config is not specified")
	ErrMissingContract  = errors.New("contract address is not specified")
	ErrInvalidPollerCfg = errors.New("invalid poller config")
)

type RPCConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
	RPS     float64       `yaml:"rps"`
}

type ChainConfig struct {
	RPC     *RPCConfig `yaml:"rpc"`
	ChainID string     `yaml:"chain_id"`
}

type DomainConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ContractsConfig struct {
	DataPermissions   common.Address `yaml:"data_permissions"`
	Servers           common.Address `yaml:"servers"`
	Grantees          common.Address `yaml:"grantees"`
	Multicall         common.Address `yaml:"multicall"`
	PermissionsDomain *DomainConfig  `yaml:"permissions_domain"`
	ServersDomain     *DomainConfig  `yaml:"servers_domain"`
}

type RelayerConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	StatusRetries uint64        `yaml:"status_retries"`
}

type StorageConfig struct {
	IPFSAPI    string        `yaml:"ipfs_api"`
	GatewayURL string        `yaml:"gateway_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

type SignerConfig struct {
	PrivateKey string        `yaml:"private_key"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDuration time.Duration `yaml:"max_duration"`
}

type BatchConfig struct {
	Size        uint `yaml:"size"`
	UseRPCBatch bool `yaml:"use_rpc_batch"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type SweeperConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Config struct {
	Chain     *ChainConfig     `yaml:"chain"`
	Contracts *ContractsConfig `yaml:"contracts"`
	Relayer   *RelayerConfig   `yaml:"relayer"`
	Storage   *StorageConfig   `yaml:"storage"`
	Signer    *SignerConfig    `yaml:"signer"`
	Poller    *PollerConfig    `yaml:"poller"`
	Batch     *BatchConfig     `yaml:"batch"`
	DBConfig  *DBConfig        `yaml:"postgres"`
	Presenter *PresenterConfig `yaml:"presenter"`
	Sweeper   *SweeperConfig   `yaml:"pending_sweeper"`
	LogLevel  logrus.Level     `yaml:"log_level"`
}

func readYamlConfig(blob []byte) (*Config, error) {
	cfg := &Config{
		LogLevel: logrus.InfoLevel,
	}
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) init() error {
	if cfg.Chain == nil || cfg.Chain.RPC == nil || cfg.Chain.RPC.Host == "" {
		return ErrMissingChain
	}
	if cfg.Chain.RPC.Timeout == 0 {
		cfg.Chain.RPC.Timeout = 30 * time.Second
	}
	if cfg.Contracts == nil {
		return fmt.Errorf("contracts section is empty: %w", ErrMissingContract)
	}
	zero := common.Address{}
	for name, addr := range map[string]common.Address{
		"data_permissions": cfg.Contracts.DataPermissions,
		"servers":          cfg.Contracts.Servers,
		"grantees":         cfg.Contracts.Grantees,
	} {
		if addr == zero {
			return fmt.Errorf("%s: %w", name, ErrMissingContract)
		}
	}
	if cfg.Contracts.PermissionsDomain == nil {
		cfg.Contracts.PermissionsDomain = &DomainConfig{Name: "VanaDataPermissions", Version: "1"}
	}
	if cfg.Contracts.ServersDomain == nil {
		cfg.Contracts.ServersDomain = &DomainConfig{Name: "VanaDataPortabilityServers", Version: "1"}
	}
	if cfg.Relayer != nil && cfg.Relayer.Timeout == 0 {
		cfg.Relayer.Timeout = 30 * time.Second
	}
	if cfg.Storage != nil && cfg.Storage.Timeout == 0 {
		cfg.Storage.Timeout = time.Minute
	}
	if cfg.Signer == nil {
		cfg.Signer = new(SignerConfig)
	}
	if cfg.Signer.CacheTTL == 0 {
		cfg.Signer.CacheTTL = time.Hour
	}
	if cfg.Poller == nil {
		cfg.Poller = new(PollerConfig)
	}
	if err := cfg.Poller.init(); err != nil {
		return err
	}
	if cfg.Batch == nil {
		cfg.Batch = new(BatchConfig)
	}
	if cfg.Batch.Size == 0 {
		cfg.Batch.Size = 100
	}
	if cfg.Sweeper != nil {
		if cfg.Sweeper.Interval == 0 {
			cfg.Sweeper.Interval = time.Minute
		}
		if cfg.Sweeper.Timeout == 0 {
			cfg.Sweeper.Timeout = cfg.Poller.MaxDuration
		}
	}
	return nil
}

func (cfg *PollerConfig) init() error {
	if cfg.Interval == 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 1.5
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = 5 * time.Minute
	}
	if cfg.Multiplier < 1 {
		return fmt.Errorf("multiplier %f is less than 1: %w", cfg.Multiplier, ErrInvalidPollerCfg)
	}
	if cfg.MaxInterval < cfg.Interval {
		return fmt.Errorf("max_interval %s is less than interval %s: %w", cfg.MaxInterval, cfg.Interval, ErrInvalidPollerCfg)
	}
	return nil
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg, err := readYamlConfig(blob)
	if err != nil {
		return nil, err
	}
	if err = cfg.init(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfig(blob)
}
