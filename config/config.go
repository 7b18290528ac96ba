package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"nhbchain/core/protocol"
	"nhbchain/crypto"
)

// CodeOptions mirrors core/protocol.CodeOptions for TOML/YAML decoding.
type CodeOptions struct {
	MinLength             int     `toml:"MinLength" yaml:"minLength"`
	MinEntropyBitsPerByte float64 `toml:"MinEntropyBitsPerByte" yaml:"minEntropyBitsPerByte"`
}

// TimingOptions mirrors core/protocol.TimingOptions for TOML/YAML decoding.
// ApprovalDeadlinePolicy is a string ("MustHavePassed" or "NotYetPassed")
// rather than the raw uint8, so the config file stays self-describing.
type TimingOptions struct {
	MinPromiseTimeMillis   int64  `toml:"MinPromiseTimeMillis" yaml:"minPromiseTimeMillis"`
	ApprovalDeadlinePolicy string `toml:"ApprovalDeadlinePolicy" yaml:"approvalDeadlinePolicy"`
}

func (t TimingOptions) policy() protocol.ApprovalDeadlinePolicy {
	if t.ApprovalDeadlinePolicy == "NotYetPassed" {
		return protocol.DeadlineNotYetPassed
	}
	return protocol.DeadlineMustHavePassed
}

// StorageBackend selects which protocol.Storage implementation the node
// runs against.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageLevelDB  StorageBackend = "leveldb"
	StoragePostgres StorageBackend = "postgres"
	StorageSQLite   StorageBackend = "sqlite"
)

// StorageConfig selects and parametrizes the storage backend.
type StorageConfig struct {
	Backend StorageBackend `toml:"Backend" yaml:"backend"`
	// Path is the LevelDB directory or SQLite file path, depending on Backend.
	Path string `toml:"Path" yaml:"path"`
	// DSN is the PostgreSQL connection string, used only when Backend is postgres.
	DSN string `toml:"DSN" yaml:"dsn"`
}

// GossipConfig parametrizes the p2p transports. TokenTTL is nanoseconds when
// the config file is YAML (yaml.v3 has no TOML-style duration-string hook);
// TOML files may use either the duration string form or raw nanoseconds.
type GossipConfig struct {
	ListenAddress   string        `toml:"ListenAddress" yaml:"listenAddress"`
	WSListenAddress string        `toml:"WSListenAddress" yaml:"wsListenAddress"`
	TokenSecret     string        `toml:"TokenSecret" yaml:"tokenSecret"`
	TokenTTL        time.Duration `toml:"TokenTTL" yaml:"tokenTTL"`
	Nameserver      string        `toml:"Nameserver" yaml:"nameserver"`
	RatePerSecond   float64       `toml:"RatePerSecond" yaml:"ratePerSecond"`
	Burst           int           `toml:"Burst" yaml:"burst"`
}

// Config is the full node configuration: keystore location, storage and
// gossip backend selection, and the capability-agnostic protocol policy
// knobs (Code/Timing) threaded into protocol.Config. Load accepts either
// TOML (the default, written by createDefault) or YAML, selected by the
// config file's extension, mirroring the split in this codebase between
// the validator's TOML config and the gateway services' YAML configs.
type Config struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listenAddress"`
	RPCAddress    string `toml:"RPCAddress" yaml:"rpcAddress"`
	DataDir       string `toml:"DataDir" yaml:"dataDir"`

	// KeystorePath and KeystorePassphrase locate and unlock this node's
	// root key; the session signer derives per-transaction keys from it.
	// ValidatorKey, when set instead, is a raw hex-encoded private key used
	// only for local development where a keystore file is overkill.
	KeystorePath       string `toml:"KeystorePath" yaml:"keystorePath"`
	KeystorePassphrase string `toml:"KeystorePassphrase" yaml:"keystorePassphrase"`
	ValidatorKey       string `toml:"ValidatorKey" yaml:"validatorKey"`

	Storage StorageConfig `toml:"Storage" yaml:"storage"`
	Gossip  GossipConfig  `toml:"Gossip" yaml:"gossip"`
	Code    CodeOptions   `toml:"Code" yaml:"code"`
	Timing  TimingOptions `toml:"Timing" yaml:"timing"`

	// ArchivalPath, when non-empty, enables Parquet archival of
	// fully-committed records at this file path.
	ArchivalPath string `toml:"ArchivalPath" yaml:"archivalPath"`
}

// isYAML reports whether path's extension selects the YAML decoder/encoder
// instead of the default TOML ones.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// ProtocolConfig adapts the TOML-decoded policy knobs into
// core/protocol.Config.
func (c *Config) ProtocolConfig() protocol.Config {
	return protocol.Config{
		Code: protocol.CodeOptions{
			MinLength:             c.Code.MinLength,
			MinEntropyBitsPerByte: c.Code.MinEntropyBitsPerByte,
		},
		Timing: protocol.TimingOptions{
			MinPromiseTimeMillis:   c.Timing.MinPromiseTimeMillis,
			ApprovalDeadlinePolicy: c.Timing.policy(),
		},
	}
}

// Load loads the configuration from path, creating a default TOML file (with
// a freshly generated validator key) if none exists yet. A path ending in
// .yaml or .yml is decoded as YAML instead.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if cfg.ValidatorKey == "" && cfg.KeystorePath == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.ValidatorKey = hex.EncodeToString(key.Bytes())

		if err := writeConfig(path, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// writeConfig (re)writes cfg to path in the format selected by its extension.
func writeConfig(path string, cfg *Config) error {
	if isYAML(path) {
		raw, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		return os.WriteFile(path, raw, 0o644)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.ModePerm)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress: ":6001",
		RPCAddress:    ":8080",
		DataDir:       "./txnode-data",
		ValidatorKey:  hex.EncodeToString(key.Bytes()),
		Storage: StorageConfig{
			Backend: StorageMemory,
		},
		Gossip: GossipConfig{
			ListenAddress:   ":6501",
			WSListenAddress: ":6502",
			TokenTTL:        5 * time.Minute,
			RatePerSecond:   20,
			Burst:           5,
		},
		Code: CodeOptions{
			MinLength:             16,
			MinEntropyBitsPerByte: 3.0,
		},
		Timing: TimingOptions{
			MinPromiseTimeMillis:   30_000,
			ApprovalDeadlinePolicy: "MustHavePassed",
		},
	}

	if err := writeConfig(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
