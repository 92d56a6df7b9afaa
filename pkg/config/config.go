// Copyright 2025 Certen Protocol

// Package config loads the structured option types each Attestia component
// constructor takes, from a YAML file with environment-variable overlay.
// There is no implicit global config: callers load a Config once at
// startup and pass the relevant section's struct into each component's
// constructor (pkg/chain/evm.Config, pkg/database.Config, and so on).
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/certen/attestia/pkg/database"
	"gopkg.in/yaml.v3"
)

// Config is the root of an Attestia node's static configuration.
type Config struct {
	Environment string         `yaml:"environment"`
	Logging     LoggingConfig  `yaml:"logging"`
	EventStore  EventStoreConfig `yaml:"eventStore"`
	Snapshot    SnapshotConfig `yaml:"snapshot"`
	Database    DatabaseConfig `yaml:"database"`
	Chains      ChainsConfig   `yaml:"chains"`
	Governance  GovernanceConfig `yaml:"governance"`
	Witness     WitnessConfig  `yaml:"witness"`
}

// LoggingConfig controls the per-component log.Logger prefix/verbosity.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text" or "json"
}

// EventStoreConfig selects the event store's durable backend.
type EventStoreConfig struct {
	Backend string `yaml:"backend"` // "memory", "file", or "kv"
	Path    string `yaml:"path"`    // JSONL file path, when Backend == "file"
}

// SnapshotConfig selects the snapshot store's backend.
type SnapshotConfig struct {
	Backend string `yaml:"backend"` // "memory", "kv", or "postgres"
	Dir     string `yaml:"dir"`     // base directory, when Backend == "kv"
}

// DatabaseConfig mirrors pkg/database.Config for YAML loading.
type DatabaseConfig struct {
	URL         string   `yaml:"url"`
	MaxConns    int      `yaml:"maxConns"`
	MinConns    int      `yaml:"minConns"`
	MaxIdleTime Duration `yaml:"maxIdleTime"`
	MaxLifetime Duration `yaml:"maxLifetime"`
}

// ToDatabaseConfig converts the YAML-facing shape into pkg/database.Config.
func (d DatabaseConfig) ToDatabaseConfig() database.Config {
	return database.Config{
		DatabaseURL:         d.URL,
		DatabaseMaxConns:    d.MaxConns,
		DatabaseMinConns:    d.MinConns,
		DatabaseMaxIdleTime: int(d.MaxIdleTime.Duration().Seconds()),
		DatabaseMaxLifetime: int(d.MaxLifetime.Duration().Seconds()),
	}
}

// ChainsConfig holds one entry per observed chain family.
type ChainsConfig struct {
	EVM    []EVMChainConfig    `yaml:"evm"`
	Solana []SolanaChainConfig `yaml:"solana"`
	XRPL   []XRPLChainConfig   `yaml:"xrpl"`
}

// EVMChainConfig mirrors pkg/chain/evm.Config for YAML loading.
type EVMChainConfig struct {
	ChainID               string `yaml:"chainId"`
	RPCURL                string `yaml:"rpcUrl"`
	NativeSymbol          string `yaml:"nativeSymbol"`
	NativeDecimals        int    `yaml:"nativeDecimals"`
	RequiredConfirmations int64  `yaml:"requiredConfirmations"`
}

// SolanaChainConfig mirrors pkg/chain/solana.Config for YAML loading.
type SolanaChainConfig struct {
	ChainID  string `yaml:"chainId"`
	RPCURL   string `yaml:"rpcUrl"`
	Decimals int    `yaml:"decimals"`
}

// XRPLChainConfig mirrors pkg/chain/xrpl.Config for YAML loading.
type XRPLChainConfig struct {
	ChainID  string `yaml:"chainId"`
	RPCURL   string `yaml:"rpcUrl"`
	Decimals int    `yaml:"decimals"`
}

// GovernanceConfig seeds the initial signer set and quorum.
type GovernanceConfig struct {
	Quorum  int      `yaml:"quorum"`
	Signers []string `yaml:"signers"` // addresses, order is registration order
}

// WitnessConfig mirrors pkg/witness.Config plus the BLS signing domain.
type WitnessConfig struct {
	ChainID        string   `yaml:"chainId"`
	WitnessAccount string   `yaml:"witnessAccount"`
	Domain         string   `yaml:"domain"`
	BaseRetryDelay Duration `yaml:"baseRetryDelay"`
	MaxRetryDelay  Duration `yaml:"maxRetryDelay"`
	MaxAttempts    int      `yaml:"maxAttempts"`
}

// Duration wraps time.Duration so YAML carries "30s"-style strings rather
// than raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads path as YAML, expanding ${VAR_NAME} / ${VAR_NAME:-default}
// references against the process environment before parsing, then applies
// defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.EventStore.Backend == "" {
		c.EventStore.Backend = "memory"
	}
	if c.Snapshot.Backend == "" {
		c.Snapshot.Backend = "memory"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 25
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 5
	}
	if c.Database.MaxIdleTime == 0 {
		c.Database.MaxIdleTime = Duration(5 * time.Minute)
	}
	if c.Database.MaxLifetime == 0 {
		c.Database.MaxLifetime = Duration(time.Hour)
	}
	if c.Witness.BaseRetryDelay == 0 {
		c.Witness.BaseRetryDelay = Duration(2 * time.Second)
	}
	if c.Witness.MaxRetryDelay == 0 {
		c.Witness.MaxRetryDelay = Duration(30 * time.Second)
	}
	if c.Witness.MaxAttempts == 0 {
		c.Witness.MaxAttempts = 5
	}
	if c.Governance.Quorum == 0 && len(c.Governance.Signers) > 0 {
		// Default to a simple majority when not stated explicitly.
		c.Governance.Quorum = len(c.Governance.Signers)/2 + 1
	}
}
