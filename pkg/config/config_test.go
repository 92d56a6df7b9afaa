// Copyright 2025 Certen Protocol

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attestia.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, "environment: development\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EventStore.Backend != "memory" {
		t.Fatalf("expected default eventStore backend memory, got %s", cfg.EventStore.Backend)
	}
	if cfg.Witness.MaxAttempts != 5 {
		t.Fatalf("expected default witness max attempts 5, got %d", cfg.Witness.MaxAttempts)
	}
	if cfg.Database.MaxConns != 25 {
		t.Fatalf("expected default database max conns 25, got %d", cfg.Database.MaxConns)
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("ATTESTIA_TEST_RPC_URL", "https://rpc.example.com")
	path := writeTestConfig(t, "chains:\n  evm:\n    - chainId: \"eip155:1\"\n      rpcUrl: \"${ATTESTIA_TEST_RPC_URL}\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Chains.EVM) != 1 || cfg.Chains.EVM[0].RPCURL != "https://rpc.example.com" {
		t.Fatalf("expected env var substitution, got %+v", cfg.Chains.EVM)
	}
}

func TestLoadExpandsEnvironmentVariableDefault(t *testing.T) {
	path := writeTestConfig(t, "chains:\n  evm:\n    - chainId: \"eip155:1\"\n      rpcUrl: \"${ATTESTIA_UNSET_RPC_URL:-https://fallback.example.com}\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chains.EVM[0].RPCURL != "https://fallback.example.com" {
		t.Fatalf("expected default fallback, got %s", cfg.Chains.EVM[0].RPCURL)
	}
}

func TestDurationParsesGoDurationStrings(t *testing.T) {
	path := writeTestConfig(t, "witness:\n  baseRetryDelay: \"500ms\"\n  maxRetryDelay: \"1m\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Witness.BaseRetryDelay.Duration() != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %v", cfg.Witness.BaseRetryDelay.Duration())
	}
	if cfg.Witness.MaxRetryDelay.Duration() != time.Minute {
		t.Fatalf("expected 1m, got %v", cfg.Witness.MaxRetryDelay.Duration())
	}
}

func TestGovernanceQuorumDefaultsToSimpleMajority(t *testing.T) {
	path := writeTestConfig(t, "governance:\n  signers: [\"addr1\", \"addr2\", \"addr3\"]\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Governance.Quorum != 2 {
		t.Fatalf("expected default quorum of 2 for 3 signers, got %d", cfg.Governance.Quorum)
	}
}

func TestValidateRejectsFileBackendWithoutPath(t *testing.T) {
	cfg := &Config{EventStore: EventStoreConfig{Backend: "file"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for file backend with no path")
	}
}

func TestValidateRejectsPostgresSnapshotWithoutDatabaseURL(t *testing.T) {
	cfg := &Config{Snapshot: SnapshotConfig{Backend: "postgres"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for postgres snapshot backend with no database url")
	}
}

func TestValidateRejectsQuorumExceedingSignerCount(t *testing.T) {
	cfg := &Config{Governance: GovernanceConfig{Quorum: 3, Signers: []string{"a", "b"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for quorum exceeding signer count")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &Config{
		EventStore: EventStoreConfig{Backend: "memory"},
		Snapshot:   SnapshotConfig{Backend: "memory"},
		Governance: GovernanceConfig{Quorum: 2, Signers: []string{"a", "b", "c"}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestToDatabaseConfigConvertsSecondsFromDuration(t *testing.T) {
	d := DatabaseConfig{URL: "postgres://x", MaxConns: 10, MinConns: 2, MaxIdleTime: Duration(30 * time.Second), MaxLifetime: Duration(time.Hour)}
	dc := d.ToDatabaseConfig()
	if dc.DatabaseURL != "postgres://x" || dc.DatabaseMaxConns != 10 || dc.DatabaseMinConns != 2 {
		t.Fatalf("unexpected conversion: %+v", dc)
	}
	if dc.DatabaseMaxIdleTime != 30 || dc.DatabaseMaxLifetime != 3600 {
		t.Fatalf("expected seconds conversion, got %+v", dc)
	}
}
