package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
	if cfg.DataDir != "./data" || cfg.NetworkName != "agora-local" || cfg.TickInterval != "1s" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	params, err := cfg.MarketplaceParams()
	if err != nil {
		t.Fatalf("MarketplaceParams: %v", err)
	}
	if params.SweepBatchSize != 32 {
		t.Fatalf("SweepBatchSize = %d, want default 32", params.SweepBatchSize)
	}
}

func TestLoadAppliesDefaultsToSparseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("MetricsAddress = \"127.0.0.1:9999\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MetricsAddress != "127.0.0.1:9999" {
		t.Fatalf("MetricsAddress = %q", cfg.MetricsAddress)
	}
	if cfg.DataDir != "./data" || cfg.TickInterval != "1s" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestMarketplaceParamsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
DataDir = "/var/lib/agora"

[marketplace]
MaxTagsPerListing = 4
CatalogMinReputation = 25
ExpiryBounty = "500"
SweepBatchSize = 8
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	params, err := cfg.MarketplaceParams()
	if err != nil {
		t.Fatalf("MarketplaceParams: %v", err)
	}
	if params.MaxTagsPerListing != 4 || params.CatalogMinReputation != 25 || params.SweepBatchSize != 8 {
		t.Fatalf("overrides not applied: %+v", params)
	}
	if params.ExpiryBounty.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("ExpiryBounty = %s, want 500", params.ExpiryBounty)
	}
	// Untouched values keep the module defaults.
	if params.MaxNameLength != 64 {
		t.Fatalf("MaxNameLength = %d, want default 64", params.MaxNameLength)
	}
}

func TestMarketplaceParamsRejectsBadBounty(t *testing.T) {
	cfg := &Config{Marketplace: Marketplace{ExpiryBounty: "not-a-number"}}
	if _, err := cfg.MarketplaceParams(); err == nil {
		t.Fatalf("invalid bounty accepted")
	}
	cfg = &Config{Marketplace: Marketplace{ExpiryBounty: "-5"}}
	if _, err := cfg.MarketplaceParams(); err == nil {
		t.Fatalf("negative bounty accepted")
	}
}
