package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"agorachain/native/marketplace"
)

// Config is the host daemon configuration.
type Config struct {
	DataDir        string      `toml:"DataDir"`
	MetricsAddress string      `toml:"MetricsAddress"`
	NetworkName    string      `toml:"NetworkName"`
	TickInterval   string      `toml:"TickInterval"`
	Marketplace    Marketplace `toml:"marketplace"`
}

// Marketplace carries the tunable module parameters. Zero values fall back to
// the module defaults so a minimal config file stays minimal.
type Marketplace struct {
	MaxNameLength                 int    `toml:"MaxNameLength"`
	MaxDescriptionLength          int    `toml:"MaxDescriptionLength"`
	MaxTagLength                  int    `toml:"MaxTagLength"`
	MaxTagsPerListing             int    `toml:"MaxTagsPerListing"`
	MaxMilestonesPerInvocation    int    `toml:"MaxMilestonesPerInvocation"`
	MaxMilestoneDescriptionLength int    `toml:"MaxMilestoneDescriptionLength"`
	MaxReasonLength               int    `toml:"MaxReasonLength"`
	MaxReferenceLength            int    `toml:"MaxReferenceLength"`
	MaxListingsPerProvider        int    `toml:"MaxListingsPerProvider"`
	MaxListingsPerTag             int    `toml:"MaxListingsPerTag"`
	MaxOpenInvocationsPerListing  int    `toml:"MaxOpenInvocationsPerListing"`
	MaxOpenInvocationsPerInvoker  int    `toml:"MaxOpenInvocationsPerInvoker"`
	MaxAutoApproveDelayTicks      uint64 `toml:"MaxAutoApproveDelayTicks"`
	CatalogMinReputation          uint64 `toml:"CatalogMinReputation"`
	ExpiryBounty                  string `toml:"ExpiryBounty"`
	SweepBatchSize                int    `toml:"SweepBatchSize"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "agora-local"
	}
	if strings.TrimSpace(cfg.TickInterval) == "" {
		cfg.TickInterval = "1s"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:        "./data",
		MetricsAddress: "127.0.0.1:9464",
		NetworkName:    "agora-local",
		TickInterval:   "1s",
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MarketplaceParams merges the configured overrides onto the module defaults
// and validates the result.
func (c *Config) MarketplaceParams() (marketplace.Params, error) {
	params := marketplace.DefaultParams()
	m := c.Marketplace
	if m.MaxNameLength > 0 {
		params.MaxNameLength = m.MaxNameLength
	}
	if m.MaxDescriptionLength > 0 {
		params.MaxDescriptionLength = m.MaxDescriptionLength
	}
	if m.MaxTagLength > 0 {
		params.MaxTagLength = m.MaxTagLength
	}
	if m.MaxTagsPerListing > 0 {
		params.MaxTagsPerListing = m.MaxTagsPerListing
	}
	if m.MaxMilestonesPerInvocation > 0 {
		params.MaxMilestonesPerInvocation = m.MaxMilestonesPerInvocation
	}
	if m.MaxMilestoneDescriptionLength > 0 {
		params.MaxMilestoneDescriptionLength = m.MaxMilestoneDescriptionLength
	}
	if m.MaxReasonLength > 0 {
		params.MaxReasonLength = m.MaxReasonLength
	}
	if m.MaxReferenceLength > 0 {
		params.MaxReferenceLength = m.MaxReferenceLength
	}
	if m.MaxListingsPerProvider > 0 {
		params.MaxListingsPerProvider = m.MaxListingsPerProvider
	}
	if m.MaxListingsPerTag > 0 {
		params.MaxListingsPerTag = m.MaxListingsPerTag
	}
	if m.MaxOpenInvocationsPerListing > 0 {
		params.MaxOpenInvocationsPerListing = m.MaxOpenInvocationsPerListing
	}
	if m.MaxOpenInvocationsPerInvoker > 0 {
		params.MaxOpenInvocationsPerInvoker = m.MaxOpenInvocationsPerInvoker
	}
	if m.MaxAutoApproveDelayTicks > 0 {
		params.MaxAutoApproveDelayTicks = m.MaxAutoApproveDelayTicks
	}
	if m.CatalogMinReputation > 0 {
		params.CatalogMinReputation = m.CatalogMinReputation
	}
	if strings.TrimSpace(m.ExpiryBounty) != "" {
		bounty, ok := new(big.Int).SetString(strings.TrimSpace(m.ExpiryBounty), 10)
		if !ok || bounty.Sign() < 0 {
			return marketplace.Params{}, fmt.Errorf("config: invalid ExpiryBounty %q", m.ExpiryBounty)
		}
		params.ExpiryBounty = bounty
	}
	if m.SweepBatchSize > 0 {
		params.SweepBatchSize = m.SweepBatchSize
	}
	if err := params.Validate(); err != nil {
		return marketplace.Params{}, err
	}
	return params, nil
}
