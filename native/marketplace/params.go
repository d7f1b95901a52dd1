package marketplace

import (
	"fmt"
	"math/big"
)

// Params bounds every capacity-limited collection and tunes the sweeper.
// Defaults suit a development network; hosts override them through the
// [marketplace] config table.
type Params struct {
	MaxNameLength                 int
	MaxDescriptionLength          int
	MaxTagLength                  int
	MaxTagsPerListing             int
	MaxMilestonesPerInvocation    int
	MaxMilestoneDescriptionLength int
	MaxReasonLength               int
	MaxReferenceLength            int
	MaxListingsPerProvider        int
	MaxListingsPerTag             int
	MaxOpenInvocationsPerListing  int
	MaxOpenInvocationsPerInvoker  int
	MaxAutoApproveDelayTicks      uint64
	CatalogMinReputation          uint64
	ExpiryBounty                  *big.Int
	SweepBatchSize                int
}

// DefaultParams returns the development defaults.
func DefaultParams() Params {
	return Params{
		MaxNameLength:                 64,
		MaxDescriptionLength:          512,
		MaxTagLength:                  32,
		MaxTagsPerListing:             8,
		MaxMilestonesPerInvocation:    16,
		MaxMilestoneDescriptionLength: 256,
		MaxReasonLength:               512,
		MaxReferenceLength:            256,
		MaxListingsPerProvider:        64,
		MaxListingsPerTag:             1024,
		MaxOpenInvocationsPerListing:  1024,
		MaxOpenInvocationsPerInvoker:  256,
		MaxAutoApproveDelayTicks:      100_000,
		CatalogMinReputation:          10,
		ExpiryBounty:                  big.NewInt(100),
		SweepBatchSize:                32,
	}
}

// Validate rejects parameter sets that would make the module inoperable.
func (p Params) Validate() error {
	if p.MaxNameLength <= 0 || p.MaxDescriptionLength <= 0 || p.MaxTagLength <= 0 {
		return fmt.Errorf("marketplace: field capacities must be positive")
	}
	if p.MaxTagsPerListing <= 0 {
		return fmt.Errorf("marketplace: tag cap must be positive")
	}
	if p.MaxMilestonesPerInvocation <= 0 || p.MaxMilestoneDescriptionLength <= 0 {
		return fmt.Errorf("marketplace: milestone caps must be positive")
	}
	if p.MaxReasonLength <= 0 || p.MaxReferenceLength <= 0 {
		return fmt.Errorf("marketplace: dispute field capacities must be positive")
	}
	if p.MaxListingsPerProvider <= 0 || p.MaxListingsPerTag <= 0 {
		return fmt.Errorf("marketplace: listing index caps must be positive")
	}
	if p.MaxOpenInvocationsPerListing <= 0 || p.MaxOpenInvocationsPerInvoker <= 0 {
		return fmt.Errorf("marketplace: invocation index caps must be positive")
	}
	if p.ExpiryBounty == nil || p.ExpiryBounty.Sign() < 0 {
		return fmt.Errorf("marketplace: expiry bounty must be non-negative")
	}
	if p.SweepBatchSize <= 0 {
		return fmt.Errorf("marketplace: sweep batch size must be positive")
	}
	return nil
}
