package marketplace

import (
	"fmt"
	"math/big"
	"strings"

	"agorachain/core/events"
	nativecommon "agorachain/native/common"
)

// ListingTerms is the caller-supplied shape for CreateListing.
type ListingTerms struct {
	Name                  string
	Description           string
	Tags                  []string
	MinPrice              *big.Int
	MaxPrice              *big.Int
	PaymentMode           string
	SLAResponseTicks      uint64
	AutoApproveDelayTicks uint64
	MinReputation         uint64
	RequireMilestones     bool
}

// ListingUpdate patches the mutable fields of a listing. Nil fields are left
// untouched. Tags are fixed at creation time; remove a listing from discovery
// by delisting it.
type ListingUpdate struct {
	Name                  *string
	Description           *string
	MinPrice              *big.Int
	MaxPrice              *big.Int
	PaymentMode           *string
	SLAResponseTicks      *uint64
	AutoApproveDelayTicks *uint64
	MinReputation         *uint64
	RequireMilestones     *bool
}

// Catalog manages persistence and discovery of service listings.
type Catalog struct {
	st         State
	reputation ReputationOracle
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	params     Params
	tickFn     func() uint64
}

// NewCatalog creates a catalog backed by the provided state manager and
// reputation oracle.
func NewCatalog(st State, reputation ReputationOracle) *Catalog {
	return &Catalog{
		st:         st,
		reputation: reputation,
		emitter:    events.NoopEmitter{},
		params:     DefaultParams(),
		tickFn:     func() uint64 { return 0 },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (c *Catalog) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// SetPauses wires the module pause view.
func (c *Catalog) SetPauses(p nativecommon.PauseView) {
	if c == nil {
		return
	}
	c.pauses = p
}

// SetParams overrides the capacity parameters.
func (c *Catalog) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.params = p
	return nil
}

// SetTickFunc configures the tick source used for creation and update
// timestamps.
func (c *Catalog) SetTickFunc(tick func() uint64) {
	if tick == nil {
		c.tickFn = func() uint64 { return 0 }
		return
	}
	c.tickFn = tick
}

func (c *Catalog) tick() uint64 {
	if c == nil || c.tickFn == nil {
		return 0
	}
	return c.tickFn()
}

func (c *Catalog) emit(evt events.Event) {
	if c == nil || c.emitter == nil || evt == nil {
		return
	}
	c.emitter.Emit(evt)
}

func (c *Catalog) validateTerms(terms *ListingTerms) error {
	name := strings.TrimSpace(terms.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > c.params.MaxNameLength {
		return ErrNameTooLong
	}
	if len(terms.Description) > c.params.MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if len(terms.Tags) > c.params.MaxTagsPerListing {
		return ErrTooManyTags
	}
	seen := make(map[string]struct{}, len(terms.Tags))
	for _, tag := range terms.Tags {
		trimmed := strings.ToLower(strings.TrimSpace(tag))
		if trimmed == "" {
			return ErrEmptyTag
		}
		if len(trimmed) > c.params.MaxTagLength {
			return ErrTagTooLong
		}
		if _, dup := seen[trimmed]; dup {
			return fmt.Errorf("%w: duplicate tag %q", ErrTooManyTags, trimmed)
		}
		seen[trimmed] = struct{}{}
	}
	if terms.MinPrice == nil || terms.MaxPrice == nil || terms.MinPrice.Sign() <= 0 || terms.MinPrice.Cmp(terms.MaxPrice) > 0 {
		return ErrInvalidPriceBounds
	}
	if terms.AutoApproveDelayTicks > c.params.MaxAutoApproveDelayTicks {
		return ErrAutoApproveDelayTooLong
	}
	return nil
}

// CreateListing persists a new service listing owned by the provider and
// returns its identifier. The provider's reputation must reach the
// catalog-wide minimum, every bounded field must fit its capacity, and the
// provider and tag indexes must have room; any violation fails the whole call
// with no partial index update.
func (c *Catalog) CreateListing(provider [20]byte, terms ListingTerms) ([32]byte, error) {
	if c == nil || c.st == nil {
		return [32]byte{}, ErrNilState
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		return [32]byte{}, err
	}
	if err := c.validateTerms(&terms); err != nil {
		return [32]byte{}, err
	}
	mode, err := NormalizePaymentMode(terms.PaymentMode)
	if err != nil {
		return [32]byte{}, err
	}
	if c.reputation != nil && c.params.CatalogMinReputation > 0 {
		ok, err := c.reputation.MeetsMinimum(provider, c.params.CatalogMinReputation)
		if err != nil {
			return [32]byte{}, err
		}
		if !ok {
			return [32]byte{}, ErrReputationTooLow
		}
	}

	// Capacity checks precede any mutation so a full index aborts the call
	// before state changes.
	owned, err := loadIDList(c.st, providerIndexKey(provider))
	if err != nil {
		return [32]byte{}, err
	}
	if len(owned) >= c.params.MaxListingsPerProvider {
		return [32]byte{}, ErrListingCapacityPerProvider
	}
	tags := normalizeTags(terms.Tags)
	for _, tag := range tags {
		tagged, err := loadIDList(c.st, tagIndexKey(tag))
		if err != nil {
			return [32]byte{}, err
		}
		if len(tagged) >= c.params.MaxListingsPerTag {
			return [32]byte{}, fmt.Errorf("%w: tag %q", ErrListingCapacityPerTag, tag)
		}
	}

	nonce, err := c.st.IncrementNonce(provider[:])
	if err != nil {
		return [32]byte{}, err
	}
	id := deriveListingID(provider, nonce)
	if exists, err := c.st.KVGet(listingKey(id), nil); err != nil {
		return [32]byte{}, err
	} else if exists {
		return [32]byte{}, fmt.Errorf("marketplace: listing id collision %x", id)
	}

	now := c.tick()
	listing := &ServiceListing{
		ID:                    id,
		Provider:              provider,
		Name:                  strings.TrimSpace(terms.Name),
		Description:           terms.Description,
		Tags:                  tags,
		MinPrice:              cloneBigInt(terms.MinPrice),
		MaxPrice:              cloneBigInt(terms.MaxPrice),
		PaymentMode:           mode,
		SLAResponseTicks:      terms.SLAResponseTicks,
		AutoApproveDelayTicks: terms.AutoApproveDelayTicks,
		MinReputation:         terms.MinReputation,
		RequireMilestones:     terms.RequireMilestones,
		Active:                true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := c.st.KVPut(listingKey(id), listing); err != nil {
		return [32]byte{}, err
	}
	if err := c.st.KVAppend(providerIndexKey(provider), id[:], c.params.MaxListingsPerProvider); err != nil {
		return [32]byte{}, err
	}
	for _, tag := range tags {
		if err := c.st.KVAppend(tagIndexKey(tag), id[:], c.params.MaxListingsPerTag); err != nil {
			return [32]byte{}, err
		}
	}
	c.emit(events.ListingCreated{ID: id, Provider: provider, Name: listing.Name})
	return id, nil
}

// UpdateListing applies a patch to a listing. Only the owning provider may
// call, and only while the listing has no open invocations; openness is
// checked against the live by-listing index rather than a cached counter.
func (c *Catalog) UpdateListing(provider [20]byte, id [32]byte, patch ListingUpdate) error {
	if c == nil || c.st == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		return err
	}
	listing, err := c.GetListing(id)
	if err != nil {
		return err
	}
	if listing.Provider != provider {
		return ErrUnauthorized
	}
	open, err := loadIDList(c.st, listingInvocationsKey(id))
	if err != nil {
		return err
	}
	if len(open) > 0 {
		return ErrListingHasOpenInvocations
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return ErrEmptyName
		}
		if len(name) > c.params.MaxNameLength {
			return ErrNameTooLong
		}
		listing.Name = name
	}
	if patch.Description != nil {
		if len(*patch.Description) > c.params.MaxDescriptionLength {
			return ErrDescriptionTooLong
		}
		listing.Description = *patch.Description
	}
	if patch.MinPrice != nil {
		listing.MinPrice = cloneBigInt(patch.MinPrice)
	}
	if patch.MaxPrice != nil {
		listing.MaxPrice = cloneBigInt(patch.MaxPrice)
	}
	if listing.MinPrice.Sign() <= 0 || listing.MinPrice.Cmp(listing.MaxPrice) > 0 {
		return ErrInvalidPriceBounds
	}
	if patch.PaymentMode != nil {
		mode, err := NormalizePaymentMode(*patch.PaymentMode)
		if err != nil {
			return err
		}
		listing.PaymentMode = mode
	}
	if patch.SLAResponseTicks != nil {
		listing.SLAResponseTicks = *patch.SLAResponseTicks
	}
	if patch.AutoApproveDelayTicks != nil {
		if *patch.AutoApproveDelayTicks > c.params.MaxAutoApproveDelayTicks {
			return ErrAutoApproveDelayTooLong
		}
		listing.AutoApproveDelayTicks = *patch.AutoApproveDelayTicks
	}
	if patch.MinReputation != nil {
		listing.MinReputation = *patch.MinReputation
	}
	if patch.RequireMilestones != nil {
		listing.RequireMilestones = *patch.RequireMilestones
	}
	listing.UpdatedAt = c.tick()
	if err := c.st.KVPut(listingKey(id), listing); err != nil {
		return err
	}
	c.emit(events.ListingUpdated{ID: id, Provider: provider})
	return nil
}

// Delist marks the listing inactive and removes it from every tag index.
// Historical data and in-flight invocations are retained; inactive is
// terminal for new invocations.
func (c *Catalog) Delist(provider [20]byte, id [32]byte) error {
	if c == nil || c.st == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		return err
	}
	listing, err := c.GetListing(id)
	if err != nil {
		return err
	}
	if listing.Provider != provider {
		return ErrUnauthorized
	}
	if !listing.Active {
		return ErrListingInactive
	}
	listing.Active = false
	listing.UpdatedAt = c.tick()
	if err := c.st.KVPut(listingKey(id), listing); err != nil {
		return err
	}
	for _, tag := range listing.Tags {
		if err := c.st.KVRemove(tagIndexKey(tag), id[:]); err != nil {
			return err
		}
	}
	c.emit(events.ListingDelisted{ID: id, Provider: provider})
	return nil
}

// GetListing loads a listing by id.
func (c *Catalog) GetListing(id [32]byte) (*ServiceListing, error) {
	if c == nil || c.st == nil {
		return nil, ErrNilState
	}
	listing := new(ServiceListing)
	ok, err := c.st.KVGet(listingKey(id), listing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrListingNotFound
	}
	return listing, nil
}

// ListingsByTag returns the ids of active listings carrying the tag.
func (c *Catalog) ListingsByTag(tag string) ([][32]byte, error) {
	if c == nil || c.st == nil {
		return nil, ErrNilState
	}
	return loadIDList(c.st, tagIndexKey(tag))
}

// ListingsByProvider returns the ids of all listings owned by the provider,
// delisted ones included.
func (c *Catalog) ListingsByProvider(provider [20]byte) ([][32]byte, error) {
	if c == nil || c.st == nil {
		return nil, ErrNilState
	}
	return loadIDList(c.st, providerIndexKey(provider))
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, strings.ToLower(strings.TrimSpace(tag)))
	}
	return out
}
