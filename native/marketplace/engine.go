package marketplace

import (
	"fmt"
	"math/big"

	"agorachain/core/events"
	nativecommon "agorachain/native/common"
	"agorachain/native/escrow"
)

// Engine owns the invocation lifecycle and is the only component authorized
// to move funds out of an invocation's escrow holding. The dispute registry
// and expiry sweeper settle through its payout routines.
type Engine struct {
	st         State
	vault      EscrowVault
	reputation ReputationOracle
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	params     Params
	tickFn     func() uint64
}

// NewEngine creates an invocation ledger over the provided state, escrow
// vault and reputation oracle.
func NewEngine(st State, vault EscrowVault, reputation ReputationOracle) *Engine {
	return &Engine{
		st:         st,
		vault:      vault,
		reputation: reputation,
		emitter:    events.NoopEmitter{},
		params:     DefaultParams(),
		tickFn:     func() uint64 { return 0 },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetParams overrides the capacity and sweep parameters.
func (e *Engine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.params = p
	return nil
}

// SetTickFunc configures the tick source. Deadlines and timestamps are
// expressed in this unit.
func (e *Engine) SetTickFunc(tick func() uint64) {
	if tick == nil {
		e.tickFn = func() uint64 { return 0 }
		return
	}
	e.tickFn = tick
}

func (e *Engine) tick() uint64 {
	if e == nil || e.tickFn == nil {
		return 0
	}
	return e.tickFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.st == nil || e.vault == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) loadListing(id [32]byte) (*ServiceListing, error) {
	listing := new(ServiceListing)
	ok, err := e.st.KVGet(listingKey(id), listing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrListingNotFound
	}
	return listing, nil
}

func (e *Engine) loadInvocation(id [32]byte) (*ServiceInvocation, error) {
	inv := new(ServiceInvocation)
	ok, err := e.st.KVGet(invocationKey(id), inv)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvocationNotFound
	}
	if inv.Price == nil {
		inv.Price = big.NewInt(0)
	}
	if inv.Released == nil {
		inv.Released = big.NewInt(0)
	}
	return inv, nil
}

func (e *Engine) storeInvocation(inv *ServiceInvocation) error {
	return e.st.KVPut(invocationKey(inv.ID), inv)
}

func validateMilestoneSpecs(specs []MilestoneSpec, params Params) error {
	if len(specs) == 0 {
		return nil
	}
	if len(specs) > params.MaxMilestonesPerInvocation {
		return ErrTooManyMilestones
	}
	var sum uint64
	for _, spec := range specs {
		if len(spec.Description) > params.MaxMilestoneDescriptionLength {
			return ErrMilestoneDescriptionLong
		}
		if spec.Percent == 0 {
			return ErrMilestonePercentZero
		}
		sum += uint64(spec.Percent)
	}
	if sum != 100 {
		return fmt.Errorf("%w: got %d", ErrMilestonePercentSum, sum)
	}
	return nil
}

// Invoke locks the agreed price from the invoker into a freshly derived
// escrow holding and creates the invocation in the pending state. The listing
// must be active, the price must satisfy its bounds, the invoker must pass
// its reputation gate and the milestone percentages, when supplied, must sum
// to exactly 100.
func (e *Engine) Invoke(invoker [20]byte, listingID [32]byte, requirements []byte, milestones []MilestoneSpec, price *big.Int, deadlineDelta uint64) (*ServiceInvocation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	listing, err := e.loadListing(listingID)
	if err != nil {
		return nil, err
	}
	if !listing.Active {
		return nil, ErrListingInactive
	}
	if invoker == listing.Provider {
		return nil, ErrSelfInvocation
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if price.Cmp(listing.MinPrice) < 0 {
		return nil, ErrPriceBelowMinimum
	}
	if price.Cmp(listing.MaxPrice) > 0 {
		return nil, ErrPriceAboveMaximum
	}
	if deadlineDelta == 0 {
		return nil, ErrZeroDeadline
	}
	if listing.RequireMilestones && len(milestones) == 0 {
		return nil, ErrMilestonesRequired
	}
	if err := validateMilestoneSpecs(milestones, e.params); err != nil {
		return nil, err
	}
	if e.reputation != nil && listing.MinReputation > 0 {
		ok, err := e.reputation.MeetsMinimum(invoker, listing.MinReputation)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrReputationTooLow
		}
	}

	// Index capacity checks precede any mutation.
	byListing, err := loadIDList(e.st, listingInvocationsKey(listingID))
	if err != nil {
		return nil, err
	}
	if len(byListing) >= e.params.MaxOpenInvocationsPerListing {
		return nil, fmt.Errorf("%w: listing %x", ErrIndexCapacityExceeded, listingID)
	}
	byInvoker, err := loadIDList(e.st, invokerIndexKey(invoker))
	if err != nil {
		return nil, err
	}
	if len(byInvoker) >= e.params.MaxOpenInvocationsPerInvoker {
		return nil, fmt.Errorf("%w: invoker %x", ErrIndexCapacityExceeded, invoker)
	}

	// The nonce bump below is observable state; a funds shortfall must
	// abort before it.
	account, err := e.st.GetAccount(invoker[:])
	if err != nil {
		return nil, err
	}
	if account.Balance == nil || account.Balance.Cmp(price) < 0 {
		return nil, escrow.ErrInsufficientFunds
	}

	nonce, err := e.st.IncrementNonce(invoker[:])
	if err != nil {
		return nil, err
	}
	id := deriveInvocationID(invoker, nonce)
	now := e.tick()
	ref, err := e.vault.Lock(invoker, id, price)
	if err != nil {
		return nil, err
	}

	inv := &ServiceInvocation{
		ID:           id,
		Listing:      listingID,
		Invoker:      invoker,
		Provider:     listing.Provider,
		Requirements: append([]byte(nil), requirements...),
		Price:        cloneBigInt(price),
		EscrowRef:    ref,
		Status:       InvocationPending,
		Milestones:   make([]Milestone, 0, len(milestones)),
		Released:     big.NewInt(0),
		Deadline:     now + deadlineDelta,
		CreatedAt:    now,
	}
	for _, spec := range milestones {
		inv.Milestones = append(inv.Milestones, Milestone{
			Description: spec.Description,
			Percent:     spec.Percent,
			Status:      MilestonePending,
		})
	}
	if err := e.storeInvocation(inv); err != nil {
		return nil, err
	}
	if err := e.st.KVAppend(listingInvocationsKey(listingID), id[:], e.params.MaxOpenInvocationsPerListing); err != nil {
		return nil, err
	}
	if err := e.st.KVAppend(invokerIndexKey(invoker), id[:], e.params.MaxOpenInvocationsPerInvoker); err != nil {
		return nil, err
	}
	if err := e.st.KVAppend(deadlineBucketKey(inv.Deadline), id[:], 0); err != nil {
		return nil, err
	}
	listing.TotalInvocations++
	if err := e.st.KVPut(listingKey(listingID), listing); err != nil {
		return nil, err
	}
	e.emit(events.InvocationCreated{
		ID:       id,
		Listing:  listingID,
		Invoker:  invoker,
		Provider: listing.Provider,
		Price:    cloneBigInt(price),
		Deadline: inv.Deadline,
	})
	return inv.Clone(), nil
}

// Accept lets the provider acknowledge a pending invocation before starting
// work. Acceptance is optional; submitting work directly from the pending
// state is also allowed.
func (e *Engine) Accept(provider [20]byte, invocationID [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	inv, err := e.loadInvocation(invocationID)
	if err != nil {
		return err
	}
	if inv.Provider != provider {
		return ErrUnauthorized
	}
	if inv.Status != InvocationPending {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, inv.Status)
	}
	inv.Status = InvocationAccepted
	inv.AcceptedAt = e.tick()
	if err := e.storeInvocation(inv); err != nil {
		return err
	}
	e.emit(events.InvocationAccepted{ID: invocationID, Provider: provider})
	return nil
}

// SubmitWork records a proof of work for the invocation, optionally marking
// one milestone as submitted, and advances the invocation to the
// work-submitted state. Pass a negative milestone index for whole-invocation
// evidence.
func (e *Engine) SubmitWork(provider [20]byte, invocationID [32]byte, milestoneIndex int, proof WorkProofSpec) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	ref := proof.ContentRef
	if ref == "" {
		return ErrEmptyProofRef
	}
	if len(ref) > e.params.MaxReferenceLength {
		return ErrProofRefTooLong
	}
	inv, err := e.loadInvocation(invocationID)
	if err != nil {
		return err
	}
	if inv.Provider != provider {
		return ErrUnauthorized
	}
	if inv.Status.Terminal() {
		return ErrInvocationTerminal
	}
	if inv.Status == InvocationDisputed {
		return ErrInvocationDisputed
	}
	if milestoneIndex >= 0 {
		if milestoneIndex >= len(inv.Milestones) {
			return ErrMilestoneNotFound
		}
		switch inv.Milestones[milestoneIndex].Status {
		case MilestoneSubmitted:
			return ErrMilestoneAlreadySubmitted
		case MilestoneApproved:
			return ErrMilestoneAlreadyApproved
		}
		inv.Milestones[milestoneIndex].Status = MilestoneSubmitted
		inv.Milestones[milestoneIndex].SubmittedAt = e.tick()
	}
	record := &WorkProof{
		Invocation:  invocationID,
		Kind:        proof.Kind,
		ContentRef:  ref,
		SubmittedAt: e.tick(),
	}
	if milestoneIndex >= 0 {
		record.HasMilestone = true
		record.Milestone = uint32(milestoneIndex)
	}
	if err := e.appendProof(record); err != nil {
		return err
	}
	inv.Status = InvocationWorkSubmitted
	if err := e.storeInvocation(inv); err != nil {
		return err
	}
	e.emit(events.WorkSubmitted{ID: invocationID, Provider: provider, Milestone: milestoneIndex})
	return nil
}

// ApproveMilestone releases the milestone's share of the escrow to the
// provider. For an invocation without milestones the call releases the whole
// escrow and finalizes. The final milestone drains the remaining holding so
// integer truncation can never strand funds.
func (e *Engine) ApproveMilestone(invoker [20]byte, invocationID [32]byte, milestoneIndex int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	inv, err := e.loadInvocation(invocationID)
	if err != nil {
		return err
	}
	if inv.Invoker != invoker {
		return ErrUnauthorized
	}
	if inv.Status.Terminal() {
		return ErrInvocationTerminal
	}
	if inv.Status == InvocationDisputed {
		return ErrInvocationDisputed
	}
	if len(inv.Milestones) == 0 {
		if milestoneIndex != 0 {
			return ErrMilestoneNotFound
		}
		if inv.Status != InvocationWorkSubmitted {
			return ErrWorkNotSubmitted
		}
		amount, err := e.vault.RefundRemainder(inv.EscrowRef, inv.Provider)
		if err != nil {
			return err
		}
		inv.Released = new(big.Int).Add(inv.Released, amount)
		e.emit(events.MilestoneApproved{ID: invocationID, Milestone: 0, Amount: amount})
		return e.finalize(inv)
	}

	if milestoneIndex < 0 || milestoneIndex >= len(inv.Milestones) {
		return ErrMilestoneNotFound
	}
	milestone := &inv.Milestones[milestoneIndex]
	switch milestone.Status {
	case MilestoneApproved:
		return ErrMilestoneAlreadyApproved
	case MilestonePending:
		return ErrMilestoneNotSubmitted
	}

	amount := milestoneAmount(inv.Price, milestone.Percent)
	if e.remainingUnapproved(inv) == 1 {
		// Last milestone: drain the holding instead of the truncated share.
		remaining, err := e.vault.BalanceOf(inv.EscrowRef)
		if err != nil {
			return err
		}
		amount = remaining
	}
	if err := e.vault.Release(inv.EscrowRef, inv.Provider, amount); err != nil {
		return err
	}
	milestone.Status = MilestoneApproved
	milestone.ApprovedAt = e.tick()
	inv.Released = new(big.Int).Add(inv.Released, amount)
	e.emit(events.MilestoneApproved{ID: invocationID, Milestone: milestoneIndex, Amount: cloneBigInt(amount)})

	if e.remainingUnapproved(inv) == 0 {
		return e.finalize(inv)
	}
	inv.Status = InvocationInProgress
	return e.storeInvocation(inv)
}

// Cancel refunds the full escrow to the invoker and finalizes. Only the
// invoker may cancel, and only while the invocation is still pending.
func (e *Engine) Cancel(invoker [20]byte, invocationID [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	inv, err := e.loadInvocation(invocationID)
	if err != nil {
		return err
	}
	if inv.Invoker != invoker {
		return ErrUnauthorized
	}
	if inv.Status != InvocationPending {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, inv.Status)
	}
	refunded, err := e.vault.RefundRemainder(inv.EscrowRef, inv.Invoker)
	if err != nil {
		return err
	}
	inv.Status = InvocationCancelled
	inv.CompletedAt = e.tick()
	if err := e.removeFromIndexes(inv); err != nil {
		return err
	}
	if err := e.storeInvocation(inv); err != nil {
		return err
	}
	e.emit(events.InvocationCancelled{ID: invocationID, Invoker: invoker, Refunded: refunded})
	return nil
}

// GetInvocation loads an invocation by id.
func (e *Engine) GetInvocation(id [32]byte) (*ServiceInvocation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	inv, err := e.loadInvocation(id)
	if err != nil {
		return nil, err
	}
	return inv.Clone(), nil
}

// InvocationsByListing returns the ids of open invocations created against
// the listing.
func (e *Engine) InvocationsByListing(listingID [32]byte) ([][32]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return loadIDList(e.st, listingInvocationsKey(listingID))
}

// InvocationsByInvoker returns the ids of the invoker's open invocations.
func (e *Engine) InvocationsByInvoker(invoker [20]byte) ([][32]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return loadIDList(e.st, invokerIndexKey(invoker))
}

// Proofs returns the evidence recorded against an invocation in submission
// order.
func (e *Engine) Proofs(invocationID [32]byte) ([]WorkProof, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var proofs []WorkProof
	ok, err := e.st.KVGet(proofsKey(invocationID), &proofs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []WorkProof{}, nil
	}
	return proofs, nil
}

func (e *Engine) appendProof(proof *WorkProof) error {
	var proofs []WorkProof
	if _, err := e.st.KVGet(proofsKey(proof.Invocation), &proofs); err != nil {
		return err
	}
	proofs = append(proofs, *proof)
	return e.st.KVPut(proofsKey(proof.Invocation), proofs)
}

func (e *Engine) remainingUnapproved(inv *ServiceInvocation) int {
	remaining := 0
	for _, milestone := range inv.Milestones {
		if milestone.Status != MilestoneApproved {
			remaining++
		}
	}
	return remaining
}

// milestoneAmount computes price * pct / 100 with integer truncation toward
// zero.
func milestoneAmount(price *big.Int, pct uint32) *big.Int {
	amount := new(big.Int).Mul(cloneBigInt(price), new(big.Int).SetUint64(uint64(pct)))
	return amount.Div(amount, big.NewInt(100))
}

// finalize marks the invocation fully approved, credits the listing's success
// counter, notifies the reputation oracle and prunes every index entry.
func (e *Engine) finalize(inv *ServiceInvocation) error {
	inv.Status = InvocationFullyApproved
	inv.CompletedAt = e.tick()
	if err := e.removeFromIndexes(inv); err != nil {
		return err
	}
	listing, err := e.loadListing(inv.Listing)
	if err != nil {
		return err
	}
	listing.SuccessfulInvocations++
	if err := e.st.KVPut(listingKey(inv.Listing), listing); err != nil {
		return err
	}
	if err := e.storeInvocation(inv); err != nil {
		return err
	}
	if e.reputation != nil {
		if err := e.reputation.OnTaskCompleted(inv.Provider, cloneBigInt(inv.Released)); err != nil {
			return err
		}
	}
	e.emit(events.InvocationFinalized{ID: inv.ID, TotalPaid: cloneBigInt(inv.Released)})
	return nil
}

// removeFromIndexes prunes the invocation from the by-listing, by-invoker and
// by-deadline indexes. Terminal records stay readable; only the index entries
// go.
func (e *Engine) removeFromIndexes(inv *ServiceInvocation) error {
	if err := e.st.KVRemove(listingInvocationsKey(inv.Listing), inv.ID[:]); err != nil {
		return err
	}
	if err := e.st.KVRemove(invokerIndexKey(inv.Invoker), inv.ID[:]); err != nil {
		return err
	}
	return e.st.KVRemove(deadlineBucketKey(inv.Deadline), inv.ID[:])
}
