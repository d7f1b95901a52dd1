package marketplace

import (
	"errors"
	"math/big"
	"strings"
	"testing"
)

func (env *testEnv) grantArbiter(addr [20]byte) {
	env.t.Helper()
	if err := env.manager.GrantRole(RoleArbiter, addr[:]); err != nil {
		env.t.Fatalf("grant arbiter role: %v", err)
	}
}

func TestRaiseDisputeValidation(t *testing.T) {
	env := newTestEnv(t)
	provider := testAddr(1)
	invoker := testAddr(2)
	listingID := env.createListing(provider, nil)
	env.fund(invoker, 1000)
	inv := env.invoke(invoker, listingID, 250, 10)

	if _, err := env.engine.RaiseDispute(invoker, inv.ID, "", ""); !errors.Is(err, ErrEmptyReason) {
		t.Fatalf("empty reason = %v, want %v", err, ErrEmptyReason)
	}
	if _, err := env.engine.RaiseDispute(invoker, inv.ID, strings.Repeat("r", 513), ""); !errors.Is(err, ErrReasonTooLong) {
		t.Fatalf("long reason = %v, want %v", err, ErrReasonTooLong)
	}
	if _, err := env.engine.RaiseDispute(invoker, inv.ID, "late", strings.Repeat("e", 257)); !errors.Is(err, ErrEvidenceRefTooLong) {
		t.Fatalf("long evidence = %v, want %v", err, ErrEvidenceRefTooLong)
	}
	if _, err := env.engine.RaiseDispute(testAddr(9), inv.ID, "late", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("third party = %v, want %v", err, ErrUnauthorized)
	}
}

func TestRaiseDisputeFreezesInvocation(t *testing.T) {
	env := newTestEnv(t)
	provider := testAddr(1)
	invoker := testAddr(2)
	listingID := env.createListing(provider, nil)
	env.fund(invoker, 1000)
	inv := env.invoke(invoker, listingID, 250, 10)

	env.tick = 5
	disputeID, err := env.engine.RaiseDispute(provider, inv.ID, "requirements keep changing", "ipfs://thread")
	if err != nil {
		t.Fatalf("RaiseDispute: %v", err)
	}
	env.mustStatus(inv.ID, InvocationDisputed)

	record, err := env.engine.GetDispute(disputeID)
	if err != nil {
		t.Fatalf("GetDispute: %v", err)
	}
	if record.RaisedBy != provider || record.Status != DisputeOpen || record.RaisedAt != 5 {
		t.Fatalf("unexpected dispute record: %+v", record)
	}
	mapped, ok, err := env.engine.DisputeForInvocation(inv.ID)
	if err != nil || !ok || mapped != disputeID {
		t.Fatalf("DisputeForInvocation = %x/%v/%v, want %x", mapped, ok, err, disputeID)
	}

	if _, err := env.engine.RaiseDispute(invoker, inv.ID, "same here", ""); !errors.Is(err, ErrAlreadyDisputed) {
		t.Fatalf("double raise = %v, want %v", err, ErrAlreadyDisputed)
	}
	if err := env.engine.SubmitWork(provider, inv.ID, -1, WorkProofSpec{Kind: "uri", ContentRef: "ipfs://x"}); !errors.Is(err, ErrInvocationDisputed) {
		t.Fatalf("SubmitWork while disputed = %v, want %v", err, ErrInvocationDisputed)
	}
	if err := env.engine.ApproveMilestone(invoker, inv.ID, 0); !errors.Is(err, ErrInvocationDisputed) {
		t.Fatalf("approve while disputed = %v, want %v", err, ErrInvocationDisputed)
	}
	if err := env.engine.ForceExpire(testAddr(9), inv.ID); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("ForceExpire before deadline = %v, want %v", err, ErrDeadlineNotReached)
	}
}

func TestRaiseDisputeRejectedWhenTerminal(t *testing.T) {
	env := newTestEnv(t)
	provider := testAddr(1)
	invoker := testAddr(2)
	listingID := env.createListing(provider, nil)
	env.fund(invoker, 1000)
	inv := env.invoke(invoker, listingID, 250, 10)
	if err := env.engine.Cancel(invoker, inv.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := env.engine.RaiseDispute(invoker, inv.ID, "too late", ""); !errors.Is(err, ErrInvocationTerminal) {
		t.Fatalf("RaiseDispute = %v, want %v", err, ErrInvocationTerminal)
	}
}

func TestResolveDisputeInvokerWins(t *testing.T) {
	env := newTestEnv(t)
	provider := testAddr(1)
	invoker := testAddr(2)
	arbiter := testAddr(3)
	env.grantArbiter(arbiter)
	listingID := env.createListing(provider, func(terms *ListingTerms) {
		terms.PaymentMode = PaymentModeMilestone
	})
	env.fund(invoker, 1000)
	inv := env.invoke(invoker, listingID, 100, 50,
		MilestoneSpec{Description: "design", Percent: 60},
		MilestoneSpec{Description: "delivery", Percent: 40},
	)

	// First milestone pays out before the relationship sours.
	if err := env.engine.SubmitWork(provider, inv.ID, 0, WorkProofSpec{Kind: "uri", ContentRef: "ipfs://design"}); err != nil {
		t.Fatalf("SubmitWork: %v", err)
	}
	if err := env.engine.ApproveMilestone(invoker, inv.ID, 0); err != nil {
		t.Fatalf("ApproveMilestone: %v", err)
	}
	env.requireBalance(provider, 60)

	disputeID, err := env.engine.RaiseDispute(invoker, inv.ID, "delivery never arrived", "")
	if err != nil {
		t.Fatalf("RaiseDispute: %v", err)
	}

	if err := env.engine.ResolveDispute(testAddr(9), disputeID, invoker); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("resolve without role = %v, want %v", err, ErrUnauthorized)
	}
	if err := env.engine.ResolveDispute(arbiter, disputeID, testAddr(9)); !errors.Is(err, ErrInvalidDisputeWinner) {
		t.Fatalf("non-party winner = %v, want %v", err, ErrInvalidDisputeWinner)
	}

	if err := env.engine.ResolveDispute(arbiter, disputeID, invoker); err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	// Approved funds stay paid; only the remaining 40 returns.
	env.requireBalance(invoker, 940)
	env.requireBalance(provider, 60)
	if got := env.escrowBalance(inv.EscrowRef); got.Sign() != 0 {
		t.Fatalf("escrow after resolution = %s, want 0", got)
	}

	record, err := env.engine.GetDispute(disputeID)
	if err != nil {
		t.Fatalf("GetDispute: %v", err)
	}
	if record.Status != DisputeResolved || record.Winner != invoker {
		t.Fatalf("unexpected dispute record: %+v", record)
	}
	final := env.mustStatus(inv.ID, InvocationFullyApproved)
	if final.Released.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("Released = %s, want 60", final.Released)
	}

	if err := env.engine.ResolveDispute(arbiter, disputeID, invoker); !errors.Is(err, ErrDisputeNotOpen) {
		t.Fatalf("double resolve = %v, want %v", err, ErrDisputeNotOpen)
	}

	invokerScore, err := env.ledger.Score(invoker)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if invokerScore != 1 {
		t.Fatalf("invoker score = %d, want 1", invokerScore)
	}
	providerScore, err := env.ledger.Score(provider)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if providerScore != 9 {
		t.Fatalf("provider score = %d, want 9", providerScore)
	}
}

func TestExpiryClosesOpenDispute(t *testing.T) {
	env := newTestEnv(t)
	provider := testAddr(1)
	invoker := testAddr(2)
	arbiter := testAddr(3)
	hunter := testAddr(4)
	env.grantArbiter(arbiter)
	listingID := env.createListing(provider, nil)
	env.fund(invoker, 1000)
	inv := env.invoke(invoker, listingID, 250, 5)

	disputeID, err := env.engine.RaiseDispute(invoker, inv.ID, "provider went dark", "")
	if err != nil {
		t.Fatalf("RaiseDispute: %v", err)
	}

	env.tick = 6
	if err := env.engine.ForceExpire(hunter, inv.ID); err != nil {
		t.Fatalf("ForceExpire: %v", err)
	}
	env.mustStatus(inv.ID, InvocationExpired)
	env.requireBalance(hunter, 100)
	env.requireBalance(invoker, 900)

	record, err := env.engine.GetDispute(disputeID)
	if err != nil {
		t.Fatalf("GetDispute: %v", err)
	}
	if record.Status != DisputeClosed || record.ResolvedAt != 6 {
		t.Fatalf("dispute after expiry = %+v, want closed at tick 6", record)
	}
	if err := env.engine.ResolveDispute(arbiter, disputeID, invoker); !errors.Is(err, ErrDisputeNotOpen) {
		t.Fatalf("resolve after expiry = %v, want %v", err, ErrDisputeNotOpen)
	}
}

func TestSweepClosesOpenDispute(t *testing.T) {
	env := newTestEnv(t)
	provider := testAddr(1)
	invoker := testAddr(2)
	listingID := env.createListing(provider, nil)
	env.fund(invoker, 1000)
	inv := env.invoke(invoker, listingID, 250, 5)

	disputeID, err := env.engine.RaiseDispute(provider, inv.ID, "invoker unresponsive", "")
	if err != nil {
		t.Fatalf("RaiseDispute: %v", err)
	}

	env.tick = 6
	processed, err := env.engine.Sweep(6)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if processed != 1 {
		t.Fatalf("Sweep processed %d, want 1", processed)
	}
	env.mustStatus(inv.ID, InvocationExpired)
	env.requireBalance(invoker, 1000)

	record, err := env.engine.GetDispute(disputeID)
	if err != nil {
		t.Fatalf("GetDispute: %v", err)
	}
	if record.Status != DisputeClosed {
		t.Fatalf("dispute after sweep = %+v, want closed", record)
	}
}

func TestResolveDisputeProviderWins(t *testing.T) {
	env := newTestEnv(t)
	provider := testAddr(1)
	invoker := testAddr(2)
	arbiter := testAddr(3)
	env.grantArbiter(arbiter)
	listingID := env.createListing(provider, nil)
	env.fund(invoker, 1000)
	inv := env.invoke(invoker, listingID, 250, 10)

	disputeID, err := env.engine.RaiseDispute(provider, inv.ID, "work delivered, payment withheld", "ipfs://evidence")
	if err != nil {
		t.Fatalf("RaiseDispute: %v", err)
	}
	if err := env.engine.ResolveDispute(arbiter, disputeID, provider); err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	env.requireBalance(provider, 250)
	env.requireBalance(invoker, 750)
	final := env.mustStatus(inv.ID, InvocationFullyApproved)
	if final.Released.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("Released = %s, want 250", final.Released)
	}
	open, err := env.engine.InvocationsByListing(listingID)
	if err != nil {
		t.Fatalf("InvocationsByListing: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("index after resolution = %v, want empty", open)
	}
}
