package marketplace

import (
	"fmt"
	"math/big"

	"agorachain/core/events"
	nativecommon "agorachain/native/common"
)

// RaiseDispute opens a dispute against a non-terminal invocation. Only the
// invoker or the provider may raise; the invocation flips to the disputed
// state, freezing milestone submissions and approvals until the arbiter
// resolves.
func (e *Engine) RaiseDispute(caller [20]byte, invocationID [32]byte, reason string, evidenceRef string) ([32]byte, error) {
	if err := e.ready(); err != nil {
		return [32]byte{}, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return [32]byte{}, err
	}
	if reason == "" {
		return [32]byte{}, ErrEmptyReason
	}
	if len(reason) > e.params.MaxReasonLength {
		return [32]byte{}, ErrReasonTooLong
	}
	if len(evidenceRef) > e.params.MaxReferenceLength {
		return [32]byte{}, ErrEvidenceRefTooLong
	}
	inv, err := e.loadInvocation(invocationID)
	if err != nil {
		return [32]byte{}, err
	}
	if caller != inv.Invoker && caller != inv.Provider {
		return [32]byte{}, ErrUnauthorized
	}
	if inv.Status.Terminal() {
		return [32]byte{}, ErrInvocationTerminal
	}
	if inv.Status == InvocationDisputed {
		return [32]byte{}, ErrAlreadyDisputed
	}

	id := deriveDisputeID(invocationID)
	record := &DisputeRecord{
		ID:          id,
		Invocation:  invocationID,
		RaisedBy:    caller,
		Reason:      reason,
		EvidenceRef: evidenceRef,
		Status:      DisputeOpen,
		RaisedAt:    e.tick(),
	}
	if err := e.st.KVPut(disputeKey(id), record); err != nil {
		return [32]byte{}, err
	}
	if err := e.st.KVPut(disputeByInvocationKey(invocationID), id); err != nil {
		return [32]byte{}, err
	}
	inv.Status = InvocationDisputed
	if err := e.storeInvocation(inv); err != nil {
		return [32]byte{}, err
	}
	e.emit(events.DisputeRaised{ID: id, Invocation: invocationID, RaisedBy: caller})
	return id, nil
}

// ResolveDispute settles an open dispute. The caller must hold the arbiter
// role; the declared winner receives the invocation's entire remaining
// escrow, the invocation finalizes as resolved and the reputation oracle is
// notified of the outcome.
func (e *Engine) ResolveDispute(arbiter [20]byte, disputeID [32]byte, winner [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !e.st.HasRole(RoleArbiter, arbiter[:]) {
		return ErrUnauthorized
	}
	record, err := e.GetDispute(disputeID)
	if err != nil {
		return err
	}
	if record.Status != DisputeOpen {
		return ErrDisputeNotOpen
	}
	inv, err := e.loadInvocation(record.Invocation)
	if err != nil {
		return err
	}
	if inv.Status != InvocationDisputed {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, inv.Status)
	}
	var loser [20]byte
	switch winner {
	case inv.Invoker:
		loser = inv.Provider
	case inv.Provider:
		loser = inv.Invoker
	default:
		return ErrInvalidDisputeWinner
	}

	paid, err := e.vault.RefundRemainder(inv.EscrowRef, winner)
	if err != nil {
		return err
	}
	now := e.tick()
	record.Status = DisputeResolved
	record.Winner = winner
	record.ResolvedAt = now
	if err := e.st.KVPut(disputeKey(disputeID), record); err != nil {
		return err
	}
	inv.Status = InvocationFullyApproved
	inv.CompletedAt = now
	if winner == inv.Provider {
		inv.Released = new(big.Int).Add(inv.Released, paid)
	}
	if err := e.removeFromIndexes(inv); err != nil {
		return err
	}
	if err := e.storeInvocation(inv); err != nil {
		return err
	}
	if e.reputation != nil {
		if err := e.reputation.OnDisputeResolved(winner, loser); err != nil {
			return err
		}
	}
	e.emit(events.DisputeResolved{ID: disputeID, Invocation: record.Invocation, Winner: winner, Paid: paid})
	return nil
}

// GetDispute loads a dispute record by id.
func (e *Engine) GetDispute(id [32]byte) (*DisputeRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	record := new(DisputeRecord)
	ok, err := e.st.KVGet(disputeKey(id), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDisputeNotFound
	}
	return record, nil
}

// DisputeForInvocation resolves the dispute id recorded against an
// invocation, if any.
func (e *Engine) DisputeForInvocation(invocationID [32]byte) ([32]byte, bool, error) {
	if err := e.ready(); err != nil {
		return [32]byte{}, false, err
	}
	var id [32]byte
	ok, err := e.st.KVGet(disputeByInvocationKey(invocationID), &id)
	if err != nil {
		return [32]byte{}, false, err
	}
	return id, ok, nil
}
