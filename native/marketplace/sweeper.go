package marketplace

import (
	"math/big"

	"agorachain/core/events"
	nativecommon "agorachain/native/common"
)

// ForceExpire settles an overdue invocation on demand. The call is
// permissionless: whoever triggers it collects a fixed bounty from the
// escrow, capped at the remaining balance, and the rest refunds to the
// invoker.
func (e *Engine) ForceExpire(caller [20]byte, invocationID [32]byte) error {
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
	if inv.Status.Terminal() {
		return ErrInvocationTerminal
	}
	if e.tick() <= inv.Deadline {
		return ErrDeadlineNotReached
	}
	remaining, err := e.vault.BalanceOf(inv.EscrowRef)
	if err != nil {
		return err
	}
	bounty := cloneBigInt(e.params.ExpiryBounty)
	if bounty.Cmp(remaining) > 0 {
		bounty = cloneBigInt(remaining)
	}
	if err := e.vault.Release(inv.EscrowRef, caller, bounty); err != nil {
		return err
	}
	refunded, err := e.vault.RefundRemainder(inv.EscrowRef, inv.Invoker)
	if err != nil {
		return err
	}
	if err := e.settleExpired(inv); err != nil {
		return err
	}
	e.emit(events.InvocationExpired{ID: invocationID, By: caller, Bounty: bounty, Refunded: refunded})
	return nil
}

// Sweep is the per-tick maintenance hook. The host must call it exactly once
// per tick before processing other calls. It walks the by-deadline index from
// the persisted cursor up to (but excluding) currentTick, expiring at most
// the configured batch of invocations, and reports how many it settled.
// Progress is bounded per call yet guaranteed to drain any backlog across
// subsequent ticks.
func (e *Engine) Sweep(currentTick uint64) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	cursor, err := e.loadSweepCursor()
	if err != nil {
		return 0, err
	}
	processed := 0
	visited := 0
	for cursor < currentTick && processed < e.params.SweepBatchSize && visited < e.params.SweepBatchSize {
		visited++
		bucket := deadlineBucketKey(cursor)
		ids, err := loadIDList(e.st, bucket)
		if err != nil {
			return processed, err
		}
		drained := true
		for _, id := range ids {
			if processed >= e.params.SweepBatchSize {
				drained = false
				break
			}
			if err := e.expireSwept(id); err != nil {
				return processed, err
			}
			processed++
		}
		if !drained {
			break
		}
		cursor++
	}
	if err := e.storeSweepCursor(cursor); err != nil {
		return processed, err
	}
	return processed, nil
}

// expireSwept refunds the invoker's remaining escrow and marks the
// invocation expired. Sweeps pay no bounty; that reward exists only for the
// explicit ForceExpire path.
func (e *Engine) expireSwept(id [32]byte) error {
	inv, err := e.loadInvocation(id)
	if err != nil {
		return err
	}
	if inv.Status.Terminal() {
		// Stale bucket entry; drop it without touching funds.
		return e.st.KVRemove(deadlineBucketKey(inv.Deadline), id[:])
	}
	refunded, err := e.vault.RefundRemainder(inv.EscrowRef, inv.Invoker)
	if err != nil {
		return err
	}
	if err := e.settleExpired(inv); err != nil {
		return err
	}
	e.emit(events.InvocationExpired{ID: id, By: [20]byte{}, Bounty: big.NewInt(0), Refunded: refunded})
	return nil
}

func (e *Engine) settleExpired(inv *ServiceInvocation) error {
	inv.Status = InvocationExpired
	inv.CompletedAt = e.tick()
	if err := e.closeDisputeFor(inv.ID); err != nil {
		return err
	}
	if err := e.removeFromIndexes(inv); err != nil {
		return err
	}
	return e.storeInvocation(inv)
}

// closeDisputeFor voids any still-open dispute on an expiring invocation so
// the record cannot sit open forever with nothing left to arbitrate.
func (e *Engine) closeDisputeFor(invocationID [32]byte) error {
	var id [32]byte
	ok, err := e.st.KVGet(disputeByInvocationKey(invocationID), &id)
	if err != nil || !ok {
		return err
	}
	record := new(DisputeRecord)
	found, err := e.st.KVGet(disputeKey(id), record)
	if err != nil || !found {
		return err
	}
	if record.Status != DisputeOpen {
		return nil
	}
	record.Status = DisputeClosed
	record.ResolvedAt = e.tick()
	return e.st.KVPut(disputeKey(id), record)
}

func (e *Engine) loadSweepCursor() (uint64, error) {
	var cursor uint64
	ok, err := e.st.KVGet(deadlineCursorKey, &cursor)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return cursor, nil
}

func (e *Engine) storeSweepCursor(cursor uint64) error {
	return e.st.KVPut(deadlineCursorKey, cursor)
}
