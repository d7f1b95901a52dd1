package reputation

import (
	"errors"
	"fmt"
	"math/big"
)

// storage abstracts the subset of state manager functionality required by the
// reputation ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var scorePrefix = []byte("reputation/score/")

func scoreKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", scorePrefix, addr))
}

// ErrNilStorage marks a ledger used before storage was configured.
var ErrNilStorage = errors.New("reputation: storage unavailable")

// storedReputation is the persisted per-account record. Score is the single
// number gates compare against; the counters exist for auditability.
type storedReputation struct {
	Score           uint64
	TasksCompleted  uint64
	DisputesWon     uint64
	DisputesLost    uint64
	VolumeCompleted *big.Int
}

func (s *storedReputation) normalize() {
	if s.VolumeCompleted == nil {
		s.VolumeCompleted = big.NewInt(0)
	}
}

// Ledger persists reputation scores and implements the oracle consumed by the
// marketplace engine.
type Ledger struct {
	store storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) load(addr [20]byte) (*storedReputation, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilStorage
	}
	stored := new(storedReputation)
	ok, err := l.store.KVGet(scoreKey(addr), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		stored = &storedReputation{}
	}
	stored.normalize()
	return stored, nil
}

func (l *Ledger) persist(addr [20]byte, stored *storedReputation) error {
	stored.normalize()
	return l.store.KVPut(scoreKey(addr), stored)
}

// Score reports the current reputation score for the account. Unknown
// accounts score zero.
func (l *Ledger) Score(addr [20]byte) (uint64, error) {
	stored, err := l.load(addr)
	if err != nil {
		return 0, err
	}
	return stored.Score, nil
}

// SetScore overwrites the score for an account. Used by genesis tooling and
// tests to seed participants above catalog or listing gates.
func (l *Ledger) SetScore(addr [20]byte, score uint64) error {
	stored, err := l.load(addr)
	if err != nil {
		return err
	}
	stored.Score = score
	return l.persist(addr, stored)
}

// MeetsMinimum reports whether the account's score reaches the threshold. A
// zero threshold always passes without a storage read.
func (l *Ledger) MeetsMinimum(addr [20]byte, threshold uint64) (bool, error) {
	if threshold == 0 {
		return true, nil
	}
	score, err := l.Score(addr)
	if err != nil {
		return false, err
	}
	return score >= threshold, nil
}

// OnTaskCompleted credits the provider for a successfully finalized
// invocation and tracks the settled volume.
func (l *Ledger) OnTaskCompleted(provider [20]byte, amount *big.Int) error {
	stored, err := l.load(provider)
	if err != nil {
		return err
	}
	stored.Score++
	stored.TasksCompleted++
	if amount != nil && amount.Sign() > 0 {
		stored.VolumeCompleted = new(big.Int).Add(stored.VolumeCompleted, amount)
	}
	return l.persist(provider, stored)
}

// OnDisputeResolved credits the winner and debits the loser. Scores floor at
// zero rather than going negative.
func (l *Ledger) OnDisputeResolved(winner, loser [20]byte) error {
	wrec, err := l.load(winner)
	if err != nil {
		return err
	}
	wrec.Score++
	wrec.DisputesWon++
	if err := l.persist(winner, wrec); err != nil {
		return err
	}
	lrec, err := l.load(loser)
	if err != nil {
		return err
	}
	if lrec.Score > 0 {
		lrec.Score--
	}
	lrec.DisputesLost++
	return l.persist(loser, lrec)
}
