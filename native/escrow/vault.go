package escrow

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"agorachain/core/state"
)

// systemID salts escrow reference derivation so holdings can never collide
// with identifiers from other key spaces.
const systemID = "agora/escrow/v1"

var (
	// ErrNilLedger is returned when the vault has no ledger configured.
	ErrNilLedger = errors.New("escrow: ledger not configured")
	// ErrInsufficientFunds is returned when a lock would overdraw the
	// payer's free balance.
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")
)

// ledgerState is the subset of balance ledger functionality the vault needs.
type ledgerState interface {
	Transfer(from, to []byte, amount *big.Int) error
	EscrowVaultAddress() [20]byte
	EscrowCredit(ref [32]byte, amount *big.Int) error
	EscrowDebit(ref [32]byte, amount *big.Int) error
	EscrowBalance(ref [32]byte) (*big.Int, error)
}

// Vault derives per-invocation escrow holdings and moves funds between the
// free balance ledger and those holdings. Only the invocation ledger calls
// the settlement methods; nothing else may debit a holding.
type Vault struct {
	ledger ledgerState
}

// NewVault creates a vault backed by the provided ledger.
func NewVault(ledger ledgerState) *Vault {
	return &Vault{ledger: ledger}
}

// DeriveRef computes the escrow holding reference for an invocation. The
// derivation is a pure function of the system identifier and the invocation
// id, so holdings are reproducible and auditable.
func DeriveRef(invocationID [32]byte) [32]byte {
	digest := ethcrypto.Keccak256([]byte(systemID), invocationID[:])
	var ref [32]byte
	copy(ref[:], digest)
	return ref
}

// Lock moves amount out of the payer's free balance into a freshly derived
// holding for the invocation and returns the holding reference.
func (v *Vault) Lock(from [20]byte, invocationID [32]byte, amount *big.Int) ([32]byte, error) {
	if v == nil || v.ledger == nil {
		return [32]byte{}, ErrNilLedger
	}
	if amount == nil || amount.Sign() <= 0 {
		return [32]byte{}, fmt.Errorf("escrow: lock amount must be positive")
	}
	ref := DeriveRef(invocationID)
	existing, err := v.ledger.EscrowBalance(ref)
	if err != nil {
		return [32]byte{}, err
	}
	if existing.Sign() != 0 {
		return [32]byte{}, fmt.Errorf("escrow: holding %x already funded", ref)
	}
	vault := v.ledger.EscrowVaultAddress()
	if err := v.ledger.Transfer(from[:], vault[:], amount); err != nil {
		if errors.Is(err, state.ErrInsufficientBalance) {
			return [32]byte{}, ErrInsufficientFunds
		}
		return [32]byte{}, err
	}
	if err := v.ledger.EscrowCredit(ref, amount); err != nil {
		return [32]byte{}, err
	}
	return ref, nil
}

// Release pays amount out of the holding to the recipient. Releasing more
// than the holding contains fails without moving funds.
func (v *Vault) Release(ref [32]byte, to [20]byte, amount *big.Int) error {
	if v == nil || v.ledger == nil {
		return ErrNilLedger
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("escrow: release amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := v.ledger.EscrowDebit(ref, amount); err != nil {
		return err
	}
	vault := v.ledger.EscrowVaultAddress()
	return v.ledger.Transfer(vault[:], to[:], amount)
}

// RefundRemainder drains whatever the holding still contains to the recipient
// and reports the amount moved. An already-empty holding refunds zero.
func (v *Vault) RefundRemainder(ref [32]byte, to [20]byte) (*big.Int, error) {
	if v == nil || v.ledger == nil {
		return nil, ErrNilLedger
	}
	remaining, err := v.ledger.EscrowBalance(ref)
	if err != nil {
		return nil, err
	}
	if remaining.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := v.Release(ref, to, remaining); err != nil {
		return nil, err
	}
	return remaining, nil
}

// BalanceOf reports the amount currently held for the reference.
func (v *Vault) BalanceOf(ref [32]byte) (*big.Int, error) {
	if v == nil || v.ledger == nil {
		return nil, ErrNilLedger
	}
	return v.ledger.EscrowBalance(ref)
}
