package types

import "math/big"

// Account tracks the balance state for a marketplace participant. Balance is
// the free balance in base units; funds moved into escrow leave the free
// balance until settled back out by the invocation ledger.
type Account struct {
	Nonce   uint64
	Balance *big.Int
}

// NewAccount returns an account with a zero balance.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}

// Clone returns a deep copy so callers can mutate the copy safely.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
