package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	escrowVaultPrefix = []byte("escrow/vault/")
	escrowVaultSeed   = []byte("agora/escrow/vault-account")
)

func escrowVaultKey(ref [32]byte) []byte {
	buf := make([]byte, len(escrowVaultPrefix)+len(ref))
	copy(buf, escrowVaultPrefix)
	copy(buf[len(escrowVaultPrefix):], ref[:])
	return buf
}

// EscrowVaultAddress returns the module-owned account that physically holds
// all escrowed funds. It is a pure derivation so the vault location is
// reproducible across nodes.
func (m *Manager) EscrowVaultAddress() [20]byte {
	digest := ethcrypto.Keccak256(escrowVaultSeed)
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// EscrowCredit records amount against the escrow reference. The caller is
// responsible for moving the matching funds into the vault account.
func (m *Manager) EscrowCredit(ref [32]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: escrow credit must be positive")
	}
	current, err := m.EscrowBalance(ref)
	if err != nil {
		return err
	}
	return m.KVPut(escrowVaultKey(ref), new(big.Int).Add(current, amount))
}

// EscrowDebit reduces the balance recorded against the escrow reference. It
// fails rather than allowing the holding to go negative, which would indicate
// a double release. A debit to exactly zero removes the record.
func (m *Manager) EscrowDebit(ref [32]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: escrow debit must be positive")
	}
	current, err := m.EscrowBalance(ref)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return fmt.Errorf("state: escrow debit exceeds holding")
	}
	remaining := new(big.Int).Sub(current, amount)
	if remaining.Sign() == 0 {
		return m.KVDelete(escrowVaultKey(ref))
	}
	return m.KVPut(escrowVaultKey(ref), remaining)
}

// EscrowBalance reports the amount currently recorded against the escrow
// reference. Unknown references hold zero.
func (m *Manager) EscrowBalance(ref [32]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.KVGet(escrowVaultKey(ref), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}
