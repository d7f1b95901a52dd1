package marketplace

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"agorachain/core/types"
)

// State abstracts the subset of state manager functionality the marketplace
// module requires. Implemented by core/state.Manager.
type State interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte, maxLen int) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	GetAccount(addr []byte) (*types.Account, error)
	IncrementNonce(addr []byte) (uint64, error)
	HasRole(role string, addr []byte) bool
}

// EscrowVault is the only path through which invocation funds move. The
// dispute registry and expiry sweeper settle through the same routines as the
// invocation ledger.
type EscrowVault interface {
	Lock(from [20]byte, invocationID [32]byte, amount *big.Int) ([32]byte, error)
	Release(ref [32]byte, to [20]byte, amount *big.Int) error
	RefundRemainder(ref [32]byte, to [20]byte) (*big.Int, error)
	BalanceOf(ref [32]byte) (*big.Int, error)
}

// ReputationOracle is the external scoring collaborator.
type ReputationOracle interface {
	MeetsMinimum(addr [20]byte, threshold uint64) (bool, error)
	OnTaskCompleted(provider [20]byte, amount *big.Int) error
	OnDisputeResolved(winner, loser [20]byte) error
}

const (
	moduleName = "marketplace"

	// RoleArbiter marks the accounts empowered to resolve disputes.
	RoleArbiter = "ROLE_ARBITER"
)

var (
	listingPrefix             = []byte("market/listing/")
	invocationPrefix          = []byte("market/invocation/")
	proofPrefix               = []byte("market/proof/")
	disputePrefix             = []byte("market/dispute/")
	disputeByInvocationPrefix = []byte("market/dispute/byInvocation/")
	tagIndexPrefix            = []byte("market/index/listings/tag/")
	providerIndexPrefix       = []byte("market/index/listings/provider/")
	listingInvocationsPrefix  = []byte("market/index/invocations/listing/")
	invokerIndexPrefix        = []byte("market/index/invocations/invoker/")
	deadlineBucketPrefix      = []byte("market/index/invocations/deadline/")
	deadlineCursorKey         = []byte("market/index/deadline/cursor")

	listingSeqSalt    = []byte("agora/listing")
	invocationSeqSalt = []byte("agora/invocation")
	disputeSalt       = []byte("agora/dispute")
)

func listingKey(id [32]byte) []byte {
	return append(append([]byte(nil), listingPrefix...), id[:]...)
}

func invocationKey(id [32]byte) []byte {
	return append(append([]byte(nil), invocationPrefix...), id[:]...)
}

func proofsKey(invocationID [32]byte) []byte {
	return append(append([]byte(nil), proofPrefix...), invocationID[:]...)
}

func disputeKey(id [32]byte) []byte {
	return append(append([]byte(nil), disputePrefix...), id[:]...)
}

func disputeByInvocationKey(invocationID [32]byte) []byte {
	return append(append([]byte(nil), disputeByInvocationPrefix...), invocationID[:]...)
}

func tagIndexKey(tag string) []byte {
	digest := ethcrypto.Keccak256([]byte(strings.ToLower(strings.TrimSpace(tag))))
	return append(append([]byte(nil), tagIndexPrefix...), digest...)
}

func providerIndexKey(provider [20]byte) []byte {
	return append(append([]byte(nil), providerIndexPrefix...), provider[:]...)
}

func listingInvocationsKey(listingID [32]byte) []byte {
	return append(append([]byte(nil), listingInvocationsPrefix...), listingID[:]...)
}

func invokerIndexKey(invoker [20]byte) []byte {
	return append(append([]byte(nil), invokerIndexPrefix...), invoker[:]...)
}

func deadlineBucketKey(tick uint64) []byte {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], tick)
	return append(append([]byte(nil), deadlineBucketPrefix...), be[:]...)
}

// deriveListingID computes a deterministic listing identifier from the
// provider address and their per-account sequence number.
func deriveListingID(provider [20]byte, nonce uint64) [32]byte {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], nonce)
	digest := ethcrypto.Keccak256(listingSeqSalt, provider[:], be[:])
	var id [32]byte
	copy(id[:], digest)
	return id
}

// deriveInvocationID computes a deterministic invocation identifier from the
// invoker address and their per-account sequence number.
func deriveInvocationID(invoker [20]byte, nonce uint64) [32]byte {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], nonce)
	digest := ethcrypto.Keccak256(invocationSeqSalt, invoker[:], be[:])
	var id [32]byte
	copy(id[:], digest)
	return id
}

// deriveDisputeID computes the dispute identifier for an invocation. An
// invocation can carry at most one dispute, so the mapping is one to one.
func deriveDisputeID(invocationID [32]byte) [32]byte {
	digest := ethcrypto.Keccak256(disputeSalt, invocationID[:])
	var id [32]byte
	copy(id[:], digest)
	return id
}

func decodeIDList(raw [][]byte) ([][32]byte, error) {
	out := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 32 {
			return nil, fmt.Errorf("marketplace: malformed index entry length %d", len(entry))
		}
		var id [32]byte
		copy(id[:], entry)
		out = append(out, id)
	}
	return out, nil
}

func loadIDList(st State, key []byte) ([][32]byte, error) {
	var raw [][]byte
	if err := st.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	return decodeIDList(raw)
}
