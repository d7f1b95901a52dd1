package marketplace

import (
	"math/big"
	"strings"
)

// PaymentMode tags how a listing expects to be paid out.
const (
	PaymentModeLumpSum   = "lumpsum"
	PaymentModeMilestone = "milestone"
)

// NormalizePaymentMode canonicalises the payment-mode tag and rejects
// unsupported values.
func NormalizePaymentMode(mode string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(mode))
	switch trimmed {
	case "", PaymentModeLumpSum:
		return PaymentModeLumpSum, nil
	case PaymentModeMilestone:
		return PaymentModeMilestone, nil
	default:
		return "", ErrInvalidPaymentMode
	}
}

// ServiceListing is a reusable service offer published by a provider.
// Historical counters survive delisting; Active=false is terminal for new
// invocations.
type ServiceListing struct {
	ID                    [32]byte
	Provider              [20]byte
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
	Active                bool
	TotalInvocations      uint64
	SuccessfulInvocations uint64
	CreatedAt             uint64
	UpdatedAt             uint64
}

// Clone returns a deep copy so callers can mutate the copy safely.
func (l *ServiceListing) Clone() *ServiceListing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Tags = append([]string(nil), l.Tags...)
	clone.MinPrice = cloneBigInt(l.MinPrice)
	clone.MaxPrice = cloneBigInt(l.MaxPrice)
	return &clone
}

// MilestoneStatus tracks a milestone through its submission lifecycle.
type MilestoneStatus uint8

const (
	MilestonePending MilestoneStatus = iota
	MilestoneSubmitted
	MilestoneApproved
)

// Milestone is a percentage-weighted sub-deliverable embedded in an
// invocation. All milestones of an invocation sum to exactly 100.
type Milestone struct {
	Description string
	Percent     uint32
	Status      MilestoneStatus
	SubmittedAt uint64
	ApprovedAt  uint64
}

// MilestoneSpec is the caller-supplied shape used at invocation time.
type MilestoneSpec struct {
	Description string
	Percent     uint32
}

// InvocationStatus enumerates the invocation state machine.
type InvocationStatus uint8

const (
	InvocationPending InvocationStatus = iota
	InvocationAccepted
	InvocationInProgress
	InvocationWorkSubmitted
	InvocationDisputed
	InvocationFullyApproved
	InvocationCancelled
	InvocationExpired
)

// Terminal reports whether the status admits no further transitions.
func (s InvocationStatus) Terminal() bool {
	switch s {
	case InvocationFullyApproved, InvocationCancelled, InvocationExpired:
		return true
	default:
		return false
	}
}

func (s InvocationStatus) String() string {
	switch s {
	case InvocationPending:
		return "pending"
	case InvocationAccepted:
		return "accepted"
	case InvocationInProgress:
		return "inProgress"
	case InvocationWorkSubmitted:
		return "workSubmitted"
	case InvocationDisputed:
		return "disputed"
	case InvocationFullyApproved:
		return "fullyApproved"
	case InvocationCancelled:
		return "cancelled"
	case InvocationExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ServiceInvocation is one consumer's engagement of a listing. It owns
// exactly one escrow holding equal to Price until fully distributed.
type ServiceInvocation struct {
	ID           [32]byte
	Listing      [32]byte
	Invoker      [20]byte
	Provider     [20]byte
	Requirements []byte
	Price        *big.Int
	EscrowRef    [32]byte
	Status       InvocationStatus
	Milestones   []Milestone
	Released     *big.Int
	Deadline     uint64
	CreatedAt    uint64
	AcceptedAt   uint64
	CompletedAt  uint64
}

// Clone returns a deep copy so callers can mutate the copy safely.
func (inv *ServiceInvocation) Clone() *ServiceInvocation {
	if inv == nil {
		return nil
	}
	clone := *inv
	clone.Requirements = append([]byte(nil), inv.Requirements...)
	clone.Milestones = append([]Milestone(nil), inv.Milestones...)
	clone.Price = cloneBigInt(inv.Price)
	clone.Released = cloneBigInt(inv.Released)
	return &clone
}

// WorkProof is append-only evidence attached to an invocation, optionally
// scoped to a single milestone. Proofs never mutate financial state.
type WorkProof struct {
	Invocation   [32]byte
	HasMilestone bool
	Milestone    uint32
	Kind         string
	ContentRef   string
	SubmittedAt  uint64
}

// WorkProofSpec is the caller-supplied shape recorded by SubmitWork.
type WorkProofSpec struct {
	Kind       string
	ContentRef string
}

// DisputeStatus tracks a dispute from opening to arbiter resolution.
type DisputeStatus uint8

const (
	DisputeOpen DisputeStatus = iota
	DisputeResolved
	// DisputeClosed voids a dispute whose invocation expired before the
	// arbiter ruled; the escrow has already been refunded.
	DisputeClosed
)

// DisputeRecord captures a dispute opened against an invocation and, once
// resolved, the declared winner.
type DisputeRecord struct {
	ID          [32]byte
	Invocation  [32]byte
	RaisedBy    [20]byte
	Reason      string
	EvidenceRef string
	Status      DisputeStatus
	Winner      [20]byte
	RaisedAt    uint64
	ResolvedAt  uint64
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
