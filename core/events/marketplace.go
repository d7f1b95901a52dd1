package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"agorachain/core/types"
)

const (
	TypeListingCreated      = "marketplace.listingCreated"
	TypeListingUpdated      = "marketplace.listingUpdated"
	TypeListingDelisted     = "marketplace.listingDelisted"
	TypeInvocationCreated   = "marketplace.invocationCreated"
	TypeInvocationAccepted  = "marketplace.invocationAccepted"
	TypeWorkSubmitted       = "marketplace.workSubmitted"
	TypeMilestoneApproved   = "marketplace.milestoneApproved"
	TypeInvocationFinalized = "marketplace.invocationFinalized"
	TypeInvocationCancelled = "marketplace.invocationCancelled"
	TypeInvocationExpired   = "marketplace.invocationExpired"
	TypeDisputeRaised       = "marketplace.disputeRaised"
	TypeDisputeResolved     = "marketplace.disputeResolved"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatID(id [32]byte) string {
	return hex.EncodeToString(id[:])
}

func formatAddr(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

type ListingCreated struct {
	ID       [32]byte
	Provider [20]byte
	Name     string
}

func (ListingCreated) EventType() string { return TypeListingCreated }

func (e ListingCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeListingCreated,
		Attributes: map[string]string{
			"id":       formatID(e.ID),
			"provider": formatAddr(e.Provider),
			"name":     e.Name,
		},
	}
}

type ListingUpdated struct {
	ID       [32]byte
	Provider [20]byte
}

func (ListingUpdated) EventType() string { return TypeListingUpdated }

func (e ListingUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeListingUpdated,
		Attributes: map[string]string{
			"id":       formatID(e.ID),
			"provider": formatAddr(e.Provider),
		},
	}
}

type ListingDelisted struct {
	ID       [32]byte
	Provider [20]byte
}

func (ListingDelisted) EventType() string { return TypeListingDelisted }

func (e ListingDelisted) Event() *types.Event {
	return &types.Event{
		Type: TypeListingDelisted,
		Attributes: map[string]string{
			"id":       formatID(e.ID),
			"provider": formatAddr(e.Provider),
		},
	}
}

type InvocationCreated struct {
	ID       [32]byte
	Listing  [32]byte
	Invoker  [20]byte
	Provider [20]byte
	Price    *big.Int
	Deadline uint64
}

func (InvocationCreated) EventType() string { return TypeInvocationCreated }

func (e InvocationCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeInvocationCreated,
		Attributes: map[string]string{
			"id":       formatID(e.ID),
			"listing":  formatID(e.Listing),
			"invoker":  formatAddr(e.Invoker),
			"provider": formatAddr(e.Provider),
			"price":    formatAmount(e.Price),
			"deadline": strconv.FormatUint(e.Deadline, 10),
		},
	}
}

type InvocationAccepted struct {
	ID       [32]byte
	Provider [20]byte
}

func (InvocationAccepted) EventType() string { return TypeInvocationAccepted }

func (e InvocationAccepted) Event() *types.Event {
	return &types.Event{
		Type: TypeInvocationAccepted,
		Attributes: map[string]string{
			"id":       formatID(e.ID),
			"provider": formatAddr(e.Provider),
		},
	}
}

type WorkSubmitted struct {
	ID        [32]byte
	Provider  [20]byte
	Milestone int
}

func (WorkSubmitted) EventType() string { return TypeWorkSubmitted }

func (e WorkSubmitted) Event() *types.Event {
	attrs := map[string]string{
		"id":       formatID(e.ID),
		"provider": formatAddr(e.Provider),
	}
	if e.Milestone >= 0 {
		attrs["milestone"] = strconv.Itoa(e.Milestone)
	}
	return &types.Event{Type: TypeWorkSubmitted, Attributes: attrs}
}

type MilestoneApproved struct {
	ID        [32]byte
	Milestone int
	Amount    *big.Int
}

func (MilestoneApproved) EventType() string { return TypeMilestoneApproved }

func (e MilestoneApproved) Event() *types.Event {
	return &types.Event{
		Type: TypeMilestoneApproved,
		Attributes: map[string]string{
			"id":        formatID(e.ID),
			"milestone": strconv.Itoa(e.Milestone),
			"amount":    formatAmount(e.Amount),
		},
	}
}

type InvocationFinalized struct {
	ID        [32]byte
	TotalPaid *big.Int
}

func (InvocationFinalized) EventType() string { return TypeInvocationFinalized }

func (e InvocationFinalized) Event() *types.Event {
	return &types.Event{
		Type: TypeInvocationFinalized,
		Attributes: map[string]string{
			"id":        formatID(e.ID),
			"totalPaid": formatAmount(e.TotalPaid),
		},
	}
}

type InvocationCancelled struct {
	ID       [32]byte
	Invoker  [20]byte
	Refunded *big.Int
}

func (InvocationCancelled) EventType() string { return TypeInvocationCancelled }

func (e InvocationCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeInvocationCancelled,
		Attributes: map[string]string{
			"id":       formatID(e.ID),
			"invoker":  formatAddr(e.Invoker),
			"refunded": formatAmount(e.Refunded),
		},
	}
}

type InvocationExpired struct {
	ID       [32]byte
	By       [20]byte
	Bounty   *big.Int
	Refunded *big.Int
}

func (InvocationExpired) EventType() string { return TypeInvocationExpired }

func (e InvocationExpired) Event() *types.Event {
	return &types.Event{
		Type: TypeInvocationExpired,
		Attributes: map[string]string{
			"id":       formatID(e.ID),
			"by":       formatAddr(e.By),
			"bounty":   formatAmount(e.Bounty),
			"refunded": formatAmount(e.Refunded),
		},
	}
}

type DisputeRaised struct {
	ID         [32]byte
	Invocation [32]byte
	RaisedBy   [20]byte
}

func (DisputeRaised) EventType() string { return TypeDisputeRaised }

func (e DisputeRaised) Event() *types.Event {
	return &types.Event{
		Type: TypeDisputeRaised,
		Attributes: map[string]string{
			"id":         formatID(e.ID),
			"invocation": formatID(e.Invocation),
			"raisedBy":   formatAddr(e.RaisedBy),
		},
	}
}

type DisputeResolved struct {
	ID         [32]byte
	Invocation [32]byte
	Winner     [20]byte
	Paid       *big.Int
}

func (DisputeResolved) EventType() string { return TypeDisputeResolved }

func (e DisputeResolved) Event() *types.Event {
	return &types.Event{
		Type: TypeDisputeResolved,
		Attributes: map[string]string{
			"id":         formatID(e.ID),
			"invocation": formatID(e.Invocation),
			"winner":     formatAddr(e.Winner),
			"paid":       formatAmount(e.Paid),
		},
	}
}
