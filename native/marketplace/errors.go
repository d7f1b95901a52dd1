package marketplace

import "errors"

// Validation errors: the caller supplied a malformed or out-of-bounds field.
// The call aborts with no effect.
var (
	ErrEmptyName                  = errors.New("marketplace: name must not be empty")
	ErrNameTooLong                = errors.New("marketplace: name exceeds capacity")
	ErrDescriptionTooLong         = errors.New("marketplace: description exceeds capacity")
	ErrEmptyTag                   = errors.New("marketplace: tag must not be empty")
	ErrTagTooLong                 = errors.New("marketplace: tag exceeds capacity")
	ErrTooManyTags                = errors.New("marketplace: too many tags")
	ErrInvalidPaymentMode         = errors.New("marketplace: unsupported payment mode")
	ErrInvalidPriceBounds         = errors.New("marketplace: invalid price bounds")
	ErrAutoApproveDelayTooLong    = errors.New("marketplace: auto-approve delay exceeds safety cap")
	ErrInvalidPrice               = errors.New("marketplace: price must be positive")
	ErrPriceBelowMinimum          = errors.New("marketplace: price below listing minimum")
	ErrPriceAboveMaximum          = errors.New("marketplace: price above listing maximum")
	ErrZeroDeadline               = errors.New("marketplace: deadline delta must be positive")
	ErrSelfInvocation             = errors.New("marketplace: provider cannot invoke own listing")
	ErrMilestonesRequired         = errors.New("marketplace: listing requires milestones")
	ErrTooManyMilestones          = errors.New("marketplace: too many milestones")
	ErrMilestoneDescriptionLong   = errors.New("marketplace: milestone description exceeds capacity")
	ErrMilestonePercentZero       = errors.New("marketplace: milestone percentage must be positive")
	ErrMilestonePercentSum        = errors.New("marketplace: milestone percentages must sum to 100")
	ErrReasonTooLong              = errors.New("marketplace: dispute reason exceeds capacity")
	ErrEmptyReason                = errors.New("marketplace: dispute reason must not be empty")
	ErrEvidenceRefTooLong         = errors.New("marketplace: evidence reference exceeds capacity")
	ErrProofRefTooLong            = errors.New("marketplace: proof reference exceeds capacity")
	ErrEmptyProofRef              = errors.New("marketplace: proof reference must not be empty")
	ErrInvalidDisputeWinner       = errors.New("marketplace: winner must be a party to the invocation")
	ErrIndexCapacityExceeded      = errors.New("marketplace: index at capacity")
	ErrListingCapacityPerProvider = errors.New("marketplace: provider listing index at capacity")
	ErrListingCapacityPerTag      = errors.New("marketplace: tag listing index at capacity")
)

// Authorization errors: the caller does not hold the role the operation
// requires.
var (
	ErrUnauthorized = errors.New("marketplace: unauthorized caller")
)

// State-conflict errors: the operation is not valid for the record's current
// status.
var (
	ErrListingInactive            = errors.New("marketplace: listing inactive")
	ErrListingHasOpenInvocations  = errors.New("marketplace: listing has open invocations")
	ErrInvalidStatus              = errors.New("marketplace: operation not valid in current status")
	ErrInvocationDisputed         = errors.New("marketplace: invocation is disputed")
	ErrInvocationTerminal         = errors.New("marketplace: invocation already terminal")
	ErrMilestoneNotSubmitted      = errors.New("marketplace: milestone not submitted")
	ErrMilestoneAlreadySubmitted  = errors.New("marketplace: milestone already submitted")
	ErrMilestoneAlreadyApproved   = errors.New("marketplace: milestone already approved")
	ErrWorkNotSubmitted           = errors.New("marketplace: work not submitted")
	ErrAlreadyDisputed            = errors.New("marketplace: invocation already disputed")
	ErrDisputeNotOpen             = errors.New("marketplace: dispute not open")
	ErrDeadlineNotReached         = errors.New("marketplace: deadline not reached")
)

// Resource errors: the caller lacks the funds or reputation the operation
// requires.
var (
	ErrReputationTooLow = errors.New("marketplace: reputation below required minimum")
)

// Lookup errors.
var (
	ErrListingNotFound    = errors.New("marketplace: listing not found")
	ErrInvocationNotFound = errors.New("marketplace: invocation not found")
	ErrDisputeNotFound    = errors.New("marketplace: dispute not found")
	ErrMilestoneNotFound  = errors.New("marketplace: milestone not found")
	ErrNilState           = errors.New("marketplace: state not configured")
)
