package audithook

// Action constants for audit events.
const (
	// Round actions
	ActionRoundStarted   = "round.started"
	ActionRoundFinalized = "round.finalized"
	ActionRoundUpdated   = "round.updated"

	// Contribution actions
	ActionContributionBought   = "contribution.bought"
	ActionContributionClaimed  = "contribution.claimed"
	ActionContributionRefunded = "contribution.refunded"

	// Treasury actions
	ActionFundsWithdrawn = "funds.withdrawn"

	// Administration actions
	ActionAdminChanged = "admin.changed"
	ActionUpgraded     = "implementation.upgraded"

	// Rejections
	ActionOperationRejected = "operation.rejected"
)

// Resource constants for audit events.
const (
	ResourceRound          = "round"
	ResourceContribution   = "contribution"
	ResourceTreasury       = "treasury"
	ResourceSale           = "sale"
	ResourceImplementation = "implementation"
)

// Category constants for audit events.
const (
	CategoryFunding = "funding"
	CategoryPayout  = "payout"
	CategoryAccess  = "access"
	CategoryUpgrade = "upgrade"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
