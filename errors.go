package crowdsale

import (
	"errors"
	"fmt"

	"github.com/xraph/crowdsale/access"
)

// Sentinel errors, grouped by how a caller should react to them.
var (
	// Authorization errors
	ErrUnauthorized = access.ErrUnauthorized

	// Phase errors: the operation is not valid in the round's current phase.
	ErrNoActiveRound      = errors.New("crowdsale: no round has been started")
	ErrRoundEnded         = errors.New("crowdsale: round end time has passed")
	ErrRoundFinalized     = errors.New("crowdsale: round is finalized")
	ErrRoundNotEnded      = errors.New("crowdsale: round end time not reached")
	ErrRoundNotFinalized  = errors.New("crowdsale: round is not finalized")
	ErrRoundNotSuccessful = errors.New("crowdsale: round did not reach its soft cap")
	ErrRoundSuccessful    = errors.New("crowdsale: round reached its soft cap")
	ErrAlreadyFinalized   = errors.New("crowdsale: round already finalized")

	// Double resolution errors
	ErrAlreadyResolved  = errors.New("crowdsale: contribution already claimed or refunded")
	ErrAlreadyWithdrawn = errors.New("crowdsale: round funds already withdrawn")

	// Zero value errors
	ErrZeroAmount      = errors.New("crowdsale: amount must be greater than zero")
	ErrNothingToClaim  = errors.New("crowdsale: no entitlement to claim")
	ErrNothingToRefund = errors.New("crowdsale: no contribution to refund")

	// Round creation errors
	ErrZeroRate                  = errors.New("crowdsale: rate must be greater than zero")
	ErrEndTimeInPast             = errors.New("crowdsale: end time must be in the future")
	ErrPreviousRoundNotFinalized = errors.New("crowdsale: previous round is not finalized")
	ErrBalanceNotDrained         = errors.New("crowdsale: held balance is not zero")

	// Lifecycle errors
	ErrNotInitialized       = errors.New("crowdsale: sale is not initialized")
	ErrAlreadyInitialized   = errors.New("crowdsale: sale already initialized")
	ErrLayoutNotAppendOnly  = errors.New("crowdsale: storage layout must extend the active layout")
	ErrMinterNotConfigured  = errors.New("crowdsale: no token minter configured")
	ErrPayoutNotConfigured  = errors.New("crowdsale: no payout transferer configured")
	ErrMintFailed           = errors.New("crowdsale: mint failed")
	ErrPayoutFailed         = errors.New("crowdsale: payout failed")
	// ErrResolutionUncertain means a mint or payout went out but the ledger
	// could not record it. The operation must be reconciled, not retried.
	ErrResolutionUncertain  = errors.New("crowdsale: external call completed but the ledger write failed")
	ErrAmountOverflow       = errors.New("crowdsale: amount overflow")
	ErrLedgerInconsistent   = errors.New("crowdsale: ledger totals are inconsistent")
	ErrInsufficientHoldings = errors.New("crowdsale: held balance is lower than the payout")

	// Not found errors
	ErrNotFound             = errors.New("crowdsale: not found")
	ErrRoundNotFound        = errors.New("crowdsale: round not found")
	ErrContributionNotFound = errors.New("crowdsale: contribution not found")

	// Store errors
	ErrStoreClosed       = errors.New("crowdsale: store is closed")
	ErrTransactionFailed = errors.New("crowdsale: transaction failed")
	ErrMigrationFailed   = errors.New("crowdsale: migration failed")
)

// ValidationError represents an invalid argument.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("crowdsale: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError collects several errors.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "crowdsale: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("crowdsale: %d errors occurred", len(e.Errors))
}

// Unwrap lets errors.Is and errors.As see every collected error.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add appends err if it is not nil.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors reports whether any error was added.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrOrNil returns e if it holds errors and nil otherwise.
func (e MultiError) ErrOrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// IsAuthorizationError reports whether the caller lacked a required role.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsPhaseError reports whether the operation was invoked outside its
// valid round phase.
func IsPhaseError(err error) bool {
	return errors.Is(err, ErrNoActiveRound) ||
		errors.Is(err, ErrRoundEnded) ||
		errors.Is(err, ErrRoundFinalized) ||
		errors.Is(err, ErrRoundNotEnded) ||
		errors.Is(err, ErrRoundNotFinalized) ||
		errors.Is(err, ErrRoundNotSuccessful) ||
		errors.Is(err, ErrRoundSuccessful) ||
		errors.Is(err, ErrAlreadyFinalized)
}

// IsDoubleResolution reports whether a claim, refund or withdrawal had
// already happened.
func IsDoubleResolution(err error) bool {
	return errors.Is(err, ErrAlreadyResolved) ||
		errors.Is(err, ErrAlreadyWithdrawn)
}

// IsZeroValue reports whether the operation carried nothing to move.
func IsZeroValue(err error) bool {
	return errors.Is(err, ErrZeroAmount) ||
		errors.Is(err, ErrNothingToClaim) ||
		errors.Is(err, ErrNothingToRefund)
}

// IsRoundCreationError reports whether StartRound preconditions failed.
func IsRoundCreationError(err error) bool {
	return errors.Is(err, ErrZeroRate) ||
		errors.Is(err, ErrEndTimeInPast) ||
		errors.Is(err, ErrPreviousRoundNotFinalized) ||
		errors.Is(err, ErrBalanceNotDrained)
}

// IsNotFound reports whether a record was missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrRoundNotFound) ||
		errors.Is(err, ErrContributionNotFound)
}

// IsRetryable reports whether the operation failed in an external call or
// the store and was rolled back, so resubmitting it is safe.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrResolutionUncertain) {
		return false
	}
	return errors.Is(err, ErrMintFailed) ||
		errors.Is(err, ErrPayoutFailed) ||
		errors.Is(err, ErrTransactionFailed)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
