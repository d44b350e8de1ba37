package metering

import (
	"errors"
	"fmt"

	"github.com/marinova/oceanmeter/pkg/ledger"
	"github.com/marinova/oceanmeter/pkg/plans"
)

var (
	// ErrNotFound is returned when the user has no ledger
	ErrNotFound = fmt.Errorf("user not found: %w", ledger.ErrNotFound)

	// ErrVerificationRequired is returned for accounts without a verified email
	ErrVerificationRequired = errors.New("email verification required")

	// ErrInvalidPlan is returned for an unknown subscription tier
	ErrInvalidPlan = errors.New("invalid subscription plan")
)

// InsufficientCreditsError reports an exhausted pool.
// Free accounts need a subscription; paid accounts need an upgrade or the next month.
type InsufficientCreditsError struct {
	Tier                 plans.Tier
	Feature              plans.Feature
	RequiresSubscription bool
	RequiresUpgrade      bool
	UsageCredits         int
	MonthlyCredits       plans.Limits
}

func (e *InsufficientCreditsError) Error() string {
	if e.RequiresSubscription {
		return "You have used all your free credits. Please subscribe to continue."
	}
	return fmt.Sprintf("You have used all your monthly %s credits. Please upgrade your plan or wait for next month.", e.Feature)
}

// ServiceUnavailableError is a transient provider failure. Nothing was charged.
type ServiceUnavailableError struct {
	Retryable bool
	Err       error
}

func (e *ServiceUnavailableError) Error() string {
	return "Our AI service is currently at capacity. Please try again in a few minutes. Your credits have NOT been deducted."
}

func (e *ServiceUnavailableError) Unwrap() error {
	return e.Err
}

// GenerationFailedError is a non-transient provider failure. Nothing was charged.
type GenerationFailedError struct {
	Err error
}

func (e *GenerationFailedError) Error() string {
	if e.Err == nil {
		return "generation failed"
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationFailedError) Unwrap() error {
	return e.Err
}

// IsInsufficientCredits reports whether err is an exhausted-pool rejection
func IsInsufficientCredits(err error) bool {
	var target *InsufficientCreditsError
	return errors.As(err, &target)
}

// IsServiceUnavailable reports whether err is a retryable provider failure
func IsServiceUnavailable(err error) bool {
	var target *ServiceUnavailableError
	return errors.As(err, &target)
}

// IsGenerationFailed reports whether err is a non-retryable provider failure
func IsGenerationFailed(err error) bool {
	var target *GenerationFailedError
	return errors.As(err, &target)
}

func translate(err error) error {
	if errors.Is(err, ledger.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func denialReason(err error) string {
	var insufficient *InsufficientCreditsError
	switch {
	case errors.Is(err, ErrVerificationRequired):
		return "verification_required"
	case errors.As(err, &insufficient) && insufficient.RequiresSubscription:
		return "free_exhausted"
	case errors.As(err, &insufficient):
		return "monthly_exhausted"
	default:
		return ""
	}
}
