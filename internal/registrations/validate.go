package registrations

import (
	"errors"
	"fmt"
	"time"

	"github.com/felicity-fest/backend/internal/models"
)

// Conflict and validation errors surfaced as 400s; eligibility as 403.
var (
	ErrNotOpen           = errors.New("event is not open for registration")
	ErrDeadlinePassed    = errors.New("registration deadline has passed")
	ErrLimitReached      = errors.New("registration limit reached")
	ErrAlreadyRegistered = errors.New("already registered for this event")
	ErrNotEligible       = errors.New("not eligible for this event")
	ErrInvalidVariant    = errors.New("invalid variant selected")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPurchaseLimit     = errors.New("purchase limit reached for this event")
	ErrQuantityOverLimit = errors.New("quantity exceeds per-participant limit")
)

// checkOpen verifies the shared preconditions of both registration paths:
// open status and deadline not passed. Any failure aborts before any mutation.
func checkOpen(ev *models.Event, now time.Time) error {
	if !ev.OpenForRegistration() {
		return ErrNotOpen
	}
	if now.After(ev.RegistrationDeadline) {
		return ErrDeadlinePassed
	}
	return nil
}

// checkCapacity enforces the Normal-path registration limit. nil limit means
// unlimited. The read-then-increment window here matches the counter design:
// the increment itself is atomic, so concurrent registrants can briefly
// overshoot the limit but never corrupt the count.
func checkCapacity(ev *models.Event) error {
	if ev.RegistrationLimit != nil && ev.RegistrationCount >= *ev.RegistrationLimit {
		return ErrLimitReached
	}
	return nil
}

// checkEligibility enforces the event's audience restriction for Normal events.
func checkEligibility(ev *models.Event, participantType models.ParticipantType) error {
	switch ev.Eligibility {
	case models.EligibilityIIIT:
		if participantType != models.ParticipantIIIT {
			return fmt.Errorf("%w: this event is for IIIT participants only", ErrNotEligible)
		}
	case models.EligibilityNonIIIT:
		if participantType != models.ParticipantNonIIIT {
			return fmt.Errorf("%w: this event is for Non-IIIT participants only", ErrNotEligible)
		}
	}
	return nil
}

// checkPurchase validates quantity against variant stock and the
// per-participant purchase limit, including prior purchases.
func checkPurchase(ev *models.Event, variant *models.Variant, quantity, priorPurchased int) error {
	if variant == nil {
		return ErrInvalidVariant
	}
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrQuantityOverLimit)
	}
	if variant.Stock < quantity {
		return ErrInsufficientStock
	}
	if quantity > ev.PurchaseLimitPerParticipant {
		return fmt.Errorf("%w: max %d per participant", ErrQuantityOverLimit, ev.PurchaseLimitPerParticipant)
	}
	if priorPurchased+quantity > ev.PurchaseLimitPerParticipant {
		return ErrPurchaseLimit
	}
	return nil
}
