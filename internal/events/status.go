package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felicity-fest/backend/internal/models"
)

// ErrInvalidTransition wraps every rejected status/field edit so handlers can
// map it to a 400.
var ErrInvalidTransition = errors.New("invalid event update")

func transitionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

// Update is a PATCH /events/:id body. Nil pointers mean "not provided".
type Update struct {
	Status               *models.EventStatus `json:"status"`
	Name                 *string             `json:"name"`
	Description          *string             `json:"description"`
	StartDate            *time.Time          `json:"start_date"`
	EndDate              *time.Time          `json:"end_date"`
	RegistrationDeadline *time.Time          `json:"registration_deadline"`
	RegistrationLimit    *int                `json:"registration_limit"`
	RegistrationFee      *int                `json:"registration_fee"`
	Eligibility          *models.Eligibility `json:"eligibility"`
	Tags                 []string            `json:"tags"`
	FormFields           []models.FormField  `json:"form_fields"`
	PurchaseLimit        *int                `json:"purchase_limit_per_participant"`
}

// Apply mutates ev according to the status state machine and field-locking
// rules, or returns an error wrapping ErrInvalidTransition. Disallowed edits
// are never silently ignored.
//
// Once registrationCount > 0 the draft form and most Published fields are
// permanently locked: the rules cannot change after people have signed up.
func Apply(ev *models.Event, upd Update, now time.Time) error {
	switch ev.Status {
	case models.StatusDraft:
		return applyDraft(ev, upd)
	case models.StatusPublished:
		return applyPublished(ev, upd, now)
	case models.StatusOngoing:
		return applyStatusOnly(ev, upd, "Ongoing",
			models.StatusCompleted, models.StatusCancelled, models.StatusPublished)
	case models.StatusCompleted:
		return applyStatusOnly(ev, upd, "Completed", models.StatusOngoing)
	case models.StatusCancelled:
		return applyStatusOnly(ev, upd, "Cancelled", models.StatusDraft, models.StatusPublished)
	}
	return transitionError("unknown event status %q", ev.Status)
}

func applyDraft(ev *models.Event, upd Update) error {
	if ev.RegistrationCount > 0 {
		if upd.Status != nil && (*upd.Status == models.StatusPublished || *upd.Status == models.StatusCancelled) {
			if hasFieldEdits(upd) {
				return transitionError("this draft is locked after receiving registrations; only status may change")
			}
			ev.Status = *upd.Status
			return nil
		}
		return transitionError("this draft is locked after receiving registrations; you can only publish or cancel it")
	}

	if upd.Status != nil {
		switch *upd.Status {
		case models.StatusPublished, models.StatusCancelled:
			ev.Status = *upd.Status
		case models.StatusDraft:
			// no-op
		default:
			return transitionError("draft events can only be published or cancelled, not %s", *upd.Status)
		}
	}

	// Unlocked draft: every field is editable.
	if upd.Name != nil {
		ev.Name = *upd.Name
	}
	if upd.Description != nil {
		ev.Description = *upd.Description
	}
	if upd.StartDate != nil {
		ev.StartDate = *upd.StartDate
	}
	if upd.EndDate != nil {
		ev.EndDate = *upd.EndDate
	}
	if upd.RegistrationDeadline != nil {
		ev.RegistrationDeadline = *upd.RegistrationDeadline
	}
	if upd.RegistrationLimit != nil {
		ev.RegistrationLimit = upd.RegistrationLimit
	}
	if upd.RegistrationFee != nil {
		if *upd.RegistrationFee < 0 {
			return transitionError("registration fee cannot be negative")
		}
		ev.RegistrationFee = *upd.RegistrationFee
	}
	if upd.Eligibility != nil {
		ev.Eligibility = *upd.Eligibility
	}
	if upd.Tags != nil {
		ev.Tags = upd.Tags
	}
	if upd.FormFields != nil {
		if ev.FormLocked {
			return transitionError("form fields are locked after the first registration")
		}
		ev.FormFields = upd.FormFields
	}
	if upd.PurchaseLimit != nil {
		ev.PurchaseLimitPerParticipant = *upd.PurchaseLimit
	}
	return nil
}

func applyPublished(ev *models.Event, upd Update, now time.Time) error {
	if upd.Status != nil {
		switch *upd.Status {
		case models.StatusCancelled:
			ev.Status = models.StatusCancelled
			return nil
		case models.StatusOngoing:
			// Going live closes registration immediately.
			ev.Status = models.StatusOngoing
			ev.RegistrationDeadline = now
			return nil
		case models.StatusCompleted:
			ev.Status = models.StatusCompleted
			return nil
		case models.StatusPublished:
			// no-op status; fall through to field edits
		default:
			return transitionError("published events cannot move to %s", *upd.Status)
		}
	}

	if ev.RegistrationCount > 0 {
		if locked := lockedFieldEdits(ev, upd); len(locked) > 0 {
			return transitionError("cannot change %s after registrations have been received", strings.Join(locked, ", "))
		}
	} else {
		if upd.Name != nil && *upd.Name != ev.Name {
			return transitionError("cannot change name after publishing")
		}
		if upd.Description != nil {
			ev.Description = *upd.Description
		}
		if upd.StartDate != nil {
			ev.StartDate = *upd.StartDate
		}
		if upd.EndDate != nil {
			ev.EndDate = *upd.EndDate
		}
	}
	if upd.RegistrationDeadline != nil {
		ev.RegistrationDeadline = *upd.RegistrationDeadline
	}
	if upd.RegistrationLimit != nil {
		ev.RegistrationLimit = upd.RegistrationLimit
	}
	return nil
}

// lockedFieldEdits returns the names of locked fields the update tries to change.
func lockedFieldEdits(ev *models.Event, upd Update) []string {
	var locked []string
	if upd.Name != nil && *upd.Name != ev.Name {
		locked = append(locked, "name")
	}
	if upd.Description != nil && *upd.Description != ev.Description {
		locked = append(locked, "description")
	}
	if upd.StartDate != nil && !upd.StartDate.Equal(ev.StartDate) {
		locked = append(locked, "startDate")
	}
	if upd.EndDate != nil && !upd.EndDate.Equal(ev.EndDate) {
		locked = append(locked, "endDate")
	}
	return locked
}

func applyStatusOnly(ev *models.Event, upd Update, from string, allowed ...models.EventStatus) error {
	if upd.Status == nil {
		return transitionError("only status changes are allowed for %s events", from)
	}
	if hasFieldEdits(upd) {
		return transitionError("only status changes are allowed for %s events", from)
	}
	for _, s := range allowed {
		if *upd.Status == s {
			ev.Status = s
			return nil
		}
	}
	targets := make([]string, len(allowed))
	for i, s := range allowed {
		targets[i] = string(s)
	}
	return transitionError("%s events can only move to %s", from, strings.Join(targets, ", "))
}

func hasFieldEdits(upd Update) bool {
	return upd.Name != nil || upd.Description != nil || upd.StartDate != nil ||
		upd.EndDate != nil || upd.RegistrationDeadline != nil || upd.RegistrationLimit != nil ||
		upd.RegistrationFee != nil || upd.Eligibility != nil || upd.Tags != nil ||
		upd.FormFields != nil || upd.PurchaseLimit != nil
}
