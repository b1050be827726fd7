// Package lifecycle holds the subscription state machine. The functions in
// this file mutate a loaded subscription in memory; Service persists them.
package lifecycle

import (
	"fmt"
	"slices"
	"time"

	"github.com/ManuelReschke/SubTrack/app/models"
	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
	"github.com/ManuelReschke/SubTrack/internal/pkg/clock"
	"github.com/ManuelReschke/SubTrack/internal/pkg/recurrence"
)

// Transition is a status change between two distinct states.
type Transition struct {
	From models.SubscriptionStatus
	To   models.SubscriptionStatus
}

// cancelled has no outgoing edges.
var validTransitions = map[Transition]bool{
	{models.StatusPending, models.StatusActive}:    true,
	{models.StatusPending, models.StatusPastDue}:   true,
	{models.StatusPending, models.StatusExpired}:   true,
	{models.StatusPending, models.StatusCancelled}: true,
	{models.StatusActive, models.StatusPastDue}:    true,
	{models.StatusActive, models.StatusExpired}:    true,
	{models.StatusActive, models.StatusCancelled}:  true,
	{models.StatusPastDue, models.StatusActive}:    true,
	{models.StatusPastDue, models.StatusExpired}:   true,
	{models.StatusPastDue, models.StatusCancelled}: true,
	{models.StatusExpired, models.StatusActive}:    true,
	{models.StatusExpired, models.StatusCancelled}: true,
}

// CanTransition reports whether a subscription may move from one status to another.
func CanTransition(from, to models.SubscriptionStatus) bool {
	return validTransitions[Transition{from, to}]
}

// ValidTransitionsFrom returns the reachable statuses in sorted order.
func ValidTransitionsFrom(from models.SubscriptionStatus) []models.SubscriptionStatus {
	targets := make([]models.SubscriptionStatus, 0)
	for t := range validTransitions {
		if t.From == from {
			targets = append(targets, t.To)
		}
	}
	slices.Sort(targets)
	return targets
}

func invalid(sub *models.Subscription, op string) error {
	return fmt.Errorf("%s subscription %d in status %s: %w", op, sub.ID, sub.Status, apperr.ErrInvalidTransition)
}

// Renew starts the next billing cycle.
func Renew(sub *models.Subscription) error {
	switch sub.Status {
	case models.StatusActive, models.StatusPastDue, models.StatusPending:
	default:
		return invalid(sub, "renew")
	}
	sub.Paid = false
	sub.PaidAt = nil
	sub.SnoozedUntil = nil
	sub.ReminderSentAt = nil
	sub.Status = models.StatusActive
	sub.NextDueDate = recurrence.NextDueDate(sub.NextDueDate, sub.Frequency)
	return nil
}

// Snooze suppresses reminders until now + days.
func Snooze(sub *models.Subscription, days int, now time.Time) error {
	if sub.Status == models.StatusCancelled {
		return invalid(sub, "snooze")
	}
	if days <= 0 {
		return fmt.Errorf("snooze days must be positive, got %d: %w", days, apperr.ErrInvalidArgument)
	}
	until := now.AddDate(0, 0, days)
	sub.SnoozedUntil = &until
	return nil
}

// Reschedule moves the due date to a day after today and reactivates the
// subscription. Moving the date later re-arms the reminder for the new date;
// moving it earlier keeps an already sent reminder.
func Reschedule(sub *models.Subscription, date, now time.Time) error {
	if sub.Status == models.StatusCancelled {
		return invalid(sub, "reschedule")
	}
	day := clock.StartOfDay(date)
	if !day.After(clock.StartOfDay(now)) {
		return fmt.Errorf("reschedule date %s is not in the future: %w", day.Format(time.DateOnly), apperr.ErrInvalidArgument)
	}
	if day.After(sub.NextDueDate) {
		sub.ReminderSentAt = nil
	}
	sub.NextDueDate = day
	sub.Status = models.StatusActive
	return nil
}

// MarkPaid records payment for the current cycle. Paying a past_due
// subscription reactivates it.
func MarkPaid(sub *models.Subscription, now time.Time) error {
	if sub.Status == models.StatusCancelled {
		return invalid(sub, "mark paid")
	}
	if sub.Paid {
		return fmt.Errorf("subscription %d: %w", sub.ID, apperr.ErrAlreadyApplied)
	}
	sub.Paid = true
	sub.PaidAt = &now
	if sub.Status == models.StatusPastDue {
		sub.Status = models.StatusActive
	}
	return nil
}

// Cancel is terminal.
func Cancel(sub *models.Subscription, now time.Time) error {
	if sub.Status == models.StatusCancelled {
		return invalid(sub, "cancel")
	}
	sub.Status = models.StatusCancelled
	sub.CancelledAt = &now
	return nil
}

// MarkPastDue flags a failed payment. The paid flag is dropped so that a
// paid subscription is never past_due.
func MarkPastDue(sub *models.Subscription) error {
	if sub.Status == models.StatusPastDue {
		return fmt.Errorf("subscription %d: %w", sub.ID, apperr.ErrAlreadyApplied)
	}
	if !CanTransition(sub.Status, models.StatusPastDue) {
		return invalid(sub, "mark past due")
	}
	sub.Status = models.StatusPastDue
	sub.Paid = false
	sub.PaidAt = nil
	return nil
}

// ApplyBillingStatus moves the subscription to a status reported by the
// payment processor. It returns apperr.ErrAlreadyApplied when nothing changes.
func ApplyBillingStatus(sub *models.Subscription, status models.SubscriptionStatus, now time.Time) error {
	if !status.IsValid() {
		return fmt.Errorf("billing status %q: %w", status, apperr.ErrInvalidArgument)
	}
	if sub.Status == status {
		return fmt.Errorf("subscription %d already %s: %w", sub.ID, status, apperr.ErrAlreadyApplied)
	}
	switch status {
	case models.StatusCancelled:
		return Cancel(sub, now)
	case models.StatusPastDue:
		return MarkPastDue(sub)
	}
	if !CanTransition(sub.Status, status) {
		return invalid(sub, "apply billing status "+string(status)+" to")
	}
	sub.Status = status
	return nil
}

// RecordPayment stores the processor's payment time without touching status.
func RecordPayment(sub *models.Subscription, at time.Time) error {
	if sub.LastPaymentAt != nil && !at.After(*sub.LastPaymentAt) {
		return fmt.Errorf("payment at %s already recorded for subscription %d: %w", at.Format(time.RFC3339), sub.ID, apperr.ErrAlreadyApplied)
	}
	sub.LastPaymentAt = &at
	return nil
}
