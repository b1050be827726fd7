package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SubTrack/app/models"
	"github.com/ManuelReschke/SubTrack/app/repository"
	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
	"github.com/ManuelReschke/SubTrack/internal/pkg/clock"
	"github.com/ManuelReschke/SubTrack/internal/pkg/lifecycle"
	"github.com/ManuelReschke/SubTrack/internal/pkg/recurrence"
)

// Outcome is the result of applying one event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeRejected  Outcome = "rejected"
	OutcomeIgnored   Outcome = "ignored"
)

const (
	DefaultDedupTTL    = 24 * time.Hour
	maxSaveAttempts    = 3
	maxCatchUpRenewals = 24
)

// Reconciler applies verified processor events to local subscriptions.
type Reconciler struct {
	subs      repository.SubscriptionRepository
	directory repository.DirectoryRepository
	dedup     DedupStore
	clock     clock.Clock
	ttl       time.Duration
}

func NewReconciler(subs repository.SubscriptionRepository, directory repository.DirectoryRepository, dedup DedupStore, clk clock.Clock, ttl time.Duration) *Reconciler {
	if clk == nil {
		clk = clock.Real{}
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Reconciler{subs: subs, directory: directory, dedup: dedup, clock: clk, ttl: ttl}
}

// Apply maps one event onto local state. Unverified events are rejected
// before anything is read. A returned error other than a rejection is
// transient: the dedup marker has been released and the processor may retry.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	if !ev.Verified {
		return OutcomeRejected, fmt.Errorf("event %q is not signature-verified: %w", ev.ID, apperr.ErrRejected)
	}
	if strings.TrimSpace(ev.ID) == "" {
		return OutcomeRejected, fmt.Errorf("event id is empty: %w", apperr.ErrRejected)
	}

	first, err := r.dedup.Claim(ctx, ev.ID, ev.Type, r.ttl)
	if err != nil {
		return "", fmt.Errorf("dedup claim for event %s: %w", ev.ID, err)
	}
	if !first {
		log.Infof("[Reconciler] Duplicate event %s (%s)", ev.ID, ev.Type)
		return OutcomeDuplicate, nil
	}

	outcome, err := r.dispatch(ctx, ev)
	if err != nil {
		if errors.Is(err, apperr.ErrRejected) {
			log.Warnf("[Reconciler] Rejected event %s (%s): %v", ev.ID, ev.Type, err)
			return OutcomeRejected, err
		}
		if relErr := r.dedup.Release(context.WithoutCancel(ctx), ev.ID); relErr != nil {
			log.Errorf("[Reconciler] Failed to release marker for event %s: %v", ev.ID, relErr)
		}
		log.Errorf("[Reconciler] Event %s (%s) failed: %v", ev.ID, ev.Type, err)
		return "", err
	}
	log.Infof("[Reconciler] Event %s (%s): %s", ev.ID, ev.Type, outcome)
	return outcome, nil
}

func (r *Reconciler) dispatch(ctx context.Context, ev Event) (Outcome, error) {
	switch ev.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var obj subscriptionObject
		if err := decodeObject(ev, &obj); err != nil {
			return "", err
		}
		return r.upsertSubscription(ctx, &obj)
	case EventSubscriptionDeleted:
		var obj subscriptionObject
		if err := decodeObject(ev, &obj); err != nil {
			return "", err
		}
		return r.mutateByExternalID(ctx, obj.ID, func(sub *models.Subscription, now time.Time) error {
			return lifecycle.Cancel(sub, now)
		})
	case EventInvoicePaymentFailed:
		var obj invoiceObject
		if err := decodeObject(ev, &obj); err != nil {
			return "", err
		}
		return r.mutateByExternalID(ctx, obj.subscriptionID(), func(sub *models.Subscription, _ time.Time) error {
			return lifecycle.MarkPastDue(sub)
		})
	case EventInvoicePaymentSucceeded:
		var obj invoiceObject
		if err := decodeObject(ev, &obj); err != nil {
			return "", err
		}
		return r.mutateByExternalID(ctx, obj.subscriptionID(), func(sub *models.Subscription, now time.Time) error {
			at := now
			if paid := obj.paidAt(); paid != nil {
				at = *paid
			}
			return lifecycle.RecordPayment(sub, at)
		})
	default:
		return OutcomeIgnored, nil
	}
}

func decodeObject(ev Event, dst interface{}) error {
	if len(ev.Object) == 0 {
		return fmt.Errorf("event %s has no data object: %w", ev.ID, apperr.ErrRejected)
	}
	if err := json.Unmarshal(ev.Object, dst); err != nil {
		return fmt.Errorf("event %s data object: %v: %w", ev.ID, err, apperr.ErrRejected)
	}
	return nil
}

// mutateByExternalID loads, mutates and saves with conflict retries.
// ErrAlreadyApplied counts as applied; an invalid transition is ignored.
func (r *Reconciler) mutateByExternalID(ctx context.Context, externalID string, fn func(*models.Subscription, time.Time) error) (Outcome, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return OutcomeUnmatched, nil
	}
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		sub, err := r.subs.GetByExternalBillingID(ctx, externalID)
		if errors.Is(err, apperr.ErrNotFound) {
			log.Warnf("[Reconciler] No local subscription for %s", externalID)
			return OutcomeUnmatched, nil
		}
		if err != nil {
			return "", err
		}
		switch err := fn(sub, r.clock.Now()); {
		case errors.Is(err, apperr.ErrAlreadyApplied):
			return OutcomeApplied, nil
		case errors.Is(err, apperr.ErrInvalidTransition):
			log.Infof("[Reconciler] Ignoring event for %s: %v", externalID, err)
			return OutcomeIgnored, nil
		case err != nil:
			return "", err
		}
		if err := r.subs.Save(ctx, sub); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				lastErr = err
				continue
			}
			return "", err
		}
		return OutcomeApplied, nil
	}
	return "", lastErr
}

func (r *Reconciler) upsertSubscription(ctx context.Context, obj *subscriptionObject) (Outcome, error) {
	externalID := strings.TrimSpace(obj.ID)
	if externalID == "" {
		return "", fmt.Errorf("subscription object has no id: %w", apperr.ErrRejected)
	}
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		sub, err := r.subs.GetByExternalBillingID(ctx, externalID)
		if errors.Is(err, apperr.ErrNotFound) {
			outcome, created, err := r.createFromProcessor(ctx, obj)
			if err != nil || created {
				return outcome, err
			}
			// Lost a create race against another event for the same
			// subscription; update the row that won.
			continue
		}
		if err != nil {
			return "", err
		}
		if sub.Status == models.StatusCancelled {
			return OutcomeIgnored, nil
		}

		r.applyProcessorState(sub, obj)
		if err := r.subs.Save(ctx, sub); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				lastErr = err
				continue
			}
			return "", err
		}
		return OutcomeApplied, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("subscription %s kept changing: %w", externalID, apperr.ErrConflict)
	}
	return "", lastErr
}

func (r *Reconciler) applyProcessorState(sub *models.Subscription, obj *subscriptionObject) {
	now := r.clock.Now()
	if name := obj.displayName(); name != "" {
		sub.Name = name
	}
	if cost, currency := obj.amount(); cost != nil {
		sub.Cost = *cost
		if currency != "" {
			sub.Currency = currency
		}
	}
	if interval := obj.interval(); interval != "" {
		sub.Frequency = MapInterval(interval)
	}

	status, known := MapStatus(obj.Status)
	if end := obj.periodEnd(); end != nil && (!known || status == models.StatusActive) {
		r.renewThrough(sub, clock.StartOfDay(*end))
	}
	if known {
		if err := lifecycle.ApplyBillingStatus(sub, status, now); err != nil && !errors.Is(err, apperr.ErrAlreadyApplied) {
			log.Infof("[Reconciler] Keeping status %s for subscription %d: %v", sub.Status, sub.ID, err)
		}
	}
}

// renewThrough advances the due date one cycle at a time while the next
// cycle still falls on or before periodEnd. The local date can trail the
// processor's anchor after a month-end clamp, so a repeated period end
// must not renew again.
func (r *Reconciler) renewThrough(sub *models.Subscription, periodEnd time.Time) {
	for i := 0; i < maxCatchUpRenewals; i++ {
		if recurrence.NextDueDate(sub.NextDueDate, sub.Frequency).After(periodEnd) {
			return
		}
		if err := lifecycle.Renew(sub); err != nil {
			log.Debugf("[Reconciler] Not renewing subscription %d: %v", sub.ID, err)
			return
		}
	}
	log.Warnf("[Reconciler] Subscription %d still behind period end %s after %d renewals", sub.ID, periodEnd.Format(time.DateOnly), maxCatchUpRenewals)
}

// createFromProcessor returns created=false when the row appeared concurrently.
func (r *Reconciler) createFromProcessor(ctx context.Context, obj *subscriptionObject) (Outcome, bool, error) {
	owner, err := r.directory.ResolveOwnerByExternalCustomerID(ctx, obj.Customer)
	if err != nil {
		return "", false, err
	}
	if owner == nil {
		log.Warnf("[Reconciler] No user or team for customer %q (subscription %s)", obj.Customer, obj.ID)
		return OutcomeUnmatched, true, nil
	}

	now := r.clock.Now()
	externalID := strings.TrimSpace(obj.ID)
	sub := &models.Subscription{
		UserID:            owner.UserID,
		TeamID:            owner.TeamID,
		Name:              obj.displayName(),
		Currency:          "USD",
		Frequency:         MapInterval(obj.interval()),
		Status:            models.StatusActive,
		NextDueDate:       clock.StartOfDay(now),
		ExternalBillingID: &externalID,
		Version:           1,
	}
	if sub.Name == "" {
		sub.Name = "Subscription " + externalID
	}
	if cost, currency := obj.amount(); cost != nil {
		sub.Cost = *cost
		if currency != "" {
			sub.Currency = currency
		}
	}
	if end := obj.periodEnd(); end != nil {
		sub.NextDueDate = clock.StartOfDay(*end)
	}
	if status, ok := MapStatus(obj.Status); ok {
		sub.Status = status
		if status == models.StatusCancelled {
			sub.CancelledAt = &now
		}
	}

	if err := r.subs.Create(ctx, sub); err != nil {
		if _, getErr := r.subs.GetByExternalBillingID(ctx, externalID); getErr == nil {
			return "", false, nil
		}
		return "", false, err
	}
	return OutcomeApplied, true, nil
}
