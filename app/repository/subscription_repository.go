package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/SubTrack/app/models"
	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	if !sub.HasSingleOwner() {
		return fmt.Errorf("subscription must have exactly one owner: %w", apperr.ErrInvalidArgument)
	}
	if sub.Version == 0 {
		sub.Version = 1
	}
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, notFound(err, "subscription %d", id)
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetByExternalBillingID(ctx context.Context, externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("external_billing_id = ?", externalID).First(&sub).Error; err != nil {
		return nil, notFound(err, "subscription with billing id %q", externalID)
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListByUser(ctx context.Context, userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("next_due_date ASC, id ASC").Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) ListByTeam(ctx context.Context, teamID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).Where("team_id = ?", teamID).Order("next_due_date ASC, id ASC").Find(&subs).Error
	return subs, err
}

// Save never touches user_id / team_id; the owner is fixed at creation.
func (r *subscriptionRepository) Save(ctx context.Context, sub *models.Subscription) error {
	updates := map[string]interface{}{
		"name":                sub.Name,
		"cost":                sub.Cost,
		"currency":            sub.Currency,
		"frequency":           sub.Frequency,
		"status":              sub.Status,
		"paid":                sub.Paid,
		"paid_at":             sub.PaidAt,
		"next_due_date":       sub.NextDueDate,
		"snoozed_until":       sub.SnoozedUntil,
		"reminder_sent_at":    sub.ReminderSentAt,
		"external_billing_id": sub.ExternalBillingID,
		"last_payment_at":     sub.LastPaymentAt,
		"cancelled_at":        sub.CancelledAt,
		"version":             gorm.Expr("version + 1"),
	}
	tx := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND version = ?", sub.ID, sub.Version).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", sub.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("subscription %d: %w", sub.ID, apperr.ErrNotFound)
		}
		return fmt.Errorf("subscription %d version %d is stale: %w", sub.ID, sub.Version, apperr.ErrConflict)
	}
	sub.Version++
	return nil
}

func (r *subscriptionRepository) reminderWindow(ctx context.Context, q ReminderQuery) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("status = ? AND paid = ?", models.StatusActive, false).
		Where("next_due_date <= ?", q.Cutoff).
		Where("snoozed_until IS NULL OR snoozed_until <= ?", q.Now)
}

func (r *subscriptionRepository) ListReminderCandidates(ctx context.Context, q ReminderQuery) ([]models.Subscription, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	var subs []models.Subscription
	err := r.reminderWindow(ctx, q).
		Where("reminder_sent_at IS NULL").
		Where("id > ?", q.AfterID).
		Order("id ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) CountClaimedInWindow(ctx context.Context, q ReminderQuery) (int64, error) {
	var count int64
	err := r.reminderWindow(ctx, q).Where("reminder_sent_at IS NOT NULL").Count(&count).Error
	return count, err
}

// ClaimReminder is the compare-and-swap on reminder_sent_at. It also bumps the
// version so a lifecycle save based on a pre-claim read fails with a conflict
// instead of clearing the marker.
func (r *subscriptionRepository) ClaimReminder(ctx context.Context, id uint, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND reminder_sent_at IS NULL AND status = ?", id, models.StatusActive).
		Updates(map[string]interface{}{
			"reminder_sent_at": at,
			"version":          gorm.Expr("version + 1"),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, apperr.ErrNotFound)...)
	}
	return err
}
