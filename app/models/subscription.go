package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SubTrack/internal/pkg/recurrence"
)

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusPending   SubscriptionStatus = "pending"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusPastDue   SubscriptionStatus = "past_due"
)

func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusPending, StatusExpired, StatusCancelled, StatusPastDue:
		return true
	}
	return false
}

// Subscription is a recurring charge tracked for exactly one user or one team.
// Version is bumped by every repository save and guards against lost updates.
type Subscription struct {
	ID                uint                 `gorm:"primaryKey" json:"id"`
	UserID            *uint                `gorm:"index" json:"user_id,omitempty"`
	TeamID            *uint                `gorm:"index" json:"team_id,omitempty"`
	Name              string               `gorm:"type:varchar(255);not null" json:"name" validate:"required,min=1,max=255"`
	Cost              decimal.Decimal      `gorm:"type:decimal(12,2);not null;default:0" json:"cost"`
	Currency          string               `gorm:"type:varchar(3);not null;default:'USD'" json:"currency" validate:"required,len=3,alpha"`
	Frequency         recurrence.Frequency `gorm:"type:varchar(16);not null;default:'monthly'" json:"frequency" validate:"required,oneof=daily weekly monthly yearly"`
	Status            SubscriptionStatus   `gorm:"type:varchar(16);not null;default:'active';index:idx_subscriptions_due,priority:2" json:"status"`
	Paid              bool                 `gorm:"not null;default:false" json:"paid"`
	PaidAt            *time.Time           `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	NextDueDate       time.Time            `gorm:"type:date;not null;index:idx_subscriptions_due,priority:1" json:"next_due_date"`
	SnoozedUntil      *time.Time           `gorm:"type:timestamp;default:null" json:"snoozed_until,omitempty"`
	ReminderSentAt    *time.Time           `gorm:"type:timestamp;default:null;index" json:"reminder_sent_at,omitempty"`
	ExternalBillingID *string              `gorm:"type:varchar(191);uniqueIndex" json:"external_billing_id,omitempty"`
	LastPaymentAt     *time.Time           `gorm:"type:timestamp;default:null" json:"last_payment_at,omitempty"`
	CancelledAt       *time.Time           `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	Version           uint                 `gorm:"not null" json:"version"`
	CreatedAt         time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// HasSingleOwner reports whether exactly one of UserID / TeamID is set.
func (s *Subscription) HasSingleOwner() bool {
	return (s.UserID != nil) != (s.TeamID != nil)
}

// IsTeamOwned reports whether reminders fan out to team members.
func (s *Subscription) IsTeamOwned() bool {
	return s.TeamID != nil
}

func (s *Subscription) BillingID() string {
	if s.ExternalBillingID == nil {
		return ""
	}
	return *s.ExternalBillingID
}
