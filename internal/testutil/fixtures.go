package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SubTrack/app/models"
	"github.com/ManuelReschke/SubTrack/internal/pkg/recurrence"
)

var seq atomic.Uint64

func next() uint64 {
	return seq.Add(1)
}

// Date returns midnight UTC of the given day.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TestUser creates an active user with a unique email.
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*models.User)) *models.User {
	t.Helper()

	n := next()
	user := &models.User{
		Name:     fmt.Sprintf("Test User %d", n),
		Email:    fmt.Sprintf("user%d@example.com", n),
		Timezone: "UTC",
		Status:   models.STATUS_ACTIVE,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

func WithEmail(email string) func(*models.User) {
	return func(u *models.User) {
		u.Email = email
	}
}

func WithPhone(phone string) func(*models.User) {
	return func(u *models.User) {
		u.Phone = phone
	}
}

func WithNotificationEmail(email string) func(*models.User) {
	return func(u *models.User) {
		u.NotificationEmail = email
	}
}

func WithWhatsApp(enabled bool) func(*models.User) {
	return func(u *models.User) {
		u.WhatsAppReminders = &enabled
	}
}

func WithCustomerID(id string) func(*models.User) {
	return func(u *models.User) {
		u.BillingCustomerID = id
	}
}

// TestTeam creates a team owned by owner (registered as member) plus the
// given additional members.
func TestTeam(t *testing.T, db *gorm.DB, owner *models.User, members ...*models.User) *models.Team {
	t.Helper()

	team := &models.Team{
		Name:    fmt.Sprintf("Team %d", next()),
		OwnerID: owner.ID,
	}
	if err := db.Create(team).Error; err != nil {
		t.Fatalf("Failed to create test team: %v", err)
	}

	rows := []models.TeamMember{{TeamID: team.ID, UserID: owner.ID, Role: models.TeamRoleOwner}}
	for _, m := range members {
		rows = append(rows, models.TeamMember{TeamID: team.ID, UserID: m.ID, Role: models.TeamRoleMember})
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("Failed to add team members: %v", err)
	}

	return team
}

// TestSubscription creates an active, unpaid monthly subscription owned by
// user due on the given date.
func TestSubscription(t *testing.T, db *gorm.DB, user *models.User, due time.Time, opts ...func(*models.Subscription)) *models.Subscription {
	t.Helper()

	sub := &models.Subscription{
		Name:        fmt.Sprintf("Service %d", next()),
		Cost:        decimal.RequireFromString("9.99"),
		Currency:    "USD",
		Frequency:   recurrence.Monthly,
		Status:      models.StatusActive,
		NextDueDate: due,
		Version:     1,
	}
	if user != nil {
		id := user.ID
		sub.UserID = &id
	}

	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

func WithTeam(team *models.Team) func(*models.Subscription) {
	return func(s *models.Subscription) {
		id := team.ID
		s.UserID = nil
		s.TeamID = &id
	}
}

func WithStatus(status models.SubscriptionStatus) func(*models.Subscription) {
	return func(s *models.Subscription) {
		s.Status = status
	}
}

func WithFrequency(f recurrence.Frequency) func(*models.Subscription) {
	return func(s *models.Subscription) {
		s.Frequency = f
	}
}

func WithExternalID(id string) func(*models.Subscription) {
	return func(s *models.Subscription) {
		s.ExternalBillingID = &id
	}
}

func WithReminderSentAt(at time.Time) func(*models.Subscription) {
	return func(s *models.Subscription) {
		s.ReminderSentAt = &at
	}
}

func WithSnoozedUntil(at time.Time) func(*models.Subscription) {
	return func(s *models.Subscription) {
		s.SnoozedUntil = &at
	}
}

func WithPaid(at time.Time) func(*models.Subscription) {
	return func(s *models.Subscription) {
		s.Paid = true
		s.PaidAt = &at
	}
}
