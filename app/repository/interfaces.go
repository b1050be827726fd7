package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/SubTrack/app/models"
	"gorm.io/gorm"
)

// SubscriptionRepository defines the persistence operations used by the
// lifecycle service, the reminder dispatcher and the billing reconciler.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, id uint) (*models.Subscription, error)
	GetByExternalBillingID(ctx context.Context, externalID string) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Subscription, error)
	ListByTeam(ctx context.Context, teamID uint) ([]models.Subscription, error)
	// Save writes every mutable column when the stored version still equals
	// sub.Version, then bumps sub.Version. A stale version yields apperr.ErrConflict.
	Save(ctx context.Context, sub *models.Subscription) error

	ListReminderCandidates(ctx context.Context, q ReminderQuery) ([]models.Subscription, error)
	CountClaimedInWindow(ctx context.Context, q ReminderQuery) (int64, error)
	// ClaimReminder sets reminder_sent_at only if it is still NULL. It returns
	// false when another worker claimed the row first.
	ClaimReminder(ctx context.Context, id uint, at time.Time) (bool, error)
}

// ReminderQuery selects subscriptions due on or before Cutoff that are not
// snoozed past Now. Results are keyset-paginated by id.
type ReminderQuery struct {
	Cutoff  time.Time
	Now     time.Time
	AfterID uint
	Limit   int
}

// DirectoryRepository resolves owners and recipients.
type DirectoryRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	CreateTeam(ctx context.Context, team *models.Team) error
	GetTeam(ctx context.Context, id uint) (*models.Team, error)
	AddMember(ctx context.Context, teamID, userID uint, role string) error
	MembersOf(ctx context.Context, teamID uint) ([]models.User, error)
	// ResolveOwnerByExternalCustomerID returns nil, nil when no user or team
	// carries the processor customer id.
	ResolveOwnerByExternalCustomerID(ctx context.Context, customerID string) (*Owner, error)
}

// Owner is either a user or a team, never both.
type Owner struct {
	UserID *uint
	TeamID *uint
}

// Repositories holds all repository instances
type Repositories struct {
	Subscription SubscriptionRepository
	Directory    DirectoryRepository
	Marker       MarkerRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Subscription: NewSubscriptionRepository(db),
		Directory:    NewDirectoryRepository(db),
		Marker:       NewMarkerRepository(db),
	}
}
