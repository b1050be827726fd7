package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SubTrack/app/models"
	"github.com/ManuelReschke/SubTrack/app/repository"
	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
	"github.com/ManuelReschke/SubTrack/internal/pkg/clock"
	"github.com/ManuelReschke/SubTrack/internal/pkg/recurrence"
)

// NewSubscription is the input of Service.Create.
type NewSubscription struct {
	UserID            *uint                `json:"user_id"`
	TeamID            *uint                `json:"team_id"`
	Name              string               `json:"name"`
	Cost              decimal.Decimal      `json:"cost"`
	Currency          string               `json:"currency"`
	Frequency         recurrence.Frequency `json:"frequency"`
	NextDueDate       time.Time            `json:"next_due_date"`
	ExternalBillingID *string              `json:"external_billing_id"`
}

// Service runs lifecycle operations as load, mutate, versioned save.
type Service struct {
	repo  repository.SubscriptionRepository
	clock clock.Clock
}

func NewService(repo repository.SubscriptionRepository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{repo: repo, clock: clk}
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Subscription, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListForUser(ctx context.Context, userID uint) ([]models.Subscription, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) ListForTeam(ctx context.Context, teamID uint) ([]models.Subscription, error) {
	return s.repo.ListByTeam(ctx, teamID)
}

// Create validates the input and stores an active, unpaid subscription.
func (s *Service) Create(ctx context.Context, in NewSubscription) (*models.Subscription, error) {
	sub := &models.Subscription{
		UserID:            in.UserID,
		TeamID:            in.TeamID,
		Name:              strings.TrimSpace(in.Name),
		Cost:              in.Cost,
		Currency:          strings.ToUpper(strings.TrimSpace(in.Currency)),
		Frequency:         in.Frequency,
		Status:            models.StatusActive,
		NextDueDate:       clock.StartOfDay(in.NextDueDate),
		ExternalBillingID: in.ExternalBillingID,
		Version:           1,
	}
	if !sub.HasSingleOwner() {
		return nil, fmt.Errorf("exactly one of user_id and team_id must be set: %w", apperr.ErrInvalidArgument)
	}
	if in.NextDueDate.IsZero() {
		return nil, fmt.Errorf("next_due_date is required: %w", apperr.ErrInvalidArgument)
	}
	if sub.Cost.IsNegative() {
		return nil, fmt.Errorf("cost must not be negative: %w", apperr.ErrInvalidArgument)
	}
	if err := sub.Validate(); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("%s: %w", describe(verrs), apperr.ErrInvalidArgument)
		}
		return nil, err
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	log.Infof("[Lifecycle] Created subscription %d (%s, %s)", sub.ID, sub.Name, sub.Frequency)
	return sub, nil
}

func (s *Service) Renew(ctx context.Context, id, expectedVersion uint) (*models.Subscription, error) {
	return s.mutate(ctx, "renew", id, expectedVersion, func(sub *models.Subscription, _ time.Time) error {
		return Renew(sub)
	})
}

func (s *Service) Snooze(ctx context.Context, id, expectedVersion uint, days int) (*models.Subscription, error) {
	return s.mutate(ctx, "snooze", id, expectedVersion, func(sub *models.Subscription, now time.Time) error {
		return Snooze(sub, days, now)
	})
}

func (s *Service) Reschedule(ctx context.Context, id, expectedVersion uint, date time.Time) (*models.Subscription, error) {
	return s.mutate(ctx, "reschedule", id, expectedVersion, func(sub *models.Subscription, now time.Time) error {
		return Reschedule(sub, date, now)
	})
}

func (s *Service) MarkPaid(ctx context.Context, id, expectedVersion uint) (*models.Subscription, error) {
	return s.mutate(ctx, "mark-paid", id, expectedVersion, MarkPaid)
}

func (s *Service) Cancel(ctx context.Context, id, expectedVersion uint) (*models.Subscription, error) {
	return s.mutate(ctx, "cancel", id, expectedVersion, Cancel)
}

// mutate loads the row, checks the caller's version (0 accepts whatever was
// loaded), applies fn and saves under the loaded version. Losing the race at
// save time surfaces as apperr.ErrConflict.
func (s *Service) mutate(ctx context.Context, op string, id, expectedVersion uint, fn func(*models.Subscription, time.Time) error) (*models.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && sub.Version != expectedVersion {
		return nil, fmt.Errorf("subscription %d is at version %d, expected %d: %w", id, sub.Version, expectedVersion, apperr.ErrConflict)
	}
	if err := fn(sub, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			log.Warnf("[Lifecycle] %s subscription %d lost a concurrent update", op, id)
		}
		return nil, err
	}
	log.Debugf("[Lifecycle] %s subscription %d -> status=%s version=%d", op, id, sub.Status, sub.Version)
	return sub, nil
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
