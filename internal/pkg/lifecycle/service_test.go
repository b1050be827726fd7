package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SubTrack/app/models"
	"github.com/ManuelReschke/SubTrack/app/repository"
	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
	"github.com/ManuelReschke/SubTrack/internal/pkg/clock"
	"github.com/ManuelReschke/SubTrack/internal/pkg/recurrence"
	"github.com/ManuelReschke/SubTrack/internal/testutil"
)

func setupService(t *testing.T, now time.Time) (*Service, *gorm.DB, *models.User, *clock.Fake) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	clk := clock.NewFake(now)
	user := testutil.TestUser(t, db)
	return NewService(repository.NewSubscriptionRepository(db), clk), db, user, clk
}

func TestService_Create(t *testing.T) {
	svc, _, user, _ := setupService(t, day(2024, time.January, 1))

	sub, err := svc.Create(context.Background(), NewSubscription{
		UserID:      &user.ID,
		Name:        "  Spotify ",
		Cost:        decimal.RequireFromString("10.99"),
		Currency:    "eur",
		Frequency:   recurrence.Monthly,
		NextDueDate: day(2024, time.January, 15).Add(10 * time.Hour),
	})
	require.NoError(t, err)
	assert.NotZero(t, sub.ID)
	assert.Equal(t, "Spotify", sub.Name)
	assert.Equal(t, "EUR", sub.Currency)
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.Equal(t, day(2024, time.January, 15), sub.NextDueDate)
	assert.Equal(t, uint(1), sub.Version)
}

func TestService_CreateValidation(t *testing.T) {
	svc, _, user, _ := setupService(t, day(2024, time.January, 1))
	team := uint(7)
	valid := NewSubscription{
		UserID:      &user.ID,
		Name:        "Spotify",
		Currency:    "USD",
		Frequency:   recurrence.Monthly,
		NextDueDate: day(2024, time.January, 15),
	}

	tests := []struct {
		name   string
		mutate func(*NewSubscription)
	}{
		{"no owner", func(n *NewSubscription) { n.UserID = nil }},
		{"two owners", func(n *NewSubscription) { n.TeamID = &team }},
		{"empty name", func(n *NewSubscription) { n.Name = "   " }},
		{"bad currency", func(n *NewSubscription) { n.Currency = "EURO" }},
		{"bad frequency", func(n *NewSubscription) { n.Frequency = "hourly" }},
		{"no due date", func(n *NewSubscription) { n.NextDueDate = time.Time{} }},
		{"negative cost", func(n *NewSubscription) { n.Cost = decimal.NewFromInt(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), in)
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
		})
	}
}

func TestService_RenewPersists(t *testing.T) {
	svc, db, user, _ := setupService(t, day(2024, time.January, 20))
	created := testutil.TestSubscription(t, db, user, day(2024, time.January, 31), testutil.WithReminderSentAt(day(2024, time.January, 25)))

	sub, err := svc.Renew(context.Background(), created.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(2), sub.Version)

	reloaded, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.NextDueDate.Equal(day(2024, time.February, 29)))
	assert.Nil(t, reloaded.ReminderSentAt)
	assert.False(t, reloaded.Paid)
	assert.Equal(t, models.StatusActive, reloaded.Status)
}

func TestService_ExpectedVersionMismatch(t *testing.T) {
	svc, db, user, _ := setupService(t, day(2024, time.January, 1))
	created := testutil.TestSubscription(t, db, user, day(2024, time.January, 5))

	_, err := svc.MarkPaid(context.Background(), created.ID, 5)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	sub, err := svc.MarkPaid(context.Background(), created.ID, 1)
	require.NoError(t, err)
	assert.True(t, sub.Paid)

	_, err = svc.MarkPaid(context.Background(), created.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrAlreadyApplied)
}

func TestService_ConcurrentRenewSameVersion(t *testing.T) {
	svc, db, user, _ := setupService(t, day(2024, time.January, 1))
	created := testutil.TestSubscription(t, db, user, day(2024, time.January, 31))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Renew(context.Background(), created.ID, created.Version)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	reloaded, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.NextDueDate.Equal(day(2024, time.February, 29)))
	assert.Equal(t, uint(2), reloaded.Version)
}

func TestService_SnoozeUsesClock(t *testing.T) {
	now := day(2024, time.January, 1).Add(8 * time.Hour)
	svc, db, user, clk := setupService(t, now)
	created := testutil.TestSubscription(t, db, user, day(2024, time.January, 5))

	clk.Advance(time.Hour)
	sub, err := svc.Snooze(context.Background(), created.ID, 0, 2)
	require.NoError(t, err)
	require.NotNil(t, sub.SnoozedUntil)
	assert.True(t, sub.SnoozedUntil.Equal(now.Add(time.Hour).AddDate(0, 0, 2)))
}

func TestService_RescheduleAndCancel(t *testing.T) {
	svc, db, user, _ := setupService(t, day(2024, time.January, 10))
	created := testutil.TestSubscription(t, db, user, day(2024, time.January, 12), testutil.WithStatus(models.StatusPastDue))
	ctx := context.Background()

	_, err := svc.Reschedule(ctx, created.ID, 0, day(2024, time.January, 9))
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	sub, err := svc.Reschedule(ctx, created.ID, 0, day(2024, time.February, 1))
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, sub.Status)

	sub, err = svc.Cancel(ctx, created.ID, sub.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, sub.Status)

	_, err = svc.Renew(ctx, created.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = svc.Snooze(ctx, created.ID, 0, 3)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = svc.Cancel(ctx, created.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestService_NotFound(t *testing.T) {
	svc, _, _, _ := setupService(t, day(2024, time.January, 10))
	_, err := svc.Renew(context.Background(), 404, 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_ListForOwner(t *testing.T) {
	svc, db, user, _ := setupService(t, day(2024, time.January, 10))
	testutil.TestSubscription(t, db, user, day(2024, time.January, 12))
	testutil.TestSubscription(t, db, user, day(2024, time.February, 12))

	subs, err := svc.ListForUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	subs, err = svc.ListForTeam(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, subs)
}
