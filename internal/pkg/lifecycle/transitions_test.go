package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SubTrack/app/models"
	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
	"github.com/ManuelReschke/SubTrack/internal/pkg/recurrence"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthly(status models.SubscriptionStatus, due time.Time) *models.Subscription {
	return &models.Subscription{ID: 1, Frequency: recurrence.Monthly, Status: status, NextDueDate: due, Version: 1}
}

func TestRenew_LeapYearClamp(t *testing.T) {
	sent := day(2024, time.January, 25)
	sub := monthly(models.StatusActive, day(2024, time.January, 31))
	sub.ReminderSentAt = &sent
	sub.SnoozedUntil = &sent

	require.NoError(t, Renew(sub))
	assert.Equal(t, day(2024, time.February, 29), sub.NextDueDate)
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.False(t, sub.Paid)
	assert.Nil(t, sub.PaidAt)
	assert.Nil(t, sub.ReminderSentAt)
	assert.Nil(t, sub.SnoozedUntil)
}

func TestRenew_AllowedStates(t *testing.T) {
	tests := []struct {
		status models.SubscriptionStatus
		ok     bool
	}{
		{models.StatusActive, true},
		{models.StatusPastDue, true},
		{models.StatusPending, true},
		{models.StatusExpired, false},
		{models.StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			sub := monthly(tt.status, day(2024, time.March, 10))
			err := Renew(sub)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, models.StatusActive, sub.Status)
				assert.Equal(t, day(2024, time.April, 10), sub.NextDueDate)
			} else {
				assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
				assert.Equal(t, tt.status, sub.Status)
			}
		})
	}
}

func TestRenew_ClearsPaid(t *testing.T) {
	paidAt := day(2024, time.March, 1)
	sub := monthly(models.StatusActive, day(2024, time.March, 10))
	sub.Paid = true
	sub.PaidAt = &paidAt

	require.NoError(t, Renew(sub))
	assert.False(t, sub.Paid)
	assert.Nil(t, sub.PaidAt)
}

func TestSnooze(t *testing.T) {
	now := day(2024, time.January, 1).Add(9 * time.Hour)
	sub := monthly(models.StatusActive, day(2024, time.January, 5))

	require.NoError(t, Snooze(sub, 3, now))
	require.NotNil(t, sub.SnoozedUntil)
	assert.Equal(t, now.AddDate(0, 0, 3), *sub.SnoozedUntil)

	assert.ErrorIs(t, Snooze(sub, 0, now), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, Snooze(monthly(models.StatusCancelled, now), 3, now), apperr.ErrInvalidTransition)
}

func TestReschedule(t *testing.T) {
	now := day(2024, time.January, 10).Add(15 * time.Hour)
	sent := day(2024, time.January, 8)

	t.Run("later date re-arms reminder", func(t *testing.T) {
		sub := monthly(models.StatusPastDue, day(2024, time.January, 12))
		sub.ReminderSentAt = &sent
		require.NoError(t, Reschedule(sub, day(2024, time.February, 1), now))
		assert.Equal(t, day(2024, time.February, 1), sub.NextDueDate)
		assert.Equal(t, models.StatusActive, sub.Status)
		assert.Nil(t, sub.ReminderSentAt)
	})

	t.Run("earlier date keeps reminder", func(t *testing.T) {
		sub := monthly(models.StatusActive, day(2024, time.January, 20))
		sub.ReminderSentAt = &sent
		require.NoError(t, Reschedule(sub, day(2024, time.January, 15), now))
		assert.Equal(t, day(2024, time.January, 15), sub.NextDueDate)
		assert.NotNil(t, sub.ReminderSentAt)
	})

	t.Run("time of day is dropped", func(t *testing.T) {
		sub := monthly(models.StatusActive, day(2024, time.January, 20))
		require.NoError(t, Reschedule(sub, day(2024, time.February, 2).Add(13*time.Hour), now))
		assert.Equal(t, day(2024, time.February, 2), sub.NextDueDate)
	})

	t.Run("today is not in the future", func(t *testing.T) {
		sub := monthly(models.StatusActive, day(2024, time.January, 20))
		assert.ErrorIs(t, Reschedule(sub, day(2024, time.January, 10).Add(23*time.Hour), now), apperr.ErrInvalidArgument)
		assert.ErrorIs(t, Reschedule(sub, day(2023, time.December, 1), now), apperr.ErrInvalidArgument)
		assert.Equal(t, day(2024, time.January, 20), sub.NextDueDate)
	})

	t.Run("cancelled", func(t *testing.T) {
		sub := monthly(models.StatusCancelled, day(2024, time.January, 20))
		assert.ErrorIs(t, Reschedule(sub, day(2024, time.March, 1), now), apperr.ErrInvalidTransition)
	})
}

func TestMarkPaid(t *testing.T) {
	now := day(2024, time.January, 3)
	sub := monthly(models.StatusActive, day(2024, time.January, 5))

	require.NoError(t, MarkPaid(sub, now))
	assert.True(t, sub.Paid)
	require.NotNil(t, sub.PaidAt)
	assert.Equal(t, now, *sub.PaidAt)

	assert.ErrorIs(t, MarkPaid(sub, now), apperr.ErrAlreadyApplied)
}

func TestMarkPaid_ReactivatesPastDue(t *testing.T) {
	sub := monthly(models.StatusPastDue, day(2024, time.January, 5))

	require.NoError(t, MarkPaid(sub, day(2024, time.January, 6)))
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.True(t, sub.Paid)
}

func TestMarkPaid_Cancelled(t *testing.T) {
	sub := monthly(models.StatusCancelled, day(2024, time.January, 5))
	assert.ErrorIs(t, MarkPaid(sub, day(2024, time.January, 6)), apperr.ErrInvalidTransition)
}

func TestCancel(t *testing.T) {
	now := day(2024, time.January, 3)
	for _, status := range []models.SubscriptionStatus{models.StatusActive, models.StatusPending, models.StatusPastDue, models.StatusExpired} {
		sub := monthly(status, now)
		require.NoError(t, Cancel(sub, now), status)
		assert.Equal(t, models.StatusCancelled, sub.Status)
		require.NotNil(t, sub.CancelledAt)
	}

	sub := monthly(models.StatusCancelled, now)
	assert.ErrorIs(t, Cancel(sub, now), apperr.ErrInvalidTransition)
}

func TestCancelledIsTerminal(t *testing.T) {
	assert.Empty(t, ValidTransitionsFrom(models.StatusCancelled))
	for _, to := range []models.SubscriptionStatus{models.StatusActive, models.StatusPending, models.StatusExpired, models.StatusPastDue} {
		assert.False(t, CanTransition(models.StatusCancelled, to), to)
	}
}

func TestValidTransitionsFrom_Sorted(t *testing.T) {
	assert.Equal(t, []models.SubscriptionStatus{
		models.StatusActive,
		models.StatusCancelled,
		models.StatusExpired,
		models.StatusPastDue,
	}, ValidTransitionsFrom(models.StatusPending))
}

func TestMarkPastDue(t *testing.T) {
	paidAt := day(2024, time.January, 1)
	sub := monthly(models.StatusActive, day(2024, time.January, 5))
	sub.Paid = true
	sub.PaidAt = &paidAt

	require.NoError(t, MarkPastDue(sub))
	assert.Equal(t, models.StatusPastDue, sub.Status)
	assert.False(t, sub.Paid)
	assert.Nil(t, sub.PaidAt)

	assert.ErrorIs(t, MarkPastDue(sub), apperr.ErrAlreadyApplied)
	assert.ErrorIs(t, MarkPastDue(monthly(models.StatusCancelled, paidAt)), apperr.ErrInvalidTransition)
}

func TestApplyBillingStatus(t *testing.T) {
	now := day(2024, time.January, 3)
	tests := []struct {
		name string
		from models.SubscriptionStatus
		to   models.SubscriptionStatus
		err  error
	}{
		{"pending to active", models.StatusPending, models.StatusActive, nil},
		{"past due recovers", models.StatusPastDue, models.StatusActive, nil},
		{"active to past due", models.StatusActive, models.StatusPastDue, nil},
		{"active to cancelled", models.StatusActive, models.StatusCancelled, nil},
		{"expired to active", models.StatusExpired, models.StatusActive, nil},
		{"same status", models.StatusActive, models.StatusActive, apperr.ErrAlreadyApplied},
		{"cancelled stays cancelled", models.StatusCancelled, models.StatusActive, apperr.ErrInvalidTransition},
		{"active back to pending", models.StatusActive, models.StatusPending, apperr.ErrInvalidTransition},
		{"unknown status", models.StatusActive, models.SubscriptionStatus("paused"), apperr.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := monthly(tt.from, now)
			err := ApplyBillingStatus(sub, tt.to, now)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, tt.from, sub.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, sub.Status)
		})
	}
}

func TestRecordPayment(t *testing.T) {
	sub := monthly(models.StatusPastDue, day(2024, time.January, 5))
	at := day(2024, time.January, 4)

	require.NoError(t, RecordPayment(sub, at))
	require.NotNil(t, sub.LastPaymentAt)
	assert.Equal(t, at, *sub.LastPaymentAt)
	assert.Equal(t, models.StatusPastDue, sub.Status)

	assert.ErrorIs(t, RecordPayment(sub, at), apperr.ErrAlreadyApplied)
	require.NoError(t, RecordPayment(sub, at.Add(time.Hour)))
}
