// Package reminder selects subscriptions that are about to renew and queues
// one notification per recipient and channel.
//
// A subscription is reminded at most once per dispatch cycle: the first run
// that wins the conditional update on reminder_sent_at owns the reminder;
// every other run (concurrent or later) skips it until renew clears the marker.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SubTrack/app/models"
	"github.com/ManuelReschke/SubTrack/app/repository"
	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
	"github.com/ManuelReschke/SubTrack/internal/pkg/clock"
	"github.com/ManuelReschke/SubTrack/internal/pkg/config"
	"github.com/ManuelReschke/SubTrack/internal/pkg/notify"
)

// NotificationQueue accepts outbound messages; jobqueue.Queue implements it.
type NotificationQueue interface {
	EnqueueNotification(ctx context.Context, msg notify.Message) error
}

// Recorder receives the totals of every Run.
type Recorder interface {
	RecordDispatch(ctx context.Context, processed, skipped, failed int)
}

// Summary counts the outcome of a dispatch run. Processed is the number of
// subscriptions claimed by this run, Failed the number of item-level errors.
type Summary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (s *Summary) Add(o Summary) {
	s.Processed += o.Processed
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

type Dispatcher struct {
	subs       repository.SubscriptionRepository
	directory  repository.DirectoryRepository
	queue      NotificationQueue
	clock      clock.Clock
	cfg        config.ReminderConfig
	recorder   Recorder
	retryDelay time.Duration
}

func NewDispatcher(subs repository.SubscriptionRepository, directory repository.DirectoryRepository, queue NotificationQueue, clk clock.Clock, cfg config.ReminderConfig) *Dispatcher {
	if clk == nil {
		clk = clock.Real{}
	}
	def := config.DefaultReminderConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	return &Dispatcher{
		subs:       subs,
		directory:  directory,
		queue:      queue,
		clock:      clk,
		cfg:        cfg,
		retryDelay: 200 * time.Millisecond,
	}
}

// WithRecorder attaches a metrics sink used by Run.
func (d *Dispatcher) WithRecorder(r Recorder) *Dispatcher {
	d.recorder = r
	return d
}

// Run dispatches all configured intervals at the current clock time.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	sum, err := d.DispatchIntervals(ctx, d.clock.Now())
	if d.recorder != nil {
		d.recorder.RecordDispatch(context.WithoutCancel(ctx), sum.Processed, sum.Skipped, sum.Failed)
	}
	log.Infof("[Dispatcher] Run finished in %s: processed=%d skipped=%d failed=%d",
		time.Since(started).Round(time.Millisecond), sum.Processed, sum.Skipped, sum.Failed)
	return sum, err
}

// RunLookahead is Run for a single window of lookaheadDays.
func (d *Dispatcher) RunLookahead(ctx context.Context, lookaheadDays int) (Summary, error) {
	sum, err := d.DispatchDue(ctx, lookaheadDays, d.clock.Now())
	if d.recorder != nil && !errors.Is(err, apperr.ErrInvalidArgument) {
		d.recorder.RecordDispatch(context.WithoutCancel(ctx), sum.Processed, sum.Skipped, sum.Failed)
	}
	return sum, err
}

// DispatchIntervals runs DispatchDue once per configured offset, in order,
// and sums the results. Without offsets the single look-ahead window is used.
func (d *Dispatcher) DispatchIntervals(ctx context.Context, now time.Time) (Summary, error) {
	offsets := d.cfg.Offsets
	if len(offsets) == 0 {
		offsets = []int{d.cfg.LookaheadDays}
	}
	var total Summary
	for _, days := range offsets {
		sum, err := d.DispatchDue(ctx, days, now)
		total.Add(sum)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// DispatchDue reminds every eligible subscription due within lookaheadDays of
// now. Item failures are counted, not returned; the error is non-nil only
// when candidates cannot be listed or ctx ends, and the partial summary is
// returned with it.
func (d *Dispatcher) DispatchDue(ctx context.Context, lookaheadDays int, now time.Time) (Summary, error) {
	var sum Summary
	if lookaheadDays < 0 {
		return sum, fmt.Errorf("lookahead days must not be negative: %w", apperr.ErrInvalidArgument)
	}

	q := repository.ReminderQuery{
		Cutoff: clock.StartOfDay(now).AddDate(0, 0, lookaheadDays),
		Now:    now,
		Limit:  d.cfg.BatchSize,
	}

	var claimed int64
	if err := d.call(ctx, "count claimed", func(ctx context.Context) (err error) {
		claimed, err = d.subs.CountClaimedInWindow(ctx, q)
		return err
	}); err != nil {
		log.Warnf("[Dispatcher] Could not count already reminded subscriptions: %v", err)
	}
	sum.Skipped += int(claimed)

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		var batch []models.Subscription
		if err := d.call(ctx, "list candidates", func(ctx context.Context) (err error) {
			batch, err = d.subs.ListReminderCandidates(ctx, q)
			return err
		}); err != nil {
			log.Errorf("[Dispatcher] Listing candidates after id %d failed: %v", q.AfterID, err)
			return sum, err
		}

		for i := range batch {
			if err := ctx.Err(); err != nil {
				log.Warnf("[Dispatcher] Run cancelled before subscription %d: %v", batch[i].ID, err)
				return sum, err
			}
			d.dispatchOne(ctx, &batch[i], now, &sum)
		}

		if len(batch) < q.Limit {
			break
		}
		q.AfterID = batch[len(batch)-1].ID
	}

	log.Debugf("[Dispatcher] Window %dd from %s: processed=%d skipped=%d failed=%d",
		lookaheadDays, now.Format(time.DateOnly), sum.Processed, sum.Skipped, sum.Failed)
	return sum, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sub *models.Subscription, now time.Time, sum *Summary) {
	var won bool
	if err := d.call(ctx, "claim", func(ctx context.Context) (err error) {
		won, err = d.subs.ClaimReminder(ctx, sub.ID, now)
		return err
	}); err != nil {
		log.Errorf("[Dispatcher] Claiming subscription %d failed: %v", sub.ID, err)
		sum.Failed++
		return
	}
	if !won {
		log.Debugf("[Dispatcher] Subscription %d already claimed by another run", sub.ID)
		sum.Skipped++
		return
	}
	sum.Processed++

	// From here on the claim stands; delivery is best effort.
	recipients, err := d.recipients(ctx, sub)
	if err != nil {
		log.Errorf("[Dispatcher] Resolving recipients for subscription %d failed: %v", sub.ID, err)
		sum.Failed++
		return
	}

	messages := d.messages(sub, recipients, now)
	if len(messages) == 0 {
		log.Warnf("[Dispatcher] Subscription %d has no reachable recipient", sub.ID)
		return
	}
	for _, msg := range messages {
		if err := d.call(ctx, "enqueue", func(ctx context.Context) error {
			return d.queue.EnqueueNotification(ctx, msg)
		}); err != nil {
			log.Errorf("[Dispatcher] Enqueue %s reminder for subscription %d to user %d failed: %v",
				msg.Channel, sub.ID, msg.RecipientID, err)
			sum.Failed++
		}
	}
}

func (d *Dispatcher) recipients(ctx context.Context, sub *models.Subscription) ([]models.User, error) {
	var users []models.User
	err := d.call(ctx, "resolve recipients", func(ctx context.Context) error {
		if sub.TeamID != nil {
			members, err := d.directory.MembersOf(ctx, *sub.TeamID)
			users = members
			return err
		}
		if sub.UserID == nil {
			return fmt.Errorf("subscription %d has no owner: %w", sub.ID, apperr.ErrInvalidArgument)
		}
		user, err := d.directory.GetUser(ctx, *sub.UserID)
		if err != nil {
			return err
		}
		users = []models.User{*user}
		return nil
	})
	return users, err
}

// messages builds one message per distinct recipient and channel. Users are
// deduplicated by id, addresses by value, so two members sharing a
// notification address get one email.
func (d *Dispatcher) messages(sub *models.Subscription, users []models.User, now time.Time) []notify.Message {
	seenUser := make(map[uint]bool)
	seenEmail := make(map[string]bool)
	seenPhone := make(map[string]bool)
	var out []notify.Message

	for i := range users {
		u := &users[i]
		if seenUser[u.ID] {
			continue
		}
		seenUser[u.ID] = true
		data := templateData(sub, u, now)

		if email := strings.ToLower(u.ReminderEmail()); email != "" && !seenEmail[email] {
			seenEmail[email] = true
			out = append(out, notify.Message{
				Channel:        notify.ChannelEmail,
				SubscriptionID: sub.ID,
				RecipientID:    u.ID,
				Recipient:      u.ReminderEmail(),
				Template:       notify.TemplateRenewalReminder,
				Context:        data,
			})
		}

		if !d.cfg.WhatsAppEnabled || !u.CanReceiveWhatsApp() {
			continue
		}
		if phone := strings.TrimSpace(u.Phone); !seenPhone[phone] {
			seenPhone[phone] = true
			out = append(out, notify.Message{
				Channel:        notify.ChannelWhatsApp,
				SubscriptionID: sub.ID,
				RecipientID:    u.ID,
				Recipient:      phone,
				Template:       notify.TemplateRenewalReminder,
				Context:        data,
			})
		}
	}
	return out
}

func templateData(sub *models.Subscription, u *models.User, now time.Time) map[string]string {
	due := clock.StartOfDay(sub.NextDueDate)
	data := map[string]string{
		"recipient_name": u.Name,
		"name":           sub.Name,
		"cost":           sub.Cost.StringFixed(2),
		"currency":       sub.Currency,
		"frequency":      string(sub.Frequency),
		"due_date":       due.Format(time.DateOnly),
		"days_left":      "",
	}
	if days := int(due.Sub(clock.StartOfDay(now)).Hours() / 24); days > 0 {
		data["days_left"] = strconv.Itoa(days)
	}
	return data
}

// call runs fn under the per-call timeout and retries retryable errors up
// to MaxAttempts times.
func (d *Dispatcher) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		err = fn(callCtx)
		cancel()
		if err == nil || !apperr.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt < d.cfg.MaxAttempts {
			log.Warnf("[Dispatcher] %s attempt %d/%d failed: %v", op, attempt, d.cfg.MaxAttempts, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.retryDelay * time.Duration(attempt)):
			}
		}
	}
	return err
}
