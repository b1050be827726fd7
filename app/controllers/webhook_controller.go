package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
	"github.com/ManuelReschke/SubTrack/internal/pkg/billing"
	"github.com/ManuelReschke/SubTrack/internal/pkg/clock"
	"github.com/ManuelReschke/SubTrack/internal/pkg/config"
)

// WebhookRecorder counts reconciliation outcomes; counter.Counter implements it.
type WebhookRecorder interface {
	RecordWebhook(ctx context.Context, outcome string)
}

// WebhookController receives processor events.
type WebhookController struct {
	reconciler *billing.Reconciler
	cfg        config.WebhookConfig
	clock      clock.Clock
	recorder   WebhookRecorder
}

func NewWebhookController(reconciler *billing.Reconciler, cfg config.WebhookConfig, clk clock.Clock, recorder WebhookRecorder) *WebhookController {
	if clk == nil {
		clk = clock.Real{}
	}
	return &WebhookController{reconciler: reconciler, cfg: cfg, clock: clk, recorder: recorder}
}

// HandleStripeWebhook answers 400 for rejected events, 500 for transient
// failures (the processor retries) and 200 with the outcome otherwise.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	ctx := c.UserContext()
	payload := append([]byte(nil), c.Body()...)

	ev, err := billing.ConstructEvent(payload, c.Get("Stripe-Signature"), wc.cfg.SigningSecret, wc.cfg.SignatureTolerance, wc.clock.Now())
	if err != nil {
		log.Warnf("[Webhook] Rejected delivery: %v", err)
		wc.record(ctx, billing.OutcomeRejected)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rejected", "message": "Invalid payload or signature"})
	}

	outcome, err := wc.reconciler.Apply(ctx, ev)
	wc.record(ctx, outcome)
	if err != nil {
		if errors.Is(err, apperr.ErrRejected) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rejected", "message": err.Error()})
		}
		log.Errorf("[Webhook] Event %s failed: %v", ev.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Event could not be processed"})
	}
	return c.JSON(fiber.Map{"status": string(outcome)})
}

func (wc *WebhookController) record(ctx context.Context, outcome billing.Outcome) {
	if wc.recorder != nil {
		wc.recorder.RecordWebhook(context.WithoutCancel(ctx), string(outcome))
	}
}
