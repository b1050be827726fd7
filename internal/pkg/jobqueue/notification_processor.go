package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SubTrack/internal/pkg/notify"
)

// NewNotificationHandler delivers reminder_notification jobs through sender.
func NewNotificationHandler(sender notify.Sender) Handler {
	return func(ctx context.Context, job *Job) error {
		msg, err := notify.MessageFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid notification payload: %w", err)
		}
		if err := sender.Send(ctx, *msg); err != nil {
			return fmt.Errorf("%s notification for subscription %d: %w", msg.Channel, msg.SubscriptionID, err)
		}
		log.Infof("[JobQueue] Delivered %s reminder for subscription %d to user %d", msg.Channel, msg.SubscriptionID, msg.RecipientID)
		return nil
	}
}
