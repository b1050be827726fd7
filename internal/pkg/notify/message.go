// Package notify delivers reminder messages over email and WhatsApp.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
)

// Channel names a delivery medium.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

const TemplateRenewalReminder = "subscription_renewal_reminder"

// Message is one notification for one recipient on one channel. It travels
// through the job queue as a map payload.
type Message struct {
	Channel        Channel           `json:"channel"`
	SubscriptionID uint              `json:"subscription_id"`
	RecipientID    uint              `json:"recipient_id"`
	Recipient      string            `json:"recipient"`
	Template       string            `json:"template"`
	Context        map[string]string `json:"context,omitempty"`
}

func (m Message) Validate() error {
	switch m.Channel {
	case ChannelEmail, ChannelWhatsApp:
	default:
		return fmt.Errorf("notify: unknown channel %q: %w", m.Channel, apperr.ErrInvalidArgument)
	}
	if strings.TrimSpace(m.Recipient) == "" {
		return fmt.Errorf("notify: empty recipient for subscription %d: %w", m.SubscriptionID, apperr.ErrInvalidArgument)
	}
	if m.Template == "" {
		return fmt.Errorf("notify: empty template: %w", apperr.ErrInvalidArgument)
	}
	return nil
}

// ToMap converts the message to a map for queue storage
func (m Message) ToMap() map[string]interface{} {
	ctx := make(map[string]interface{}, len(m.Context))
	for k, v := range m.Context {
		ctx[k] = v
	}
	return map[string]interface{}{
		"channel":         string(m.Channel),
		"subscription_id": m.SubscriptionID,
		"recipient_id":    m.RecipientID,
		"recipient":       m.Recipient,
		"template":        m.Template,
		"context":         ctx,
	}
}

// MessageFromMap creates a message from a queue payload
func MessageFromMap(data map[string]interface{}) (*Message, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(jsonData, &msg); err != nil {
		return nil, err
	}
	return &msg, msg.Validate()
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ChannelRouter dispatches to the sender registered for the message channel.
type ChannelRouter struct {
	senders map[Channel]Sender
}

func NewChannelRouter() *ChannelRouter {
	return &ChannelRouter{senders: make(map[Channel]Sender)}
}

func (r *ChannelRouter) Register(ch Channel, s Sender) *ChannelRouter {
	r.senders[ch] = s
	return r
}

func (r *ChannelRouter) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s, ok := r.senders[msg.Channel]
	if !ok {
		return fmt.Errorf("notify: no sender registered for channel %s: %w", msg.Channel, apperr.ErrInvalidArgument)
	}
	return s.Send(ctx, msg)
}
