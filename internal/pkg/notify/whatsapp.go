package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SubTrack/internal/pkg/env"
)

const defaultTwilioAPIBaseURL = "https://api.twilio.com/2010-04-01"

// WhatsAppSender posts messages to the Twilio Messages API.
type WhatsAppSender struct {
	AccountSID string
	AuthToken  string
	From       string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewWhatsAppSenderFromEnv() *WhatsAppSender {
	return &WhatsAppSender{
		AccountSID: strings.TrimSpace(env.GetEnv("TWILIO_ACCOUNT_SID", "")),
		AuthToken:  strings.TrimSpace(env.GetEnv("TWILIO_AUTH_TOKEN", "")),
		From:       strings.TrimSpace(env.GetEnv("TWILIO_WHATSAPP_FROM", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("TWILIO_API_BASE_URL", defaultTwilioAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Configured reports whether credentials and a sender number are present.
func (s *WhatsAppSender) Configured() bool {
	return s.AccountSID != "" && s.AuthToken != "" && s.From != ""
}

func (s *WhatsAppSender) Send(ctx context.Context, msg Message) error {
	if !s.Configured() {
		return errors.New("TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN/TWILIO_WHATSAPP_FROM are not configured")
	}
	out, err := render(msg.Template, msg.Context)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("To", "whatsapp:"+strings.TrimSpace(msg.Recipient))
	form.Set("From", "whatsapp:"+s.From)
	form.Set("Body", out.Text)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", strings.TrimRight(s.APIBaseURL, "/"), url.PathEscape(s.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.AccountSID, s.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return fmt.Errorf("twilio message failed: status=%d code=%d message=%s", resp.StatusCode, apiErr.Code, apiErr.Message)
	}

	var created struct {
		SID string `json:"sid"`
	}
	_ = json.Unmarshal(body, &created)
	log.Infof("[Notify] WhatsApp message %s sent for subscription %d", created.SID, msg.SubscriptionID)
	return nil
}
