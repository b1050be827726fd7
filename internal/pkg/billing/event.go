package billing

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SubTrack/app/models"
	"github.com/ManuelReschke/SubTrack/internal/pkg/recurrence"
)

// Stripe event types handled by the reconciler.
const (
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// Event is a webhook delivery. Verified is set only by ConstructEvent.
type Event struct {
	ID       string
	Type     string
	Created  time.Time
	Object   json.RawMessage
	Verified bool
}

type rawEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripePrice struct {
	ID         string `json:"id"`
	Nickname   string `json:"nickname"`
	Currency   string `json:"currency"`
	UnitAmount *int64 `json:"unit_amount"`
	Recurring  *struct {
		Interval string `json:"interval"`
	} `json:"recurring"`
}

type stripePlan struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Interval string `json:"interval"`
	Amount   *int64 `json:"amount"`
	Currency string `json:"currency"`
}

// subscriptionObject covers both the legacy plan field and the item-level
// price and period fields of newer API versions.
type subscriptionObject struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
	Plan             *stripePlan       `json:"plan"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64        `json:"current_period_end"`
			Price            *stripePrice `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type invoiceObject struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	StatusTransitions struct {
		PaidAt *int64 `json:"paid_at"`
	} `json:"status_transitions"`
	Parent *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (o *subscriptionObject) periodEnd() *time.Time {
	ts := o.CurrentPeriodEnd
	if ts == 0 && len(o.Items.Data) > 0 {
		ts = o.Items.Data[0].CurrentPeriodEnd
	}
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func (o *subscriptionObject) interval() string {
	if o.Plan != nil && o.Plan.Interval != "" {
		return o.Plan.Interval
	}
	if p := o.price(); p != nil && p.Recurring != nil {
		return p.Recurring.Interval
	}
	return ""
}

func (o *subscriptionObject) price() *stripePrice {
	if len(o.Items.Data) == 0 {
		return nil
	}
	return o.Items.Data[0].Price
}

// amount returns the cost in major units and the upper-case currency.
func (o *subscriptionObject) amount() (*decimal.Decimal, string) {
	var cents *int64
	var currency string
	if o.Plan != nil && o.Plan.Amount != nil {
		cents, currency = o.Plan.Amount, o.Plan.Currency
	} else if p := o.price(); p != nil && p.UnitAmount != nil {
		cents, currency = p.UnitAmount, p.Currency
	}
	if cents == nil {
		return nil, ""
	}
	currency = strings.ToUpper(currency)
	d := decimal.New(*cents, -minorUnitExponent(currency))
	return &d, currency
}

// zeroDecimalCurrencies are charged in whole units by Stripe.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// minorUnitExponent is the number of decimal places in Stripe amounts for currency.
func minorUnitExponent(currency string) int32 {
	if zeroDecimalCurrencies[currency] {
		return 0
	}
	return 2
}

func (o *subscriptionObject) displayName() string {
	if n := strings.TrimSpace(o.Metadata["name"]); n != "" {
		return n
	}
	if o.Plan != nil && strings.TrimSpace(o.Plan.Nickname) != "" {
		return strings.TrimSpace(o.Plan.Nickname)
	}
	if p := o.price(); p != nil && strings.TrimSpace(p.Nickname) != "" {
		return strings.TrimSpace(p.Nickname)
	}
	return ""
}

func (o *invoiceObject) subscriptionID() string {
	if o.Subscription != "" {
		return o.Subscription
	}
	if o.Parent != nil && o.Parent.SubscriptionDetails != nil {
		return o.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

func (o *invoiceObject) paidAt() *time.Time {
	if o.StatusTransitions.PaidAt == nil || *o.StatusTransitions.PaidAt == 0 {
		return nil
	}
	t := time.Unix(*o.StatusTransitions.PaidAt, 0).UTC()
	return &t
}

// MapStatus translates a Stripe subscription status. ok is false for
// statuses that have no local equivalent, e.g. paused.
func MapStatus(stripeStatus string) (status models.SubscriptionStatus, ok bool) {
	switch strings.ToLower(strings.TrimSpace(stripeStatus)) {
	case "active", "trialing":
		return models.StatusActive, true
	case "past_due", "unpaid":
		return models.StatusPastDue, true
	case "canceled", "cancelled":
		return models.StatusCancelled, true
	case "incomplete":
		return models.StatusPending, true
	case "incomplete_expired":
		return models.StatusExpired, true
	default:
		return "", false
	}
}

// MapInterval translates a Stripe plan interval; unknown intervals are monthly.
func MapInterval(interval string) recurrence.Frequency {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "day":
		return recurrence.Daily
	case "week":
		return recurrence.Weekly
	case "year":
		return recurrence.Yearly
	default:
		return recurrence.Monthly
	}
}
