package billing

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
)

const testSecret = "whsec_test_secret"

var signedAt = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestConstructEvent_Valid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_failed","created":1709294400,"data":{"object":{"id":"in_1","subscription":"sub_1"}}}`)
	header := SignatureHeader(payload, testSecret, signedAt)

	ev, err := ConstructEvent(payload, header, testSecret, DefaultSignatureTolerance, signedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ev.Verified)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventInvoicePaymentFailed, ev.Type)
	assert.JSONEq(t, `{"id":"in_1","subscription":"sub_1"}`, string(ev.Object))
}

func TestConstructEvent_AcceptsAnyMatchingV1(t *testing.T) {
	payload := []byte(`{"id":"evt_2","type":"customer.subscription.updated","data":{"object":{}}}`)
	good := SignatureHeader(payload, testSecret, signedAt)
	header := strings.Replace(good, ",v1=", ",v1=deadbeef,v1=", 1)

	_, err := ConstructEvent(payload, header, testSecret, 0, signedAt)
	assert.NoError(t, err)
}

func TestConstructEvent_Rejections(t *testing.T) {
	payload := []byte(`{"id":"evt_3","type":"customer.subscription.deleted","data":{"object":{}}}`)
	valid := SignatureHeader(payload, testSecret, signedAt)

	tests := []struct {
		name    string
		payload []byte
		header  string
		secret  string
		now     time.Time
	}{
		{name: "missing header", payload: payload, header: "", secret: testSecret, now: signedAt},
		{name: "wrong secret", payload: payload, header: valid, secret: "other", now: signedAt},
		{name: "tampered payload", payload: []byte(`{"id":"evt_4","type":"x","data":{"object":{}}}`), header: valid, secret: testSecret, now: signedAt},
		{name: "stale timestamp", payload: payload, header: valid, secret: testSecret, now: signedAt.Add(time.Hour)},
		{name: "no secret configured", payload: payload, header: valid, secret: " ", now: signedAt},
		{name: "no v1", payload: payload, header: "t=1709294400,v0=abc", secret: testSecret, now: signedAt},
		{name: "bad json", payload: []byte(`not json`), header: SignatureHeader([]byte(`not json`), testSecret, signedAt), secret: testSecret, now: signedAt},
		{name: "missing id", payload: []byte(`{"type":"x"}`), header: SignatureHeader([]byte(`{"type":"x"}`), testSecret, signedAt), secret: testSecret, now: signedAt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ConstructEvent(tt.payload, tt.header, tt.secret, DefaultSignatureTolerance, tt.now)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrRejected))
			assert.False(t, ev.Verified)
		})
	}
}

func TestMapStatusAndInterval(t *testing.T) {
	for in, want := range map[string]string{
		"active": "active", "trialing": "active", "past_due": "past_due", "unpaid": "past_due",
		"canceled": "cancelled", "incomplete": "pending", "incomplete_expired": "expired",
	} {
		got, ok := MapStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, string(got), in)
	}
	_, ok := MapStatus("paused")
	assert.False(t, ok)

	assert.Equal(t, "daily", string(MapInterval("day")))
	assert.Equal(t, "weekly", string(MapInterval("week")))
	assert.Equal(t, "monthly", string(MapInterval("month")))
	assert.Equal(t, "yearly", string(MapInterval("year")))
	assert.Equal(t, "monthly", string(MapInterval("")))
}

func TestSubscriptionObjectAmount(t *testing.T) {
	tests := []struct {
		name     string
		object   string
		cost     string
		currency string
	}{
		{name: "two decimal plan", object: `{"plan":{"amount":1999,"currency":"eur"}}`, cost: "19.99", currency: "EUR"},
		{name: "zero decimal plan", object: `{"plan":{"amount":1000,"currency":"jpy"}}`, cost: "1000", currency: "JPY"},
		{name: "zero decimal price", object: `{"items":{"data":[{"price":{"unit_amount":5500,"currency":"krw"}}]}}`, cost: "5500", currency: "KRW"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var obj subscriptionObject
			require.NoError(t, json.Unmarshal([]byte(tt.object), &obj))
			cost, currency := obj.amount()
			require.NotNil(t, cost)
			assert.Equal(t, tt.cost, cost.String())
			assert.Equal(t, tt.currency, currency)
		})
	}

	var empty subscriptionObject
	cost, _ := empty.amount()
	assert.Nil(t, cost)
}
