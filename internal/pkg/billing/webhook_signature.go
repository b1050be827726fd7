package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/SubTrack/internal/pkg/apperr"
)

const DefaultSignatureTolerance = 5 * time.Minute

// ConstructEvent verifies a Stripe-Signature header ("t=<unix>,v1=<hex>")
// against payload and decodes the event. Any failure wraps apperr.ErrRejected.
func ConstructEvent(payload []byte, signatureHeader, secret string, tolerance time.Duration, now time.Time) (Event, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return Event{}, fmt.Errorf("webhook secret is not configured: %w", apperr.ErrRejected)
	}
	ts, sigs, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return Event{}, fmt.Errorf("%v: %w", err, apperr.ErrRejected)
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return Event{}, fmt.Errorf("signature timestamp outside tolerance (%s): %w", age.Round(time.Second), apperr.ErrRejected)
		}
	}

	signed := signedPayload(ts, payload)
	valid := false
	for _, sig := range sigs {
		if verifyHMAC(signed, sig, []byte(secret), sha256.New) {
			valid = true
			break
		}
	}
	if !valid {
		return Event{}, fmt.Errorf("no matching v1 signature: %w", apperr.ErrRejected)
	}

	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("invalid payload: %v: %w", err, apperr.ErrRejected)
	}
	if strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(raw.Type) == "" {
		return Event{}, fmt.Errorf("event id and type are required: %w", apperr.ErrRejected)
	}
	return Event{
		ID:       raw.ID,
		Type:     raw.Type,
		Created:  time.Unix(raw.Created, 0).UTC(),
		Object:   raw.Data.Object,
		Verified: true,
	}, nil
}

// SignatureHeader builds a header value for payload, as the processor does.
func SignatureHeader(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(signedPayload(ts.Unix(), payload))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func signedPayload(ts int64, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+21)
	out = strconv.AppendInt(out, ts, 10)
	out = append(out, '.')
	return append(out, payload...)
}

func parseSignatureHeader(header string) (int64, [][]byte, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, fmt.Errorf("missing signature header")
	}
	var ts int64
	var sigs [][]byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("invalid signature timestamp")
			}
			ts = n
		case "v1":
			sig, err := hex.DecodeString(strings.ToLower(v))
			if err != nil {
				continue
			}
			sigs = append(sigs, sig)
		}
	}
	if ts == 0 {
		return 0, nil, fmt.Errorf("signature header has no timestamp")
	}
	if len(sigs) == 0 {
		return 0, nil, fmt.Errorf("signature header has no v1 signature")
	}
	return ts, sigs, nil
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}
