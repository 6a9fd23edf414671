package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature marks a webhook delivery that failed authentication.
// It must map to a non-retryable rejection; nothing else about the request
// can be trusted.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// signatureTolerance bounds how old a signed timestamp may be, limiting
// replay of captured deliveries.
const signatureTolerance = 5 * time.Minute

// VerifyWebhookSignature authenticates a raw webhook body against the
// provider's signature header and returns the parsed event. The header
// carries the signed timestamp and an HMAC-SHA256 over "<timestamp>.<body>":
//
//	Provider-Signature: t=1700000000,v1=5257a869e7...
func (c *Client) VerifyWebhookSignature(body []byte, header string) (*Event, error) {
	return verifySignature(body, header, c.webhookSecret, time.Now())
}

func verifySignature(body []byte, header, secret string, now time.Time) (*Event, error) {
	ts, sig, err := parseSignatureHeader(header)
	if err != nil {
		return nil, err
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := ComputeSignature(secret, ts, body)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return nil, ErrInvalidSignature
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("unmarshal webhook event: %w", err)
	}

	return &event, nil
}

func parseSignatureHeader(header string) (ts int64, sig string, err error) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err = strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
		case "v1":
			sig = value
		}
	}

	if ts == 0 || sig == "" {
		return 0, "", fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	return ts, sig, nil
}

// ComputeSignature produces the hex HMAC the provider would send for the
// given timestamp and body. Exported for tests and local tooling that needs
// to forge valid deliveries.
func ComputeSignature(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader renders the full header value for a forged delivery.
func SignatureHeader(secret string, ts int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, ComputeSignature(secret, ts, body))
}
