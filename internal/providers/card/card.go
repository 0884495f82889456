// Package card adapts the card processor's payment-intent flow: the backend
// creates an intent, the frontend confirms it with the returned client
// secret, and the processor reports the final outcome over a signed webhook.
package card

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/covacitrees/oms/internal/providers"
	"github.com/covacitrees/oms/internal/service/errs"
	"github.com/covacitrees/oms/internal/service/models/currency"
	"github.com/covacitrees/oms/internal/service/models/payment"
)

// SignatureHeader carries the webhook signature in the form
// "t=<unix>,v1=<hex hmac>". The HMAC is computed over "<t>.<body>".
const SignatureHeader = "X-Card-Signature"

// signatureTolerance bounds how stale a signed webhook timestamp may be.
const signatureTolerance = 5 * time.Minute

// Config holds the processor credentials and endpoint.
type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
}

type Adapter struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

func NewAdapter(cfg Config, client *http.Client) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: client,
		now:    time.Now,
	}
}

func (a *Adapter) Name() payment.Provider {
	return payment.ProviderCard
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Initiate creates a payment intent. The idempotency key is derived from the
// order number, so retrying the same logical attempt never creates a second
// intent on the processor side.
func (a *Adapter) Initiate(ctx context.Context, req providers.InitiateRequest) (*providers.InitiateResult, error) {
	body, err := json.Marshal(map[string]any{
		"amount":      req.AmountCents,
		"currency":    strings.ToLower(req.Currency.String()),
		"description": "Order " + req.OrderNumber,
		"metadata": map[string]string{
			"order_number":   req.OrderNumber,
			"customer_name":  req.CustomerName,
			"customer_email": req.CustomerEmail,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/payment_intents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build intent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	httpReq.Header.Set("Idempotency-Key", "ord-"+req.OrderNumber)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "initiate", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, &errs.ProviderError{
			Provider: a.Name().String(),
			Op:       "initiate",
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var intent intentResponse
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "initiate", Err: err}
	}

	return &providers.InitiateResult{
		ProviderTransactionID: intent.ID,
		ClientSecret:          intent.ClientSecret,
	}, nil
}

// Capture retrieves the intent and reports its current outcome.
func (a *Adapter) Capture(ctx context.Context, providerTransactionID string) (*providers.CaptureResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/v1/payment_intents/"+providerTransactionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build capture request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "capture", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "capture", Err: err}
	}

	if resp.StatusCode >= 300 {
		return nil, &errs.ProviderError{
			Provider: a.Name().String(),
			Op:       "capture",
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var intent intentResponse
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "capture", Err: err}
	}

	cur, err := currency.ParseCurrency(strings.ToUpper(intent.Currency))
	if err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "capture", Err: err}
	}

	return &providers.CaptureResult{
		Status:      mapIntentStatus(intent.Status),
		AmountCents: intent.Amount,
		Currency:    cur,
		RawPayload:  raw,
	}, nil
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object intentResponse `json:"object"`
	} `json:"data"`
}

// VerifyCallback checks the signed timestamp header and extracts the intent
// outcome from the event payload.
func (a *Adapter) VerifyCallback(rawBody []byte, headers http.Header) (*providers.CallbackResult, error) {
	timestamp, signature, ok := parseSignatureHeader(headers.Get(SignatureHeader))
	if !ok {
		return &providers.CallbackResult{Valid: false, RawPayload: rawBody}, nil
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return &providers.CallbackResult{Valid: false, RawPayload: rawBody}, nil
	}
	age := a.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return &providers.CallbackResult{Valid: false, RawPayload: rawBody}, nil
	}

	signed := timestamp + "." + string(rawBody)
	expected := providers.SignHex([]byte(a.cfg.WebhookSecret), []byte(signed))
	if !providers.SignaturesEqual(expected, signature) {
		return &providers.CallbackResult{Valid: false, RawPayload: rawBody}, nil
	}

	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "verifyCallback", Err: err}
	}

	return &providers.CallbackResult{
		Valid:                 true,
		ProviderTransactionID: event.Data.Object.ID,
		Status:                mapIntentStatus(event.Data.Object.Status),
		RawPayload:            rawBody,
	}, nil
}

func mapIntentStatus(s string) providers.Outcome {
	switch s {
	case "succeeded":
		return providers.OutcomeSucceeded
	case "processing", "requires_action", "requires_confirmation":
		return providers.OutcomePending
	default:
		return providers.OutcomeFailed
	}
}

// parseSignatureHeader splits "t=<unix>,v1=<hex>" into its parts.
func parseSignatureHeader(header string) (timestamp, signature string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signature = value
		}
	}

	return timestamp, signature, timestamp != "" && signature != ""
}
