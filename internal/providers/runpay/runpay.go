// Package runpay adapts the regional Runpay gateway's hosted-invoice flow:
// the backend creates an invoice, the customer pays at the hosted URL, and
// Runpay reports the result over a signed JSON callback.
package runpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/covacitrees/oms/internal/providers"
	"github.com/covacitrees/oms/internal/service/errs"
	"github.com/covacitrees/oms/internal/service/models/payment"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw callback body.
const SignatureHeader = "X-Runpay-Signature"

type Config struct {
	BaseURL    string
	APIKey     string
	MerchantID string
}

type Adapter struct {
	cfg    Config
	client *http.Client
}

func NewAdapter(cfg Config, client *http.Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() payment.Provider {
	return payment.ProviderRunpay
}

type invoiceResponse struct {
	InvoiceID string `json:"invoice_id"`
	PayURL    string `json:"pay_url"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
}

func (a *Adapter) Initiate(ctx context.Context, req providers.InitiateRequest) (*providers.InitiateResult, error) {
	body, err := json.Marshal(map[string]any{
		"merchant_id": a.cfg.MerchantID,
		"external_id": "rp-" + req.OrderNumber,
		"amount":      req.AmountCents,
		"currency":    req.Currency.String(),
		"customer":    req.CustomerEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoice request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/v1/invoices", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build invoice request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", a.cfg.APIKey)

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

	var invoice invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&invoice); err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "initiate", Err: err}
	}

	return &providers.InitiateResult{
		ProviderTransactionID: invoice.InvoiceID,
		RedirectURL:           invoice.PayURL,
	}, nil
}

func (a *Adapter) Capture(ctx context.Context, providerTransactionID string) (*providers.CaptureResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/api/v1/invoices/"+providerTransactionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build invoice status request: %w", err)
	}
	httpReq.Header.Set("X-Api-Key", a.cfg.APIKey)

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

	var invoice invoiceResponse
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "capture", Err: err}
	}

	return &providers.CaptureResult{
		Status:      mapRunpayStatus(invoice.Status),
		AmountCents: invoice.Amount,
		RawPayload:  raw,
	}, nil
}

func (a *Adapter) VerifyCallback(rawBody []byte, headers http.Header) (*providers.CallbackResult, error) {
	signature := headers.Get(SignatureHeader)
	expected := providers.SignHex([]byte(a.cfg.APIKey), rawBody)
	if signature == "" || !providers.SignaturesEqual(expected, signature) {
		return &providers.CallbackResult{Valid: false, RawPayload: rawBody}, nil
	}

	var invoice invoiceResponse
	if err := json.Unmarshal(rawBody, &invoice); err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "verifyCallback", Err: err}
	}

	return &providers.CallbackResult{
		Valid:                 true,
		ProviderTransactionID: invoice.InvoiceID,
		Status:                mapRunpayStatus(invoice.Status),
		RawPayload:            rawBody,
	}, nil
}

func mapRunpayStatus(s string) providers.Outcome {
	switch s {
	case "paid":
		return providers.OutcomeSucceeded
	case "created", "pending":
		return providers.OutcomePending
	default:
		return providers.OutcomeFailed
	}
}
