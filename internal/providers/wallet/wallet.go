// Package wallet adapts the wallet provider's redirect-approval flow: the
// backend creates a provider order, the customer approves it at the returned
// URL, and the outcome arrives either through capture or a signed callback.
package wallet

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

// SignatureHeader carries the base64 HMAC-SHA256 of the raw callback body.
const SignatureHeader = "X-Wallet-Signature"

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

type Adapter struct {
	cfg    Config
	client *http.Client
}

func NewAdapter(cfg Config, client *http.Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() payment.Provider {
	return payment.ProviderWallet
}

type walletOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
	Amount struct {
		Value    int64  `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

func (a *Adapter) Initiate(ctx context.Context, req providers.InitiateRequest) (*providers.InitiateResult, error) {
	body, err := json.Marshal(map[string]any{
		"reference_id": req.OrderNumber,
		"amount": map[string]any{
			"value":    req.AmountCents,
			"currency": req.Currency.String(),
		},
		"payer": map[string]string{
			"name":  req.CustomerName,
			"email": req.CustomerEmail,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wallet order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v2/checkout/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build wallet order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)
	// Reference-based request IDs make provider-side creation idempotent.
	httpReq.Header.Set("Request-Id", "ord-"+req.OrderNumber)

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

	var created walletOrder
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "initiate", Err: err}
	}

	result := &providers.InitiateResult{ProviderTransactionID: created.ID}
	for _, link := range created.Links {
		if link.Rel == "approve" {
			result.RedirectURL = link.Href
		}
	}

	return result, nil
}

func (a *Adapter) Capture(ctx context.Context, providerTransactionID string) (*providers.CaptureResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v2/checkout/orders/"+providerTransactionID+"/capture", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build wallet capture request: %w", err)
	}
	httpReq.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)

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

	var captured walletOrder
	if err := json.Unmarshal(raw, &captured); err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "capture", Err: err}
	}

	return &providers.CaptureResult{
		Status:      mapWalletStatus(captured.Status),
		AmountCents: captured.Amount.Value,
		RawPayload:  raw,
	}, nil
}

type walletEvent struct {
	EventType string      `json:"event_type"`
	Resource  walletOrder `json:"resource"`
}

func (a *Adapter) VerifyCallback(rawBody []byte, headers http.Header) (*providers.CallbackResult, error) {
	signature := headers.Get(SignatureHeader)
	expected := providers.SignBase64([]byte(a.cfg.ClientSecret), rawBody)
	if signature == "" || !providers.SignaturesEqual(expected, signature) {
		return &providers.CallbackResult{Valid: false, RawPayload: rawBody}, nil
	}

	var event walletEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "verifyCallback", Err: err}
	}

	return &providers.CallbackResult{
		Valid:                 true,
		ProviderTransactionID: event.Resource.ID,
		Status:                mapWalletStatus(event.Resource.Status),
		RawPayload:            rawBody,
	}, nil
}

func mapWalletStatus(s string) providers.Outcome {
	switch s {
	case "COMPLETED":
		return providers.OutcomeSucceeded
	case "CREATED", "APPROVED", "PENDING":
		return providers.OutcomePending
	default:
		return providers.OutcomeFailed
	}
}
