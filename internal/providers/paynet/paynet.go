// Package paynet adapts the regional Paynet gateway. Paynet takes a signed
// form POST from the customer's browser; the merchant backend never calls
// out during initiation, it only prepares the form. Outcomes come back as a
// signed form-encoded callback or via the status endpoint.
package paynet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/covacitrees/oms/internal/providers"
	"github.com/covacitrees/oms/internal/service/errs"
	"github.com/covacitrees/oms/internal/service/models/payment"
)

// SignatureField is the form field carrying the hex HMAC of the callback.
const SignatureField = "signature"

type Config struct {
	BaseURL    string
	MerchantID string
	SecretKey  string
}

type Adapter struct {
	cfg    Config
	client *http.Client
}

func NewAdapter(cfg Config, client *http.Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() payment.Provider {
	return payment.ProviderPaynet
}

// Initiate prepares the signed payment form. The transaction reference is
// derived from the order number, so preparing the form twice for the same
// attempt yields the same reference instead of a duplicate.
func (a *Adapter) Initiate(_ context.Context, req providers.InitiateRequest) (*providers.InitiateResult, error) {
	if a.cfg.MerchantID == "" || a.cfg.SecretKey == "" {
		return nil, &errs.ProviderError{
			Provider: a.Name().String(),
			Op:       "initiate",
			Err:      fmt.Errorf("merchant credentials not configured"),
		}
	}

	externalID := "pn-" + req.OrderNumber
	fields := map[string]string{
		"merchant_id":    a.cfg.MerchantID,
		"external_id":    externalID,
		"amount":         strconv.FormatInt(req.AmountCents, 10),
		"currency":       req.Currency.String(),
		"description":    "Order " + req.OrderNumber,
		"customer_name":  req.CustomerName,
		"customer_email": req.CustomerEmail,
	}
	fields[SignatureField] = a.signFields(fields)

	return &providers.InitiateResult{
		ProviderTransactionID: externalID,
		FormTarget:            a.cfg.BaseURL + "/acquiring/payment",
		FormFields:            fields,
	}, nil
}

type statusResponse struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
}

func (a *Adapter) Capture(ctx context.Context, providerTransactionID string) (*providers.CaptureResult, error) {
	form := url.Values{}
	form.Set("merchant_id", a.cfg.MerchantID)
	form.Set("external_id", providerTransactionID)
	form.Set(SignatureField, a.signFields(map[string]string{
		"merchant_id": a.cfg.MerchantID,
		"external_id": providerTransactionID,
	}))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/acquiring/status", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "capture", Err: err}
	}

	amount, _ := strconv.ParseInt(values.Get("amount"), 10, 64)

	return &providers.CaptureResult{
		Status:      mapPaynetStatus(values.Get("status")),
		AmountCents: amount,
		RawPayload:  raw,
	}, nil
}

// VerifyCallback checks the form signature over the sorted field set.
func (a *Adapter) VerifyCallback(rawBody []byte, _ http.Header) (*providers.CallbackResult, error) {
	values, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return nil, &errs.ProviderError{Provider: a.Name().String(), Op: "verifyCallback", Err: err}
	}

	signature := values.Get(SignatureField)
	fields := make(map[string]string, len(values))
	for key := range values {
		if key == SignatureField {
			continue
		}
		fields[key] = values.Get(key)
	}

	if signature == "" || !providers.SignaturesEqual(a.signFields(fields), signature) {
		return &providers.CallbackResult{Valid: false, RawPayload: rawBody}, nil
	}

	return &providers.CallbackResult{
		Valid:                 true,
		ProviderTransactionID: values.Get("external_id"),
		Status:                mapPaynetStatus(values.Get("status")),
		RawPayload:            rawBody,
	}, nil
}

// signFields computes the hex HMAC over "key=value" pairs joined with "&" in
// key order, the scheme Paynet applies to both forms and callbacks.
func (a *Adapter) signFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+fields[key])
	}

	return providers.SignHex([]byte(a.cfg.SecretKey), []byte(strings.Join(pairs, "&")))
}

func mapPaynetStatus(s string) providers.Outcome {
	switch strings.ToLower(s) {
	case "paid", "ok", "success":
		return providers.OutcomeSucceeded
	case "created", "processing", "pending":
		return providers.OutcomePending
	default:
		return providers.OutcomeFailed
	}
}
