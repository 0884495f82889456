// Package providers defines the uniform contract every payment provider is
// adapted to. The rest of the system talks to this contract only; provider
// wire formats, redirect flows and signature schemes stay inside the
// concrete adapters.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/covacitrees/oms/internal/service/models/currency"
	"github.com/covacitrees/oms/internal/service/models/payment"
)

// Outcome is the provider-reported result of a payment attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
)

// PaymentStatus maps a provider outcome onto the ledger status it drives.
func (o Outcome) PaymentStatus() (payment.Status, error) {
	switch o {
	case OutcomeSucceeded:
		return payment.StatusCompleted, nil
	case OutcomeFailed:
		return payment.StatusFailed, nil
	case OutcomePending:
		return payment.StatusPending, nil
	default:
		return "", fmt.Errorf("unknown provider outcome %q", o)
	}
}

// InitiateRequest carries everything an adapter needs to start a
// provider-side payment for one logical attempt.
type InitiateRequest struct {
	OrderNumber   string
	AmountCents   int64
	Currency      currency.Currency
	CustomerName  string
	CustomerEmail string
}

// InitiateResult is the provider acknowledgment of a started payment.
// Exactly which target field is set depends on the provider's flow:
// a redirect URL, a client secret for an intent flow, a signed form to
// POST, or human-readable transfer instructions.
type InitiateResult struct {
	ProviderTransactionID string            `json:"providerTransactionId"`
	RedirectURL           string            `json:"redirectUrl,omitempty"`
	ClientSecret          string            `json:"clientSecret,omitempty"`
	FormTarget            string            `json:"formTarget,omitempty"`
	FormFields            map[string]string `json:"formFields,omitempty"`
	Instructions          string            `json:"instructions,omitempty"`
}

// CaptureResult is the synchronous confirmation of a payment attempt.
type CaptureResult struct {
	Status      Outcome
	AmountCents int64
	Currency    currency.Currency
	RawPayload  []byte
}

// CallbackResult is a verified, normalized provider callback.
type CallbackResult struct {
	Valid                 bool
	ProviderTransactionID string
	Status                Outcome
	RawPayload            []byte
}

// Adapter is implemented once per payment provider.
type Adapter interface {
	// Name identifies the provider this adapter serves.
	Name() payment.Provider

	// Initiate starts a provider-side payment. It must be safe to retry for
	// the same logical attempt: adapters derive provider idempotency keys
	// from the order number so a retry never duplicates a charge.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)

	// Capture synchronously confirms the outcome of a payment attempt.
	Capture(ctx context.Context, providerTransactionID string) (*CaptureResult, error)

	// VerifyCallback authenticates a provider callback and extracts the
	// fields the core cares about. An invalid signature is reported via
	// CallbackResult.Valid, never silently accepted.
	VerifyCallback(rawBody []byte, headers http.Header) (*CallbackResult, error)
}

// Registry resolves adapters by provider name so callers never branch on
// provider identity themselves.
type Registry struct {
	adapters map[payment.Provider]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[payment.Provider]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}

	return &Registry{adapters: m}
}

// Get returns the adapter for the provider.
func (r *Registry) Get(p payment.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", p)
	}

	return a, nil
}
