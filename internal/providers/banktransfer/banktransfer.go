// Package banktransfer adapts manual bank transfers to the provider
// contract. There is no provider network and no callbacks: initiation mints
// a transfer reference with payment instructions, and the capture path is
// driven by an operator who has matched the incoming transfer.
package banktransfer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/covacitrees/oms/internal/providers"
	"github.com/covacitrees/oms/internal/service/models/payment"
)

type Config struct {
	Beneficiary string
	IBAN        string
	Bank        string
}

type Adapter struct {
	cfg Config
}

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Name() payment.Provider {
	return payment.ProviderBankTransfer
}

func (a *Adapter) Initiate(_ context.Context, req providers.InitiateRequest) (*providers.InitiateResult, error) {
	reference := "bt_" + uuid.NewString()

	return &providers.InitiateResult{
		ProviderTransactionID: reference,
		Instructions: fmt.Sprintf(
			"Transfer %d %s to %s, IBAN %s (%s). Payment reference: %s, order %s.",
			req.AmountCents, req.Currency, a.cfg.Beneficiary, a.cfg.IBAN, a.cfg.Bank, reference, req.OrderNumber,
		),
	}, nil
}

// Capture reports the transfer as succeeded. The capture endpoint for bank
// transfers sits behind operator authentication upstream; reaching it means
// an operator has matched the incoming funds to this reference.
func (a *Adapter) Capture(_ context.Context, providerTransactionID string) (*providers.CaptureResult, error) {
	return &providers.CaptureResult{
		Status:     providers.OutcomeSucceeded,
		RawPayload: []byte(`{"confirmed_by":"operator","reference":"` + providerTransactionID + `"}`),
	}, nil
}

// VerifyCallback always reports invalid: banks do not call us back.
func (a *Adapter) VerifyCallback(rawBody []byte, _ http.Header) (*providers.CallbackResult, error) {
	return &providers.CallbackResult{Valid: false, RawPayload: rawBody}, nil
}
