package paynet

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covacitrees/oms/internal/providers"
	"github.com/covacitrees/oms/internal/service/errs"
)

func newTestAdapter() *Adapter {
	return NewAdapter(Config{
		BaseURL:    "https://gate.paynet.test",
		MerchantID: "m-100",
		SecretKey:  "paynet-secret",
	}, nil)
}

func TestInitiatePreparesSignedForm(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter()

	res, err := adapter.Initiate(context.Background(), providers.InitiateRequest{
		OrderNumber: "ORD-202609-0001",
		AmountCents: 10000,
		Currency:    "MDL",
	})
	require.NoError(t, err)

	assert.Equal(t, "pn-ORD-202609-0001", res.ProviderTransactionID)
	assert.Equal(t, "https://gate.paynet.test/acquiring/payment", res.FormTarget)
	assert.Equal(t, "10000", res.FormFields["amount"])
	assert.NotEmpty(t, res.FormFields[SignatureField])

	// Preparing the form again yields the same reference and signature.
	again, err := adapter.Initiate(context.Background(), providers.InitiateRequest{
		OrderNumber: "ORD-202609-0001",
		AmountCents: 10000,
		Currency:    "MDL",
	})
	require.NoError(t, err)
	assert.Equal(t, res.FormFields[SignatureField], again.FormFields[SignatureField])
}

func TestInitiateWithoutCredentials(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter(Config{}, nil)

	_, err := adapter.Initiate(context.Background(), providers.InitiateRequest{OrderNumber: "ORD-1"})

	var providerErr *errs.ProviderError
	require.ErrorAs(t, err, &providerErr)
}

func signedCallback(t *testing.T, adapter *Adapter, fields map[string]string) []byte {
	t.Helper()

	form := url.Values{}
	for key, value := range fields {
		form.Set(key, value)
	}
	form.Set(SignatureField, adapter.signFields(fields))

	return []byte(form.Encode())
}

func TestVerifyCallback(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter()
	fields := map[string]string{
		"merchant_id": "m-100",
		"external_id": "pn-ORD-202609-0001",
		"status":      "paid",
		"amount":      "10000",
	}

	t.Run("valid signature", func(t *testing.T) {
		t.Parallel()

		res, err := adapter.VerifyCallback(signedCallback(t, adapter, fields), nil)
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, "pn-ORD-202609-0001", res.ProviderTransactionID)
		assert.Equal(t, providers.OutcomeSucceeded, res.Status)
	})

	t.Run("tampered amount", func(t *testing.T) {
		t.Parallel()

		body := signedCallback(t, adapter, fields)
		tampered, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		tampered.Set("amount", "1")

		res, err := adapter.VerifyCallback([]byte(tampered.Encode()), nil)
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()

		form := url.Values{}
		for key, value := range fields {
			form.Set(key, value)
		}

		res, err := adapter.VerifyCallback([]byte(form.Encode()), nil)
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("failed status maps to failed", func(t *testing.T) {
		t.Parallel()

		declined := map[string]string{
			"external_id": "pn-ORD-202609-0001",
			"status":      "declined",
		}
		res, err := adapter.VerifyCallback(signedCallback(t, adapter, declined), nil)
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, providers.OutcomeFailed, res.Status)
	})
}
