package oxapay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/payment"
)

const testKey = "merchant-secret"

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(zap.NewNop(), Config{
		MerchantKey: testKey,
		APIURL:      url,
		Timeout:     timeout,
		Lifetime:    time.Hour,
	})
}

func TestClient_CreateInvoice(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, testKey, r.Header.Get("merchant_api_key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_, _ = w.Write([]byte(`{
			"status": 200,
			"message": "Operation completed successfully!",
			"data": {
				"track_id": "trk_1",
				"address": "TQ1abc",
				"pay_amount": 135.12345678,
				"pay_currency": "usdt",
				"network": "TRON",
				"qr_code": "https://api.qrserver.com/trk_1",
				"expired_at": 1760000000
			}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	inv, err := c.CreateInvoice(context.Background(), payment.InvoiceRequest{
		OrderID:     "o1",
		Amount:      decimal.RequireFromString("135"),
		PayCurrency: "USDT",
		Network:     "TRC20",
		CallbackURL: "https://pay.example.com/payments/webhook/crypto",
	})
	require.NoError(t, err)

	assert.Equal(t, "trk_1", inv.ExternalID)
	assert.Equal(t, "135.123457", inv.PayAmount.String())
	assert.Equal(t, "USDT", inv.PayCurrency)
	assert.Equal(t, "TRON", inv.NetworkName)
	assert.Equal(t, "TQ1abc", inv.PayAddress)
	assert.Equal(t, time.Unix(1760000000, 0).UTC(), inv.ExpiresAt)

	assert.Equal(t, 135.0, captured["amount"])
	assert.Equal(t, "USD", captured["currency"])
	assert.Equal(t, "o1", captured["order_id"])
	assert.Equal(t, "Order o1", captured["description"])
	assert.Equal(t, 60.0, captured["lifetime"])
	assert.Equal(t, 1.0, captured["fee_paid_by_payer"])
	assert.Equal(t, 5.0, captured["under_paid_coverage"])
}

func TestClient_CreateInvoice_TrimsTrailingZeros(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":200,"data":{"track_id":"trk_1","pay_amount":"0.00150000","pay_currency":"btc"}}`))
	}))
	defer srv.Close()

	inv, err := newTestClient(srv.URL, time.Second).CreateInvoice(context.Background(), payment.InvoiceRequest{
		OrderID: "o1", Amount: decimal.NewFromInt(100), PayCurrency: "BTC",
	})
	require.NoError(t, err)
	assert.Equal(t, "0.0015", inv.PayAmount.String())
	assert.True(t, inv.ExpiresAt.IsZero())
}

func TestClient_CreateInvoice_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		errorContains string
	}{
		{
			name:          "upstream message",
			status:        http.StatusOK,
			body:          `{"status":400,"message":"Invalid pay currency"}`,
			errorContains: "Invalid pay currency",
		},
		{
			name:          "error object",
			status:        http.StatusOK,
			body:          `{"status":401,"error":{"message":"Invalid merchant API key"}}`,
			errorContains: "Invalid merchant API key",
		},
		{
			name:          "missing data",
			status:        http.StatusOK,
			body:          `{"status":200}`,
			errorContains: "white label error",
		},
		{
			name:          "not json",
			status:        http.StatusBadGateway,
			body:          `<html>bad gateway</html>`,
			errorContains: "unexpected response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, time.Second).CreateInvoice(context.Background(), payment.InvoiceRequest{
				OrderID: "o1", Amount: decimal.NewFromInt(10), PayCurrency: "BTC",
			})
			require.Error(t, err)

			var provErr *payment.ProviderError
			require.True(t, errors.As(err, &provErr))
			require.Equal(t, payment.ProviderCrypto, provErr.Provider)
			require.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestClient_CreateInvoice_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(srv.URL, 50*time.Millisecond).CreateInvoice(context.Background(), payment.InvoiceRequest{
		OrderID: "o1", Amount: decimal.NewFromInt(10), PayCurrency: "BTC",
	})
	require.Error(t, err)

	var provErr *payment.ProviderError
	require.True(t, errors.As(err, &provErr))
	require.True(t, isTimeout(err))
	require.Contains(t, err.Error(), "request timed out")
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(zap.NewNop(), Config{MerchantKey: testKey})

	assert.Equal(t, "https://api.oxapay.com/v1/payment/white-label", c.apiURL)
	assert.Equal(t, DefaultAPIURL, c.apiURL)
	assert.Equal(t, time.Hour, c.lifetime)
	assert.Equal(t, 15*time.Second, c.client.Timeout)
}

func TestClient_VerifyAndParse(t *testing.T) {
	c := newTestClient("", 0)
	body := []byte(`{"trackId":"trk_1","status":"Paid"}`)

	headerWith := func(sig string) http.Header {
		h := http.Header{}
		if sig != "" {
			h.Set("hmac", sig)
		}
		return h
	}

	t.Run("valid signature", func(t *testing.T) {
		event, err := c.VerifyAndParse(headerWith(Sign(testKey, body)), body)
		require.NoError(t, err)
		require.Equal(t, payment.Event{
			OrderKey:  "trk_1",
			KeyKind:   payment.KeyExternalID,
			NewStatus: payment.StatusPaid,
			Provider:  payment.ProviderCrypto,
			RawStatus: "paid",
		}, event)
	})

	t.Run("snake case track id", func(t *testing.T) {
		b := []byte(`{"track_id":"trk_9","status":"expired"}`)
		event, err := c.VerifyAndParse(headerWith(Sign(testKey, b)), b)
		require.NoError(t, err)
		require.Equal(t, "trk_9", event.OrderKey)
		require.Equal(t, payment.StatusExpired, event.NewStatus)
	})

	t.Run("missing signature", func(t *testing.T) {
		_, err := c.VerifyAndParse(headerWith(""), body)
		var authErr *payment.AuthError
		require.True(t, errors.As(err, &authErr))
	})

	t.Run("empty body", func(t *testing.T) {
		_, err := c.VerifyAndParse(headerWith(Sign(testKey, nil)), nil)
		var authErr *payment.AuthError
		require.True(t, errors.As(err, &authErr))
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := c.VerifyAndParse(headerWith(Sign("other", body)), body)
		var authErr *payment.AuthError
		require.True(t, errors.As(err, &authErr))
	})

	t.Run("not hex", func(t *testing.T) {
		_, err := c.VerifyAndParse(headerWith("zz-not-hex"), body)
		var authErr *payment.AuthError
		require.True(t, errors.As(err, &authErr))
	})

	t.Run("any single byte mutation is rejected", func(t *testing.T) {
		sig := Sign(testKey, body)
		for i := range body {
			mutated := append([]byte(nil), body...)
			mutated[i] ^= 0x01
			_, err := c.VerifyAndParse(headerWith(sig), mutated)
			var authErr *payment.AuthError
			require.True(t, errors.As(err, &authErr), "byte %d", i)
		}
	})

	t.Run("intermediate status ignored", func(t *testing.T) {
		b := []byte(`{"trackId":"trk_1","status":"paying"}`)
		_, err := c.VerifyAndParse(headerWith(Sign(testKey, b)), b)
		require.ErrorIs(t, err, payment.ErrIgnored)
	})

	t.Run("missing track id", func(t *testing.T) {
		b := []byte(`{"status":"paid"}`)
		_, err := c.VerifyAndParse(headerWith(Sign(testKey, b)), b)
		var parseErr *payment.ParseError
		require.True(t, errors.As(err, &parseErr))
		require.Equal(t, "trackId", parseErr.Field)
	})

	t.Run("signed garbage", func(t *testing.T) {
		b := []byte(`not json`)
		_, err := c.VerifyAndParse(headerWith(Sign(testKey, b)), b)
		var parseErr *payment.ParseError
		require.True(t, errors.As(err, &parseErr))
	})

	t.Run("no merchant key configured", func(t *testing.T) {
		unconfigured := NewClient(zap.NewNop(), Config{})
		_, err := unconfigured.VerifyAndParse(headerWith(Sign("", body)), body)
		var authErr *payment.AuthError
		require.True(t, errors.As(err, &authErr))
	})
}
