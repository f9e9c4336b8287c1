package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func acsServer(t *testing.T, handler func(env acsEnvelope) acsResponse) *ACS {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("ACSApiKey"))
		var env acsEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		json.NewEncoder(w).Encode(handler(env))
	}))
	t.Cleanup(srv.Close)
	return &ACS{APIKey: "test-key", Origin: "Athens, Greece", BaseURL: srv.URL}
}

func TestACSQuote(t *testing.T) {
	acs := acsServer(t, func(env acsEnvelope) acsResponse {
		require.Equal(t, "ACS_Price_Lookup", env.Alias)
		require.Equal(t, "Thessaloniki", env.Params["Destination"])
		return acsResponse{Output: map[string]any{"Total_Amount": 6.20}}
	})

	q, err := acs.Quote(context.Background(), "Thessaloniki", 2.5)
	require.NoError(t, err)
	require.Equal(t, "ACS Standard", q.Method)
	require.Equal(t, "6.2", q.Cost.String())
	require.Equal(t, 2, q.Days)
}

func TestACSQuoteStringAmount(t *testing.T) {
	acs := acsServer(t, func(env acsEnvelope) acsResponse {
		return acsResponse{Output: map[string]any{"Total_Amount": "4.90"}}
	})

	q, err := acs.Quote(context.Background(), "Patra", 1)
	require.NoError(t, err)
	require.Equal(t, "4.9", q.Cost.String())
}

func TestACSCreateVoucher(t *testing.T) {
	acs := acsServer(t, func(env acsEnvelope) acsResponse {
		require.Equal(t, "ACS_Create_Voucher", env.Alias)
		require.Equal(t, "Order-7", env.Params["Reference_Key1"])
		return acsResponse{Output: map[string]any{"Voucher_No": "7000123456"}}
	})

	voucher, err := acs.CreateVoucher(context.Background(), VoucherRequest{
		OrderRef:      "Order-7",
		RecipientName: "Test Buyer",
		Address:       "Egnatia 1",
		Phone:         "2310000000",
		Zipcode:       "54625",
		Region:        "Thessaloniki",
		WeightKg:      2,
		Pieces:        1,
	})
	require.NoError(t, err)
	require.Equal(t, "7000123456", voucher)
}

func TestACSExecutionError(t *testing.T) {
	acs := acsServer(t, func(env acsEnvelope) acsResponse {
		return acsResponse{HasError: true, ErrorMessage: "invalid credentials"}
	})

	_, err := acs.Quote(context.Background(), "Athens", 1)
	require.ErrorContains(t, err, "invalid credentials")
	require.NotErrorIs(t, err, ErrUnavailable)
}

func TestACSUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	acs := &ACS{APIKey: "k", BaseURL: srv.URL}
	_, err := acs.Quote(context.Background(), "Athens", 1)
	require.ErrorIs(t, err, ErrUnavailable)

	srv.Close()
	_, err = acs.CreateVoucher(context.Background(), VoucherRequest{})
	require.ErrorIs(t, err, ErrUnavailable)
}
