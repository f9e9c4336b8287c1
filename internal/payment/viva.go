// Package payment talks to the Viva Wallet smart-checkout API: it exchanges
// client credentials for a bearer token, creates a checkout order and
// returns the hosted payment page to redirect the buyer to.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type CheckoutRequest struct {
	Amount        int64 // minor currency units
	Description   string
	CustomerEmail string
	CustomerName  string
	CustomerPhone string
	CountryCode   string
	MerchantRef   string
	WebhookURL    string
	SuccessURL    string
	FailureURL    string
}

type CheckoutSession struct {
	OrderCode   string
	RedirectURL string
}

type Gateway interface {
	Configured() bool
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// APIError carries the gateway's HTTP status and response body for logging.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment: gateway returned %d: %s", e.Status, e.Body)
}

const (
	demoAccountsURL = "https://demo-accounts.vivapayments.com"
	demoAPIURL      = "https://demo-api.vivapayments.com"
	demoCheckoutURL = "https://demo.vivapayments.com/web/checkout"
)

type VivaGateway struct {
	ClientID     string
	ClientSecret string
	SourceCode   string

	// overridable for tests; empty values fall back to the demo endpoints
	AccountsURL string
	APIURL      string
	CheckoutURL string

	HTTPClient *http.Client
}

func (g *VivaGateway) Configured() bool {
	return g != nil && g.ClientID != "" && g.ClientSecret != ""
}

func (g *VivaGateway) client() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (g *VivaGateway) accountsURL() string {
	if g.AccountsURL != "" {
		return g.AccountsURL
	}
	return demoAccountsURL
}

func (g *VivaGateway) apiURL() string {
	if g.APIURL != "" {
		return g.APIURL
	}
	return demoAPIURL
}

func (g *VivaGateway) checkoutURL() string {
	if g.CheckoutURL != "" {
		return g.CheckoutURL
	}
	return demoCheckoutURL
}

func (g *VivaGateway) token(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.accountsURL()+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.ClientID, g.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("payment: token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("payment: malformed token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("payment: token response missing access_token")
	}
	return out.AccessToken, nil
}

func (g *VivaGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	token, err := g.token(ctx)
	if err != nil {
		return nil, err
	}

	country := req.CountryCode
	if country == "" {
		country = "GR"
	}

	payload := map[string]any{
		"amount":       req.Amount,
		"customerTrns": req.Description,
		"customer": map[string]any{
			"email":       req.CustomerEmail,
			"fullName":    req.CustomerName,
			"phone":       req.CustomerPhone,
			"countryCode": country,
		},
		"paymentTimeout": 300,
		"merchantTrns":   req.MerchantRef,
		"sourceCode":     g.SourceCode,
		"requestLang":    "el-GR",
		"webhookUrl":     req.WebhookURL,
		"successUrl":     req.SuccessURL,
		"failureUrl":     req.FailureURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.apiURL()+"/checkout/v2/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment: checkout request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	code, err := decodeOrderCode(resp.Body)
	if err != nil {
		return nil, err
	}

	return &CheckoutSession{
		OrderCode:   code,
		RedirectURL: g.checkoutURL() + "?ref=" + url.QueryEscape(code),
	}, nil
}

// decodeOrderCode accepts both the numeric orderCode Viva issues and the
// string form some environments return.
func decodeOrderCode(r io.Reader) (string, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var out struct {
		OrderCode any `json:"orderCode"`
	}
	if err := dec.Decode(&out); err != nil {
		return "", fmt.Errorf("payment: malformed checkout response: %w", err)
	}

	switch v := out.OrderCode.(type) {
	case json.Number:
		return v.String(), nil
	case string:
		if v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("payment: checkout response missing orderCode")
}

var _ Gateway = (*VivaGateway)(nil)
