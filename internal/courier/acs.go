package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const acsDefaultURL = "https://webservices.acscourier.net/ACSRestServices/api/ACSAutoRest"

// ACS wraps the ACS courier "AutoRest" API: every call posts an alias name
// plus an input-parameter map to a single endpoint.
type ACS struct {
	APIKey          string
	CompanyID       string
	CompanyPassword string
	UserID          string
	UserPassword    string
	Origin          string

	BaseURL    string
	HTTPClient *http.Client
}

type acsEnvelope struct {
	Alias  string         `json:"ACSAlias"`
	Params map[string]any `json:"ACSInputParameters"`
}

type acsResponse struct {
	HasError     bool           `json:"ACSExecution_HasError"`
	ErrorMessage string         `json:"ACSExecutionErrorMessage"`
	Output       map[string]any `json:"ACSOutputResponse"`
}

func (a *ACS) client() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (a *ACS) baseURL() string {
	if a.BaseURL != "" {
		return a.BaseURL
	}
	return acsDefaultURL
}

func (a *ACS) call(ctx context.Context, alias string, params map[string]any) (*acsResponse, error) {
	body, err := json.Marshal(acsEnvelope{Alias: alias, Params: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("ACSApiKey", a.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out acsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	if out.HasError {
		msg := out.ErrorMessage
		if msg == "" {
			msg = "ACS error"
		}
		return nil, fmt.Errorf("courier: acs: %s", msg)
	}
	return &out, nil
}

func (a *ACS) Quote(ctx context.Context, destination string, weightKg float64) (*Quote, error) {
	origin := a.Origin
	if origin == "" {
		origin = "Athens"
	}

	res, err := a.call(ctx, "ACS_Price_Lookup", map[string]any{
		"Origin":        origin,
		"Destination":   destination,
		"Weight_Kg":     weightKg,
		"Delivery_Type": "Standard",
	})
	if err != nil {
		return nil, err
	}

	cost := decimal.Zero
	if v, ok := res.Output["Total_Amount"]; ok {
		switch t := v.(type) {
		case float64:
			cost = decimal.NewFromFloat(t)
		case string:
			if d, err := decimal.NewFromString(t); err == nil {
				cost = d
			}
		}
	}

	return &Quote{Method: "ACS Standard", Cost: cost, Days: 2}, nil
}

func (a *ACS) CreateVoucher(ctx context.Context, req VoucherRequest) (string, error) {
	res, err := a.call(ctx, "ACS_Create_Voucher", map[string]any{
		"Company_ID":        a.CompanyID,
		"Company_Password":  a.CompanyPassword,
		"User_ID":           a.UserID,
		"User_Password":     a.UserPassword,
		"Sender_Address":    a.Origin,
		"Recipient_Name":    req.RecipientName,
		"Recipient_Address": req.Address,
		"Recipient_Phone":   req.Phone,
		"Recipient_Zipcode": req.Zipcode,
		"Recipient_Region":  req.Region,
		"Weight_Kg":         req.WeightKg,
		"Item_Quantity":     req.Pieces,
		"Reference_Key1":    req.OrderRef,
	})
	if err != nil {
		return "", err
	}

	voucher, _ := res.Output["Voucher_No"].(string)
	if voucher == "" {
		return "", fmt.Errorf("courier: acs: voucher creation failed")
	}
	return voucher, nil
}

var _ Courier = (*ACS)(nil)
