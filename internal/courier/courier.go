// Package courier quotes delivery costs and issues shipping vouchers
// against the ACS and Geniki Taxydromiki APIs.
package courier

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable wraps any transport-level courier failure. The shop
// surfaces it as a 503 and performs no retries.
var ErrUnavailable = errors.New("courier service unavailable")

type Quote struct {
	Method string          `json:"method"`
	Cost   decimal.Decimal `json:"cost"`
	Days   int             `json:"days"`
}

type VoucherRequest struct {
	OrderRef      string
	RecipientName string
	Address       string
	Phone         string
	Zipcode       string
	Region        string
	WeightKg      float64
	Pieces        int
}

type Courier interface {
	Quote(ctx context.Context, destination string, weightKg float64) (*Quote, error)
	CreateVoucher(ctx context.Context, req VoucherRequest) (string, error)
}
