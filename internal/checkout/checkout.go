// Package checkout implements the order/payment lifecycle: converting a
// session cart into a Pending order with stock debited, opening a gateway
// checkout session, and applying the single terminal transition once the
// payment outcome is known.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nmarkou/eshop/internal/logging"
	"github.com/nmarkou/eshop/internal/models"
	"github.com/nmarkou/eshop/internal/payment"
	"github.com/nmarkou/eshop/internal/session"
)

var (
	ErrEmptyCart            = errors.New("cart empty")
	ErrIncompleteDelivery   = errors.New("incomplete delivery info")
	ErrPaymentNotConfigured = errors.New("payment not configured")
	ErrOrderNotFound        = errors.New("order not found")
)

// OutOfStockError reports the first cart line that could not be satisfied
// when the placement transaction re-checked stock.
type OutOfStockError struct {
	ProductID   uint
	ProductName string
}

func (e *OutOfStockError) Error() string {
	if e.ProductName != "" {
		return "out of stock: " + e.ProductName
	}
	return fmt.Sprintf("out of stock: product %d", e.ProductID)
}

type Service struct {
	DB      *gorm.DB
	Gateway payment.Gateway
	Log     *slog.Logger

	// BaseURL is the externally reachable origin used to build the webhook
	// and redirect callbacks handed to the gateway.
	BaseURL string
}

type Placement struct {
	Order       models.Order
	Items       []models.OrderItem
	OrderCode   string
	RedirectURL string
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logging.FromContext(ctx)
}

// PlaceOrder runs the whole placement as one transaction: re-read each
// product under lock, validate stock, create the Pending/Pending order and
// its items at the current unit price, debit stock, derive the total
// server-side, then open the gateway checkout session. Any failure,
// including a gateway failure, rolls everything back so no Pending order
// exists without a payment session.
func (s *Service) PlaceOrder(ctx context.Context, user models.User, sess *session.State, paymentMethod string) (*Placement, error) {
	if len(sess.Cart) == 0 {
		return nil, ErrEmptyCart
	}
	if !sess.Delivery.Complete() {
		return nil, ErrIncompleteDelivery
	}
	if s.Gateway == nil || !s.Gateway.Configured() {
		return nil, ErrPaymentNotConfigured
	}
	if paymentMethod == "" {
		paymentMethod = "card"
	}

	var placement Placement

	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order := models.Order{
			UserID:          user.ID,
			Status:          models.OrderStatusPending,
			PaymentStatus:   models.PaymentStatusPending,
			ShippingAddress: sess.Delivery.Address,
			ShippingPhone:   sess.Delivery.Phone,
			ShippingFloor:   sess.Delivery.Floor,
			ShippingZipcode: sess.Delivery.Zipcode,
			ShippingRegion:  sess.Delivery.Region,
			PaymentMethod:   paymentMethod,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		total := decimal.Zero
		items := make([]models.OrderItem, 0, len(sess.Cart))
		for _, line := range sess.Cart {
			var p models.Product
			q := tx
			if tx.Dialector.Name() == "postgres" {
				// row lock so concurrent checkouts cannot both debit the
				// last unit; sqlite's single-writer model covers tests
				q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
			}
			if err := q.First(&p, line.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &OutOfStockError{ProductID: line.ProductID}
				}
				return err
			}
			if p.Stock < line.Quantity {
				return &OutOfStockError{ProductID: p.ID, ProductName: p.Name}
			}

			item := models.OrderItem{
				OrderID:   order.ID,
				ProductID: p.ID,
				Quantity:  line.Quantity,
				UnitPrice: p.Price,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			items = append(items, item)
			total = total.Add(item.Subtotal())

			if err := tx.Model(&models.Product{}).Where("id = ?", p.ID).
				Update("stock", p.Stock-line.Quantity).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("total_amount", total).Error; err != nil {
			return err
		}
		order.TotalAmount = total

		cs, err := s.Gateway.CreateCheckout(ctx, payment.CheckoutRequest{
			Amount:        total.Mul(decimal.NewFromInt(100)).IntPart(),
			Description:   fmt.Sprintf("Order %d for %s", order.ID, user.Email),
			CustomerEmail: user.Email,
			CustomerName:  customerName(user),
			CustomerPhone: sess.Delivery.Phone,
			MerchantRef:   fmt.Sprintf("Order-%d", order.ID),
			WebhookURL:    fmt.Sprintf("%s/api/v1/payment/viva/callback/%d", s.BaseURL, order.ID),
			SuccessURL:    fmt.Sprintf("%s/api/v1/payment/success", s.BaseURL),
			FailureURL:    fmt.Sprintf("%s/api/v1/payment/cancel", s.BaseURL),
		})
		if err != nil {
			// rolls back the order, its items and the stock debit
			return err
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("transaction_id", cs.OrderCode).Error; err != nil {
			return err
		}
		order.TransactionID = cs.OrderCode

		placement = Placement{
			Order:       order,
			Items:       items,
			OrderCode:   cs.OrderCode,
			RedirectURL: cs.RedirectURL,
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	sess.OrderID = placement.Order.ID
	sess.OrderCode = placement.OrderCode

	s.log(ctx).Info("order placed",
		"order_id", placement.Order.ID,
		"user_id", user.ID,
		"total", placement.Order.TotalAmount.String(),
		"order_code", placement.OrderCode,
	)
	return &placement, nil
}

func customerName(u models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return "Customer"
}

// ApplyPaymentOutcome performs the terminal transition for an order. The
// update is conditional on the order still being Pending, so whichever of
// the webhook, success view or cancel view arrives first wins and every
// later call is a no-op. It returns whether this call applied the
// transition; an already-terminal order yields (false, nil).
func (s *Service) ApplyPaymentOutcome(ctx context.Context, orderID uint, paid bool) (bool, error) {
	var order models.Order
	if err := s.DB.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrOrderNotFound
		}
		return false, err
	}

	status, payStatus := models.OrderStatusCancelled, models.PaymentStatusFailed
	if paid {
		status, payStatus = models.OrderStatusCompleted, models.PaymentStatusPaid
	}

	res := s.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
		Updates(map[string]any{"status": status, "payment_status": payStatus})
	if res.Error != nil {
		return false, res.Error
	}
	applied := res.RowsAffected > 0

	if applied {
		s.log(ctx).Info("payment outcome applied",
			"order_id", orderID, "status", status, "payment_status", payStatus)
	}
	return applied, nil
}
