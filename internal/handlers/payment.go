package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/nmarkou/eshop/internal/checkout"
	"github.com/nmarkou/eshop/internal/models"
	"github.com/nmarkou/eshop/internal/mykafka"
	"github.com/nmarkou/eshop/internal/payment"
	"github.com/nmarkou/eshop/internal/session"
	"github.com/nmarkou/eshop/internal/settings"
)

// PaymentHandler exposes the state machine's three entry points: checkout
// submission, the gateway webhook, and the success/cancel browser views.
type PaymentHandler struct {
	DB        *gorm.DB
	Checkout  *checkout.Service
	Sessions  session.Store
	Settings  *settings.Resolver
	Producer  *mykafka.Producer
	JWTSecret []byte
}

func (h *PaymentHandler) publish(c echo.Context, orderID uint, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(orderID), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func (h *PaymentHandler) currentUser(c echo.Context) (*models.User, error) {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	return &user, nil
}

// PlaceOrder converts the session cart into a Pending order and responds
// with the gateway's hosted-payment redirect.
func (h *PaymentHandler) PlaceOrder(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	var req struct {
		PaymentMethod string `json:"payment_method"`
	}
	// body is optional; card is the default method
	_ = c.Bind(&req)

	ctx := c.Request().Context()
	sid := session.EnsureID(c)
	st, err := h.Sessions.Load(ctx, sid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session error")
	}

	placement, err := h.Checkout.PlaceOrder(ctx, *user, st, req.PaymentMethod)
	if err != nil {
		return h.placementError(c, err)
	}

	if err := h.Sessions.Save(ctx, sid, st); err != nil {
		c.Logger().Errorf("session save error: %v", err)
	}
	if err := h.Sessions.BindOrder(ctx, placement.Order.ID, sid); err != nil {
		c.Logger().Errorf("session bind error: %v", err)
	}

	h.publish(c, placement.Order.ID, map[string]any{
		"type":    "order_created",
		"orderID": placement.Order.ID,
		"userID":  user.ID,
		"total":   placement.Order.TotalAmount,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"order_id":     placement.Order.ID,
		"order_code":   placement.OrderCode,
		"total_amount": placement.Order.TotalAmount,
		"redirect_url": placement.RedirectURL,
	})
}

// placementError maps the checkout error taxonomy onto user-facing
// responses. Validation failures are recoverable and not logged as errors;
// persistence and gateway failures are logged and answered generically.
func (h *PaymentHandler) placementError(c echo.Context, err error) error {
	var oos *checkout.OutOfStockError
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		return echo.NewHTTPError(http.StatusBadRequest, "cart empty")
	case errors.Is(err, checkout.ErrIncompleteDelivery):
		return echo.NewHTTPError(http.StatusBadRequest, "incomplete delivery info")
	case errors.Is(err, checkout.ErrPaymentNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "payment not configured")
	case errors.As(err, &oos):
		return echo.NewHTTPError(http.StatusConflict, oos.Error())
	}

	var apiErr *payment.APIError
	if errors.As(err, &apiErr) {
		c.Logger().Errorf("gateway error: status=%d body=%s", apiErr.Status, apiErr.Body)
		return echo.NewHTTPError(http.StatusBadGateway, "payment gateway error")
	}

	c.Logger().Errorf("placement error: %v", err)
	return echo.NewHTTPError(http.StatusServiceUnavailable, "database error")
}

// VivaCallback is the server-to-server webhook. It authenticates via the
// shared-secret Key header and applies the terminal transition; duplicate
// deliveries for an already-terminal order are acknowledged as success.
func (h *PaymentHandler) VivaCallback(c echo.Context) error {
	ctx := c.Request().Context()

	expected := h.Settings.GetDefault(ctx, "VIVA_WEBHOOK_KEY", "")
	if expected == "" || c.Request().Header.Get("Key") != expected {
		c.Logger().Warnf("invalid webhook key for order %s", c.Param("order_id"))
		return echo.NewHTTPError(http.StatusForbidden, "invalid webhook key")
	}

	orderID, err := strconv.Atoi(c.Param("order_id"))
	if err != nil || orderID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	var payload struct {
		StatusID string `json:"statusId"`
	}
	// an unreadable body counts as a non-success status
	_ = c.Bind(&payload)
	paid := payload.StatusID == "F"

	applied, err := h.Checkout.ApplyPaymentOutcome(ctx, uint(orderID), paid)
	if err != nil {
		if errors.Is(err, checkout.ErrOrderNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if applied {
		if paid {
			h.clearOrderSession(ctx, c, uint(orderID))
		}
		h.publish(c, uint(orderID), map[string]any{
			"type":    "payment_outcome",
			"orderID": orderID,
			"paid":    paid,
		})
	}

	if paid || !applied {
		return c.JSON(http.StatusOK, echo.Map{"status": "success"})
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"status": "failed"})
}

// clearOrderSession empties the cart and delivery info of the browser
// session that placed the order. The webhook carries no cookie, so the
// session is found through the order binding.
func (h *PaymentHandler) clearOrderSession(ctx context.Context, c echo.Context, orderID uint) {
	sid, err := h.Sessions.FindByOrder(ctx, orderID)
	if err != nil || sid == "" {
		return
	}
	st, err := h.Sessions.Load(ctx, sid)
	if err != nil {
		return
	}
	st.ClearCheckout()
	if err := h.Sessions.Save(ctx, sid, st); err != nil {
		c.Logger().Errorf("session clear error: %v", err)
	}
}

// Success is the browser-redirect finalizer: a convenience path for when
// the webhook is slow, applying the same idempotent transition.
func (h *PaymentHandler) Success(c echo.Context) error {
	return h.finalize(c, true)
}

func (h *PaymentHandler) Cancel(c echo.Context) error {
	return h.finalize(c, false)
}

func (h *PaymentHandler) finalize(c echo.Context, paid bool) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	sid := session.EnsureID(c)
	st, err := h.Sessions.Load(ctx, sid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session error")
	}
	if st.OrderID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no order in progress")
	}

	var order models.Order
	if err := h.DB.First(&order, st.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if order.UserID != user.ID {
		c.Logger().Warnf("user %d attempted to finalize order %d", user.ID, order.ID)
		return echo.NewHTTPError(http.StatusForbidden, "unauthorized")
	}

	applied, err := h.Checkout.ApplyPaymentOutcome(ctx, order.ID, paid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	st.ClearCheckout()
	if err := h.Sessions.Save(ctx, sid, st); err != nil {
		c.Logger().Errorf("session save error: %v", err)
	}

	if applied {
		h.publish(c, order.ID, map[string]any{
			"type":    "payment_outcome",
			"orderID": order.ID,
			"paid":    paid,
		})
	}

	if err := h.DB.Preload("Items").First(&order, order.ID).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, order)
}
