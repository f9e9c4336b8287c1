package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nmarkou/eshop/internal/models"
	"github.com/nmarkou/eshop/internal/mykafka"
	"github.com/nmarkou/eshop/internal/session"
)

// CartHandler keeps the cart in the shop session, not in SQL: a cart is
// ephemeral per-browser state and dies with the session.
type CartHandler struct {
	DB        *gorm.DB
	Sessions  session.Store
	Producer  *mykafka.Producer
	JWTSecret []byte
}

type cartLineView struct {
	Product  models.Product  `json:"product"`
	Quantity uint            `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

func (h *CartHandler) publish(c echo.Context, userID uint, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "cart_events", fmt.Sprint(userID), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func (h *CartHandler) loadSession(c echo.Context) (string, *session.State, error) {
	sid := session.EnsureID(c)
	st, err := h.Sessions.Load(c.Request().Context(), sid)
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusInternalServerError, "session error")
	}
	return sid, st, nil
}

func (h *CartHandler) saveSession(c echo.Context, sid string, st *session.State) error {
	if err := h.Sessions.Save(c.Request().Context(), sid, st); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session error")
	}
	return nil
}

// GetCart resolves the session lines against the live catalog. Lines whose
// product vanished or no longer has enough stock are dropped, mirroring
// what the cart page tells the user.
func (h *CartHandler) GetCart(c echo.Context) error {
	if _, err := GetID(c, h.JWTSecret); err != nil {
		return err
	}

	sid, st, err := h.loadSession(c)
	if err != nil {
		return err
	}

	views := make([]cartLineView, 0, len(st.Cart))
	kept := st.Cart[:0]
	removed := []uint{}
	total := decimal.Zero

	for _, line := range st.Cart {
		var p models.Product
		err := h.DB.First(&p, line.ProductID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && p.Stock < line.Quantity) {
			removed = append(removed, line.ProductID)
			continue
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		sub := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		views = append(views, cartLineView{Product: p, Quantity: line.Quantity, Subtotal: sub})
		total = total.Add(sub)
		kept = append(kept, line)
	}

	if len(removed) > 0 {
		st.Cart = kept
		if err := h.saveSession(c, sid, st); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"items":   views,
		"total":   total,
		"removed": removed,
	})
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"product_id"`
		Quantity  uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	var p models.Product
	if err := h.DB.First(&p, req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// advisory check only; the authoritative one runs inside the
	// placement transaction
	if p.Stock < req.Quantity {
		return echo.NewHTTPError(http.StatusConflict, "not enough stock available")
	}

	sid, st, err := h.loadSession(c)
	if err != nil {
		return err
	}
	st.AddLine(req.ProductID, req.Quantity)
	if err := h.saveSession(c, sid, st); err != nil {
		return err
	}

	h.publish(c, userID, map[string]any{
		"type":      "cart_item_added",
		"userID":    userID,
		"productID": req.ProductID,
		"quantity":  req.Quantity,
	})

	return c.JSON(http.StatusOK, st.Cart)
}

func (h *CartHandler) DeleteOneFromCart(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil || productID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	sid, st, err := h.loadSession(c)
	if err != nil {
		return err
	}
	if !st.DecrementLine(uint(productID)) {
		return echo.NewHTTPError(http.StatusNotFound, "item not found")
	}
	if err := h.saveSession(c, sid, st); err != nil {
		return err
	}

	h.publish(c, userID, map[string]any{
		"type":      "cart_item_decremented",
		"userID":    userID,
		"productID": productID,
	})

	return c.JSON(http.StatusOK, st.Cart)
}

func (h *CartHandler) DeleteAllFromCart(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil || productID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	sid, st, err := h.loadSession(c)
	if err != nil {
		return err
	}
	if !st.RemoveLine(uint(productID)) {
		return echo.NewHTTPError(http.StatusNotFound, "item not found")
	}
	if err := h.saveSession(c, sid, st); err != nil {
		return err
	}

	h.publish(c, userID, map[string]any{
		"type":      "cart_item_removed",
		"userID":    userID,
		"productID": productID,
	})

	return c.JSON(http.StatusOK, st.Cart)
}

func (h *CartHandler) SetDeliveryInfo(c echo.Context) error {
	if _, err := GetID(c, h.JWTSecret); err != nil {
		return err
	}

	var req session.DeliveryInfo
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.Complete() {
		return echo.NewHTTPError(http.StatusBadRequest,
			"all required fields (address, phone, zipcode, region) must be filled")
	}

	sid, st, err := h.loadSession(c)
	if err != nil {
		return err
	}
	st.Delivery = &req
	if err := h.saveSession(c, sid, st); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, st.Delivery)
}
