package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/nmarkou/eshop/internal/courier"
	"github.com/nmarkou/eshop/internal/models"
	"github.com/nmarkou/eshop/internal/session"
)

// DeliveryHandler quotes shipping costs and issues vouchers through the
// configured couriers. Courier failures surface as 503 with no retry.
type DeliveryHandler struct {
	DB        *gorm.DB
	Sessions  session.Store
	Couriers  map[string]courier.Courier
	JWTSecret []byte
}

func (h *DeliveryHandler) courierFor(name string) (courier.Courier, error) {
	if name == "" {
		name = "acs"
	}
	cr, ok := h.Couriers[name]
	if !ok {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unknown courier")
	}
	return cr, nil
}

func (h *DeliveryHandler) Options(c echo.Context) error {
	cr, err := h.courierFor(c.QueryParam("courier"))
	if err != nil {
		return err
	}

	destination := c.QueryParam("destination")
	if destination == "" {
		destination = "Thessaloniki"
	}
	weight, err := strconv.ParseFloat(c.QueryParam("weight"), 64)
	if err != nil || weight <= 0 {
		weight = 2.0
	}

	quote, err := cr.Quote(c.Request().Context(), destination, weight)
	if err != nil {
		if errors.Is(err, courier.ErrUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "courier service unavailable")
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"options": []courier.Quote{*quote}})
}

// CreateVoucher issues a shipping voucher for the session's cart weight and
// delivery info.
func (h *DeliveryHandler) CreateVoucher(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		Courier string `json:"courier"`
	}
	_ = c.Bind(&req)

	cr, err := h.courierFor(req.Courier)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	sid := session.EnsureID(c)
	st, err := h.Sessions.Load(ctx, sid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session error")
	}

	if len(st.Cart) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "cart empty")
	}
	if !st.Delivery.Complete() {
		return echo.NewHTTPError(http.StatusBadRequest, "incomplete delivery info")
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}

	totalWeight := 0.0
	pieces := 0
	for _, line := range st.Cart {
		var p models.Product
		if err := h.DB.First(&p, line.ProductID).Error; err != nil {
			continue
		}
		w := p.WeightKg
		if w <= 0 {
			w = 1.0
		}
		totalWeight += w * float64(line.Quantity)
		pieces++
	}

	name := user.Name
	if name == "" {
		name = "Customer"
	}

	voucher, err := cr.CreateVoucher(ctx, courier.VoucherRequest{
		OrderRef:      fmt.Sprintf("Order-%d", st.OrderID),
		RecipientName: name,
		Address:       st.Delivery.Address,
		Phone:         st.Delivery.Phone,
		Zipcode:       st.Delivery.Zipcode,
		Region:        st.Delivery.Region,
		WeightKg:      totalWeight,
		Pieces:        pieces,
	})
	if err != nil {
		if errors.Is(err, courier.ErrUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "courier service unavailable")
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":    "voucher created",
		"voucher_no": voucher,
	})
}
