// Package session holds the per-browser shop state: cart lines, delivery
// info and the order being paid. State lives server-side keyed by an opaque
// cookie; handlers load it, mutate it and save it back.
package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const CookieName = "shopSession"

type CartLine struct {
	ProductID uint `json:"product_id"`
	Quantity  uint `json:"quantity"`
}

type DeliveryInfo struct {
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Floor   string `json:"floor,omitempty"`
	Zipcode string `json:"zipcode"`
	Region  string `json:"region"`
}

// Complete reports whether all required delivery fields are present. Floor
// is optional.
func (d *DeliveryInfo) Complete() bool {
	if d == nil {
		return false
	}
	return d.Address != "" && d.Phone != "" && d.Zipcode != "" && d.Region != ""
}

type State struct {
	Cart      []CartLine    `json:"cart,omitempty"`
	Delivery  *DeliveryInfo `json:"delivery,omitempty"`
	OrderID   uint          `json:"order_id,omitempty"`
	OrderCode string        `json:"order_code,omitempty"`
}

func (s *State) AddLine(productID, quantity uint) {
	for i := range s.Cart {
		if s.Cart[i].ProductID == productID {
			s.Cart[i].Quantity += quantity
			return
		}
	}
	s.Cart = append(s.Cart, CartLine{ProductID: productID, Quantity: quantity})
}

// DecrementLine lowers the quantity of a line by one, removing it at zero.
// It reports whether the line existed.
func (s *State) DecrementLine(productID uint) bool {
	for i := range s.Cart {
		if s.Cart[i].ProductID == productID {
			if s.Cart[i].Quantity > 1 {
				s.Cart[i].Quantity--
			} else {
				s.Cart = append(s.Cart[:i], s.Cart[i+1:]...)
			}
			return true
		}
	}
	return false
}

func (s *State) RemoveLine(productID uint) bool {
	for i := range s.Cart {
		if s.Cart[i].ProductID == productID {
			s.Cart = append(s.Cart[:i], s.Cart[i+1:]...)
			return true
		}
	}
	return false
}

// ClearCheckout drops the cart and delivery info after a terminal payment
// outcome. The order reference is kept for the success/cancel views.
func (s *State) ClearCheckout() {
	s.Cart = nil
	s.Delivery = nil
}

// EnsureID returns the request's session id, minting one and setting the
// cookie when the browser has none yet.
func EnsureID(c echo.Context) string {
	if ck, err := c.Cookie(CookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	id := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		Expires:  time.Now().Add(7 * 24 * time.Hour),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
