package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestStateCartLines(t *testing.T) {
	st := &State{}

	st.AddLine(1, 2)
	st.AddLine(2, 1)
	st.AddLine(1, 3)
	require.Equal(t, []CartLine{{ProductID: 1, Quantity: 5}, {ProductID: 2, Quantity: 1}}, st.Cart)

	require.True(t, st.DecrementLine(2))
	require.Equal(t, []CartLine{{ProductID: 1, Quantity: 5}}, st.Cart)

	require.True(t, st.DecrementLine(1))
	require.Equal(t, uint(4), st.Cart[0].Quantity)

	require.True(t, st.RemoveLine(1))
	require.Empty(t, st.Cart)

	require.False(t, st.DecrementLine(1))
	require.False(t, st.RemoveLine(1))
}

func TestStateClearCheckout(t *testing.T) {
	st := &State{
		Cart:      []CartLine{{ProductID: 1, Quantity: 1}},
		Delivery:  &DeliveryInfo{Address: "Egnatia 1"},
		OrderID:   4,
		OrderCode: "ABC123",
	}
	st.ClearCheckout()

	require.Empty(t, st.Cart)
	require.Nil(t, st.Delivery)
	require.Equal(t, uint(4), st.OrderID)
	require.Equal(t, "ABC123", st.OrderCode)
}

func TestDeliveryInfoComplete(t *testing.T) {
	var d *DeliveryInfo
	require.False(t, d.Complete())

	d = &DeliveryInfo{Address: "Egnatia 1", Phone: "2310000000", Zipcode: "54625"}
	require.False(t, d.Complete())

	d.Region = "Thessaloniki"
	require.True(t, d.Complete())

	// floor stays optional
	require.Empty(t, d.Floor)
}

func TestEnsureID(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	id := EnsureID(c)
	require.NotEmpty(t, id)

	var set *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == CookieName {
			set = ck
		}
	}
	require.NotNil(t, set)
	require.Equal(t, id, set.Value)
	require.True(t, set.HttpOnly)

	// an existing cookie wins over minting
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(&http.Cookie{Name: CookieName, Value: "existing-id"})
	c2 := e.NewContext(req2, httptest.NewRecorder())
	require.Equal(t, "existing-id", EnsureID(c2))
}
