package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nmarkou/eshop/internal/models"
	"github.com/nmarkou/eshop/internal/session"
)

func TestListOrders(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser("buyer@example.com", "password123", "user")
	other := env.createUser("other@example.com", "password123", "user")
	p := env.seedProduct("Keyboard", "10.00", 10)

	env.seedSession("sess-1", &session.State{
		Cart:     []session.CartLine{{ProductID: p.ID, Quantity: 1}},
		Delivery: completeDelivery(),
	})
	mine := env.placeTestOrder(user, "sess-1")

	env.seedSession("sess-2", &session.State{
		Cart:     []session.CartLine{{ProductID: p.ID, Quantity: 2}},
		Delivery: completeDelivery(),
	})
	env.placeTestOrder(other, "sess-2")

	rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/orders", nil, env.accessCookie(user))
	require.NoError(t, env.O.ListOrders(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var orders []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	require.Equal(t, mine.ID, orders[0].ID)
	require.Len(t, orders[0].Items, 1)
}

func TestGetOrder(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser("buyer@example.com", "password123", "user")
	other := env.createUser("other@example.com", "password123", "user")
	p := env.seedProduct("Keyboard", "10.00", 10)

	env.seedSession("sess-1", &session.State{
		Cart:     []session.CartLine{{ProductID: p.ID, Quantity: 1}},
		Delivery: completeDelivery(),
	})
	order := env.placeTestOrder(user, "sess-1")

	rec, c := env.doJSONRequest(http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", order.ID), nil,
		env.accessCookie(user))
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(order.ID))
	require.NoError(t, env.O.GetOrder(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, order.ID, got.ID)

	// not the owner
	_, c = env.doJSONRequest(http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", order.ID), nil,
		env.accessCookie(other))
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(order.ID))
	require.Equal(t, http.StatusForbidden, httpErrCode(t, env.O.GetOrder(c)))

	// unknown order
	_, c = env.doJSONRequest(http.MethodGet, "/api/v1/orders/999", nil, env.accessCookie(user))
	c.SetParamNames("id")
	c.SetParamValues("999")
	require.Equal(t, http.StatusNotFound, httpErrCode(t, env.O.GetOrder(c)))
}
