package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nmarkou/eshop/internal/checkout"
	"github.com/nmarkou/eshop/internal/config"
	"github.com/nmarkou/eshop/internal/hash"
	"github.com/nmarkou/eshop/internal/models"
	"github.com/nmarkou/eshop/internal/payment"
	"github.com/nmarkou/eshop/internal/session"
	"github.com/nmarkou/eshop/internal/settings"
)

// memStore is an in-process session.Store; state round-trips through JSON
// the way the redis store serializes it.
type memStore struct {
	states map[string][]byte
	orders map[uint]string
}

func newMemStore() *memStore {
	return &memStore{states: map[string][]byte{}, orders: map[uint]string{}}
}

func (m *memStore) Load(ctx context.Context, id string) (*session.State, error) {
	raw, ok := m.states[id]
	if !ok {
		return &session.State{}, nil
	}
	var st session.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return &session.State{}, nil
	}
	return &st, nil
}

func (m *memStore) Save(ctx context.Context, id string, st *session.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	m.states[id] = raw
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	delete(m.states, id)
	return nil
}

func (m *memStore) BindOrder(ctx context.Context, orderID uint, id string) error {
	m.orders[orderID] = id
	return nil
}

func (m *memStore) FindByOrder(ctx context.Context, orderID uint) (string, error) {
	return m.orders[orderID], nil
}

var _ session.Store = (*memStore)(nil)

type fakeGateway struct {
	orderCode string
	err       error
}

func (g *fakeGateway) Configured() bool { return true }

func (g *fakeGateway) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &payment.CheckoutSession{
		OrderCode:   g.orderCode,
		RedirectURL: "https://demo.vivapayments.com/web/checkout?ref=" + g.orderCode,
	}, nil
}

type testEnv struct {
	T        *testing.T
	E        *echo.Echo
	DB       *gorm.DB
	Sessions *memStore
	Gateway  *fakeGateway

	A *AuthHandler
	C *CartHandler
	P *PaymentHandler
	O *OrderHandler
	D *DeliveryHandler

	JWTSecret, RefreshSecret []byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	env := &testEnv{
		T:             t,
		E:             echo.New(),
		DB:            db,
		Sessions:      newMemStore(),
		Gateway:       &fakeGateway{orderCode: "ABC123"},
		JWTSecret:     []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
	}

	env.A = &AuthHandler{
		DB:            db,
		JWTSecret:     env.JWTSecret,
		RefreshSecret: env.RefreshSecret,
	}
	env.C = &CartHandler{DB: db, Sessions: env.Sessions, JWTSecret: env.JWTSecret}
	env.P = &PaymentHandler{
		DB:        db,
		Checkout:  &checkout.Service{DB: db, Gateway: env.Gateway, BaseURL: "https://shop.example.com"},
		Sessions:  env.Sessions,
		Settings:  settings.NewResolver(db),
		JWTSecret: env.JWTSecret,
	}
	env.O = &OrderHandler{DB: db, JWTSecret: env.JWTSecret}
	env.D = &DeliveryHandler{DB: db, Sessions: env.Sessions, JWTSecret: env.JWTSecret}

	return env
}

func (env *testEnv) doJSONRequest(method, path string, body interface{}, cookies ...*http.Cookie) (*httptest.ResponseRecorder, echo.Context) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	return rec, c
}

func (env *testEnv) createUser(email, password, role string) models.User {
	pwHash, err := hash.HashPassword(password)
	require.NoError(env.T, err)
	user := models.User{Email: email, PasswordHash: pwHash, Name: "Test Buyer", Role: role}
	require.NoError(env.T, env.DB.Create(&user).Error)
	return user
}

func (env *testEnv) accessCookie(user models.User) *http.Cookie {
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"exp":  time.Now().Add(15 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(env.JWTSecret)
	require.NoError(env.T, err)
	return &http.Cookie{Name: "accessToken", Value: token}
}

func (env *testEnv) sessionCookie(id string) *http.Cookie {
	return &http.Cookie{Name: session.CookieName, Value: id}
}

func (env *testEnv) seedProduct(name, price string, stock uint) models.Product {
	p := models.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock, WeightKg: 1}
	require.NoError(env.T, env.DB.Create(&p).Error)
	return p
}

func (env *testEnv) seedSession(id string, st *session.State) {
	require.NoError(env.T, env.Sessions.Save(context.Background(), id, st))
}

func completeDelivery() *session.DeliveryInfo {
	return &session.DeliveryInfo{
		Address: "Egnatia 1",
		Phone:   "2310000000",
		Zipcode: "54625",
		Region:  "Thessaloniki",
	}
}

func httpErrCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError, got %v", err)
	return he.Code
}
