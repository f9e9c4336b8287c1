package token

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nmarkou/eshop/internal/config"
	"github.com/nmarkou/eshop/internal/models"
)

func newService(t *testing.T) *TokenService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return &TokenService{
		DB:            db,
		JWTSecret:     []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
	}
}

func storeRefresh(svc *TokenService, raw string, userID uint, role string) {
	svc.DB.Create(&models.RefreshToken{
		Token:     raw,
		UserID:    userID,
		Role:      role,
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour).Unix(),
	})
}

func TestRotateToken(t *testing.T) {
	svc := newService(t)

	refresh, err := SignRefreshToken(7, "user", svc.RefreshSecret)
	require.NoError(t, err)
	storeRefresh(svc, refresh, 7, "user")

	newAccess, newRefresh, err := svc.RotateToken(refresh)
	require.NoError(t, err)
	require.NotEmpty(t, newAccess)
	require.NotEqual(t, refresh, newRefresh)

	// the new access token carries the same identity
	tok, err := jwt.Parse(newAccess, func(j *jwt.Token) (interface{}, error) {
		return svc.JWTSecret, nil
	})
	require.NoError(t, err)
	claims := tok.Claims.(jwt.MapClaims)
	require.Equal(t, float64(7), claims["sub"])
	require.Equal(t, "user", claims["role"])

	// old refresh token is revoked, the new one stored
	var old models.RefreshToken
	require.NoError(t, svc.DB.Where("token = ?", refresh).First(&old).Error)
	require.True(t, old.Revoked)

	var stored models.RefreshToken
	require.NoError(t, svc.DB.Where("token = ?", newRefresh).First(&stored).Error)
	require.False(t, stored.Revoked)

	// a revoked token cannot rotate again
	_, _, err = svc.RotateToken(refresh)
	require.ErrorContains(t, err, "revoked")
}

func TestRotateTokenRejectsNonRefresh(t *testing.T) {
	svc := newService(t)

	access, err := SignAccessToken(7, "user", svc.RefreshSecret)
	require.NoError(t, err)

	_, _, err = svc.RotateToken(access)
	require.ErrorContains(t, err, "not a refresh token")
}

func TestRotateTokenRejectsUnknown(t *testing.T) {
	svc := newService(t)

	refresh, err := SignRefreshToken(7, "user", svc.RefreshSecret)
	require.NoError(t, err)

	// valid signature but never stored
	_, _, err = svc.RotateToken(refresh)
	require.ErrorContains(t, err, "not found")
}

func middlewareProbe(t *testing.T, svc *TokenService, cookies ...*http.Cookie) (*httptest.ResponseRecorder, echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var inner echo.Context
	err := svc.AutoRefreshMiddleware(func(c echo.Context) error {
		inner = c
		return c.NoContent(http.StatusOK)
	})(c)
	return rec, inner, err
}

func TestAutoRefreshValidAccessToken(t *testing.T) {
	svc := newService(t)
	access, err := SignAccessToken(7, "user", svc.JWTSecret)
	require.NoError(t, err)

	rec, inner, err := middlewareProbe(t, svc, &http.Cookie{Name: "accessToken", Value: access})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint(7), inner.Get("userID"))
	require.Equal(t, "user", inner.Get("role"))
}

func TestAutoRefreshRotatesExpiredAccessToken(t *testing.T) {
	svc := newService(t)

	expiredClaims := jwt.MapClaims{
		"sub":  float64(7),
		"role": "user",
		"exp":  time.Now().Add(-time.Minute).Unix(),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString(svc.JWTSecret)
	require.NoError(t, err)

	refresh, err := SignRefreshToken(7, "user", svc.RefreshSecret)
	require.NoError(t, err)
	storeRefresh(svc, refresh, 7, "user")

	rec, inner, err := middlewareProbe(t, svc,
		&http.Cookie{Name: "accessToken", Value: expired},
		&http.Cookie{Name: "refreshToken", Value: refresh})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint(7), inner.Get("userID"))

	// fresh cookies were issued and the request cookie was swapped
	var newAccess string
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "accessToken" {
			newAccess = ck.Value
		}
	}
	require.NotEmpty(t, newAccess)
	require.NotEqual(t, expired, newAccess)

	got, err := inner.Cookie("accessToken")
	require.NoError(t, err)
	require.Equal(t, newAccess, got.Value)
}

func TestAutoRefreshRejectsMissingTokens(t *testing.T) {
	svc := newService(t)

	_, _, err := middlewareProbe(t, svc)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAdminMiddleware(t *testing.T) {
	svc := newService(t)

	adminAccess, err := SignAccessToken(1, "admin", svc.JWTSecret)
	require.NoError(t, err)
	userAccess, err := SignAccessToken(2, "user", svc.JWTSecret)
	require.NoError(t, err)

	probe := func(token string) error {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/products", nil)
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: token})
		c := e.NewContext(req, httptest.NewRecorder())
		return svc.AutoRefreshMiddlewareAdmin(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})(c)
	}

	require.NoError(t, probe(adminAccess))

	err = probe(userAccess)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, he.Code)
}
