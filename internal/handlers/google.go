package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/nmarkou/eshop/internal/models"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleHandler runs the OAuth2 authorization-code flow and federates the
// resulting Google identity into a local user account.
type GoogleHandler struct {
	Auth        *AuthHandler
	OAuth       *oauth2.Config
	UserinfoURL string // overridable for tests
}

func (h *GoogleHandler) userinfoURL() string {
	if h.UserinfoURL != "" {
		return h.UserinfoURL
	}
	return googleUserinfoURL
}

func (h *GoogleHandler) Login(c echo.Context) error {
	state := uuid.NewString()
	c.SetCookie(CreateCookie("oauthState", state, "/", time.Now().Add(10*time.Minute)))

	url := h.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline)
	return c.JSON(http.StatusOK, echo.Map{"auth_url": url})
}

func (h *GoogleHandler) Callback(c echo.Context) error {
	stateCookie, err := c.Cookie("oauthState")
	if err != nil || stateCookie.Value == "" || c.QueryParam("state") != stateCookie.Value {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid state")
	}

	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing code")
	}

	ctx := c.Request().Context()
	token, err := h.OAuth.Exchange(ctx, code)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "code exchange failed")
	}

	resp, err := h.OAuth.Client(ctx, token).Get(h.userinfoURL())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "userinfo request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return echo.NewHTTPError(http.StatusBadGateway, "userinfo request failed")
	}

	var info struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "malformed userinfo response")
	}
	if info.ID == "" || info.Email == "" {
		return echo.NewHTTPError(http.StatusBadGateway, "incomplete userinfo response")
	}

	user, err := h.upsertUser(info.ID, info.Email, info.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if _, _, err := h.Auth.IssueTokens(c, user); err != nil {
		return err
	}

	h.Auth.publish(c, user.ID, map[string]any{
		"type":   "user_logged_in_google",
		"userID": user.ID,
		"email":  user.Email,
	})

	return c.JSON(http.StatusOK, user)
}

// upsertUser matches by google id first, then by email for accounts that
// registered with a password before federating.
func (h *GoogleHandler) upsertUser(googleID, email, name string) (*models.User, error) {
	db := h.Auth.DB

	var user models.User
	err := db.Where("google_id = ?", googleID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = db.Where("email = ?", email).First(&user).Error
	if err == nil {
		if err := db.Model(&user).Update("google_id", googleID).Error; err != nil {
			return nil, err
		}
		user.GoogleID = googleID
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		Email:    email,
		Name:     name,
		GoogleID: googleID,
		Role:     "user",
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
