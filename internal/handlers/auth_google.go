package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/oldbyju/platform_backend/internal/models"
	"github.com/oldbyju/platform_backend/internal/utils"
)

// GoogleOAuthHandler signs users in with Google. Accounts provisioned this
// way are verified immediately (Google already owns the mailbox) and default
// to the student role.
type GoogleOAuthHandler struct {
	Auth           *AuthHandler
	GoogleClientID string
	GoogleSecret   string
	GoogleRedirect string
	FrontendURL    string
}

func (h *GoogleOAuthHandler) oauthCfg() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.GoogleClientID,
		ClientSecret: h.GoogleSecret,
		RedirectURL:  h.GoogleRedirect,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}
}

func randomState(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func (h *GoogleOAuthHandler) GoogleStart(c *fiber.Ctx) error {
	st := randomState(32)

	c.Cookie(&fiber.Cookie{
		Name:     "oauth_state",
		Value:    st,
		Path:     "/",
		HTTPOnly: true,
		SameSite: "Lax",
		MaxAge:   10 * 60,
	})

	authURL := h.oauthCfg().AuthCodeURL(st, oauth2.AccessTypeOffline)
	return c.Redirect(authURL, http.StatusTemporaryRedirect)
}

type googleUserInfo struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (h *GoogleOAuthHandler) GoogleCallback(c *fiber.Ctx) error {
	state := c.Query("state")
	if state == "" || state != c.Cookies("oauth_state") {
		return fail(c, 400, "Invalid OAuth state")
	}

	code := c.Query("code")
	if code == "" {
		return fail(c, 400, "Missing OAuth code")
	}

	token, err := h.oauthCfg().Exchange(c.Context(), code)
	if err != nil {
		log.Println("Google token exchange failed:", err)
		return fail(c, 502, "Google sign-in failed")
	}

	resp, err := h.oauthCfg().Client(c.Context(), token).
		Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		log.Println("Google userinfo fetch failed:", err)
		return fail(c, 502, "Google sign-in failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil || info.Email == "" {
		return fail(c, 502, "Google sign-in failed")
	}

	email := strings.ToLower(info.Email)

	var user models.User
	err = h.Auth.DB.Where("email = ?", email).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		// random password placeholder; these accounts authenticate via Google
		pw, hashErr := utils.HashPassword(randomState(24))
		if hashErr != nil {
			return fail(c, 500, "Failed to provision account")
		}
		user = models.User{
			Username:       strings.ReplaceAll(strings.ToLower(info.Name), " ", "_") + "_" + randomState(4),
			Email:          email,
			Password:       pw,
			Role:           models.RoleStudent,
			IsVerified:     true,
			ProfilePicture: info.Picture,
		}
		if err := h.Auth.DB.Create(&user).Error; err != nil {
			log.Println("Error provisioning Google user:", err)
			return fail(c, 500, "Failed to provision account")
		}
	} else if err != nil {
		return fail(c, 500, "Server error")
	}

	if _, _, err := h.Auth.issueTokens(c, &user); err != nil {
		log.Println("Error issuing tokens:", err)
		return fail(c, 500, "Failed to create token")
	}

	return c.Redirect(h.FrontendURL, http.StatusTemporaryRedirect)
}
