package handlers

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/oldbyju/platform_backend/internal/middleware"
	"github.com/oldbyju/platform_backend/internal/models"
	"github.com/oldbyju/platform_backend/internal/services/mailer"
	"github.com/oldbyju/platform_backend/internal/utils"
)

const otpTTL = 5 * time.Minute

type AuthHandler struct {
	DB         *gorm.DB
	RDB        *redis.Client
	Mailer     *mailer.Mailer
	JWTSecret  string
	AccessMin  int
	RefreshMin int
}

type FieldErrors map[string][]string

func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func validationFail(c *fiber.Ctx, errs FieldErrors) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Validation error",
		"errors":  errs,
	})
}

func otpKey(email string) string     { return "otp:" + email }
func refreshKey(token string) string { return "refresh:" + token }

// generateAndSendOTP creates a 6-digit code, stores it in Redis with a TTL
// and mails it. The mail is the deliverable here, so a send failure fails
// the whole operation.
func (h *AuthHandler) generateAndSendOTP(ctx context.Context, email string) error {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return err
	}
	otp := fmt.Sprintf("%d", n.Int64()+100000)

	if err := h.RDB.Set(ctx, otpKey(email), otp, otpTTL).Err(); err != nil {
		return err
	}

	body := fmt.Sprintf("Your OTP for verification is: %s. This OTP is valid for 5 minutes.", otp)
	return h.Mailer.Send(email, "Your OTP for Verification", body)
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // student / teacher
}

// Register creates an unverified account and mails an OTP. Registering an
// email that exists but was never verified refreshes the account and
// re-sends the OTP.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, 400, "invalid body")
	}

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)
	role := models.Role(strings.ToLower(strings.TrimSpace(req.Role)))

	errs := FieldErrors{}
	if username == "" {
		errs.Add("username", "Username is required")
	}
	if email == "" {
		errs.Add("email", "Email is required")
	} else if !strings.Contains(email, "@") {
		errs.Add("email", "Invalid email format")
	}
	if password == "" {
		errs.Add("password", "Password is required")
	} else if len(password) < 6 {
		errs.Add("password", "Password must be at least 6 characters")
	}
	if role != models.RoleStudent && role != models.RoleTeacher {
		errs.Add("role", "Role must be student or teacher")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return fail(c, 500, "Failed to process password")
	}

	var existing models.User
	err = h.DB.Where("email = ?", email).First(&existing).Error
	if err == nil {
		if existing.IsVerified {
			errs := FieldErrors{}
			errs.Add("email", "Email already registered")
			return validationFail(c, errs)
		}
		// Unverified re-registration: refresh credentials, resend OTP.
		if err := h.DB.Model(&existing).Updates(map[string]interface{}{
			"username": username,
			"password": hashed,
			"role":     role,
		}).Error; err != nil {
			return fail(c, 500, "Failed to register")
		}
		if err := h.generateAndSendOTP(c.Context(), email); err != nil {
			log.Println("Error sending OTP email:", err)
			return fail(c, 502, "Failed to send OTP")
		}
		return c.JSON(fiber.Map{
			"success": true,
			"message": "User already registered but not verified. OTP re-sent",
		})
	} else if err != gorm.ErrRecordNotFound {
		return fail(c, 500, "Server error")
	}

	user := models.User{
		Username:   username,
		Email:      email,
		Password:   hashed,
		Role:       role,
		IsVerified: false,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return fail(c, 400, "Failed to register")
	}

	if err := h.generateAndSendOTP(c.Context(), email); err != nil {
		log.Println("Error sending OTP email:", err)
		return fail(c, 502, "Failed to send OTP")
	}

	return c.Status(201).JSON(fiber.Map{
		"success": true,
		"message": "Registered. Verify the OTP sent to your email.",
	})
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// VerifyOTP confirms the emailed code and marks the account verified.
// Expired codes are gone from Redis, so expiry rejects itself.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req VerifyOTPRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" || req.OTP == "" {
		return fail(c, 400, "Email and OTP are required")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	stored, err := h.RDB.Get(c.Context(), otpKey(email)).Result()
	if err == redis.Nil {
		return fail(c, 400, "OTP not found or expired")
	} else if err != nil {
		return fail(c, 500, "Server error")
	}

	if stored != strings.TrimSpace(req.OTP) {
		return fail(c, 400, "Invalid OTP")
	}

	if err := h.DB.Model(&models.User{}).
		Where("email = ?", email).
		Update("is_verified", true).Error; err != nil {
		return fail(c, 500, "Failed to verify user")
	}

	h.RDB.Del(c.Context(), otpKey(email))

	return c.JSON(fiber.Map{"success": true, "message": "OTP verified, registration confirmed"})
}

type RegenerateOTPRequest struct {
	Email string `json:"email"`
}

// RegenerateOTP re-issues a code for an email that already requested one.
func (h *AuthHandler) RegenerateOTP(c *fiber.Ctx) error {
	var req RegenerateOTPRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return fail(c, 400, "Email is required")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if err := h.RDB.Get(c.Context(), otpKey(email)).Err(); err == redis.Nil {
		return fail(c, 400, "No OTP generated yet")
	} else if err != nil {
		return fail(c, 500, "Server error")
	}

	if err := h.generateAndSendOTP(c.Context(), email); err != nil {
		log.Println("Error sending OTP email:", err)
		return fail(c, 502, "Failed to send OTP")
	}

	return c.JSON(fiber.Map{"success": true, "message": "OTP regenerated and sent via email"})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// issueTokens signs an access/refresh pair, records the refresh token in
// Redis and sets both cookies. Tokens are also returned so non-browser
// clients can carry them as bearer credentials.
func (h *AuthHandler) issueTokens(c *fiber.Ctx, user *models.User) (string, string, error) {
	access, err := utils.SignAccessToken(h.JWTSecret, user.ID.String(), string(user.Role), h.AccessMin)
	if err != nil {
		return "", "", err
	}
	refresh, err := utils.SignRefreshToken(h.JWTSecret, user.ID.String(), string(user.Role), h.RefreshMin)
	if err != nil {
		return "", "", err
	}

	refreshTTL := time.Duration(h.RefreshMin) * time.Minute
	if err := h.RDB.Set(c.Context(), refreshKey(refresh), user.ID.String(), refreshTTL).Err(); err != nil {
		return "", "", err
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.AccessCookie,
		Value:    access,
		Path:     "/",
		HTTPOnly: true,
		SameSite: "Lax",
		MaxAge:   h.AccessMin * 60,
	})
	c.Cookie(&fiber.Cookie{
		Name:     middleware.RefreshCookie,
		Value:    refresh,
		Path:     "/",
		HTTPOnly: true,
		SameSite: "Lax",
		MaxAge:   h.RefreshMin * 60,
	})

	return access, refresh, nil
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, 400, "Invalid body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)
	if email == "" || password == "" {
		return fail(c, 400, "Email and password are required")
	}

	var user models.User
	if err := h.DB.Where("email = ?", email).First(&user).Error; err != nil {
		return fail(c, 401, "Invalid email or password")
	}

	if !utils.CheckPassword(user.Password, password) {
		return fail(c, 401, "Invalid email or password")
	}

	if !user.IsVerified {
		return fail(c, 403, "Account not verified. Verify the OTP sent to your email.")
	}

	access, refresh, err := h.issueTokens(c, &user)
	if err != nil {
		log.Println("Error issuing tokens:", err)
		return fail(c, 500, "Failed to create token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Login successful",
		"data": fiber.Map{
			"access_token":  access,
			"refresh_token": refresh,
			"user": fiber.Map{
				"id":       user.ID,
				"username": user.Username,
				"email":    user.Email,
				"role":     user.Role,
			},
		},
	})
}

// Refresh rotates the refresh token: the presented token must be a valid
// refresh JWT still present in Redis; it is revoked and a fresh pair issued.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	tokenStr := c.Cookies(middleware.RefreshCookie)
	if tokenStr == "" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = c.BodyParser(&body)
		tokenStr = body.RefreshToken
	}
	if tokenStr == "" {
		return fail(c, 401, "Refresh token is required")
	}

	claims, err := utils.ParseToken(h.JWTSecret, tokenStr)
	if err != nil || claims.Kind != "refresh" {
		return fail(c, 401, "Invalid refresh token")
	}

	if err := h.RDB.Get(c.Context(), refreshKey(tokenStr)).Err(); err == redis.Nil {
		return fail(c, 401, "Refresh token revoked or expired")
	} else if err != nil {
		return fail(c, 500, "Server error")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		return fail(c, 401, "User not found")
	}

	h.RDB.Del(c.Context(), refreshKey(tokenStr))

	access, refresh, err := h.issueTokens(c, &user)
	if err != nil {
		log.Println("Error issuing tokens:", err)
		return fail(c, 500, "Failed to create token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"access_token":  access,
			"refresh_token": refresh,
		},
	})
}

// Logout revokes the refresh token and clears both cookies.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if tokenStr := c.Cookies(middleware.RefreshCookie); tokenStr != "" {
		h.RDB.Del(c.Context(), refreshKey(tokenStr))
	}

	c.ClearCookie(middleware.AccessCookie, middleware.RefreshCookie)

	return c.JSON(fiber.Map{"success": true, "message": "Logged out"})
}
