package config

import (
	"os"
	"strconv"
)

type Config struct {
	AppPort     string
	DBDSN       string
	JWTSecret   string
	AccessMin   int // access token lifetime (minutes)
	RefreshMin  int // refresh token lifetime (minutes)
	FrontendURL string
	AdminEmail  string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayPayoutAccount string

	CloudinaryCloudName    string
	CloudinaryUploadPreset string

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string

	GoogleClientID string
	GoogleSecret   string
	GoogleRedirect string
}

func Load() Config {
	accessMin, _ := strconv.Atoi(get("JWT_ACCESS_MIN", "15"))
	refreshMin, _ := strconv.Atoi(get("JWT_REFRESH_MIN", "10080"))
	return Config{
		AppPort:     get("APP_PORT", "8800"),
		DBDSN:       must("DB_DSN"),
		JWTSecret:   must("JWT_SECRET"),
		AccessMin:   accessMin,
		RefreshMin:  refreshMin,
		FrontendURL: get("FRONTEND_ORIGIN", "http://localhost:3000"),
		AdminEmail:  get("ADMIN_EMAIL", ""),

		RazorpayKeyID:         get("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret:     get("RAZORPAY_KEY_SECRET", ""),
		RazorpayWebhookSecret: get("RAZORPAY_WEBHOOK_SECRET", ""),
		RazorpayPayoutAccount: get("RAZORPAY_PAYOUT_ACCOUNT", ""),

		CloudinaryCloudName:    get("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryUploadPreset: get("CLOUDINARY_UPLOAD_PRESET", ""),

		SMTPHost: get("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort: get("SMTP_PORT", "587"),
		SMTPUser: get("EMAIL_USER", ""),
		SMTPPass: get("EMAIL_PASS", ""),

		GoogleClientID: get("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:   get("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirect: get("GOOGLE_REDIRECT_URL", ""),
	}
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}
