package razorpay

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"
)

// RazorpayService talks to the Razorpay REST API for hosted payment links
// and seller payouts, and validates webhook callback signatures.
type RazorpayService struct {
	Client        *http.Client
	KeyID         string
	KeySecret     string
	WebhookSecret string
	PayoutAccount string // platform business account number for payouts
	BaseURL       string
	CallbackURL   string
}

func NewRazorpayService() *RazorpayService {
	baseURL := os.Getenv("RAZORPAY_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.razorpay.com/v1"
	}

	return &RazorpayService{
		Client:        &http.Client{Timeout: 15 * time.Second},
		KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		WebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		PayoutAccount: os.Getenv("RAZORPAY_PAYOUT_ACCOUNT"),
		BaseURL:       baseURL,
		CallbackURL:   os.Getenv("PAYMENT_CALLBACK_URL"),
	}
}

// minorUnits converts a major-unit amount to the gateway's integer minor
// units. Rounding, not truncation: 19.99 is 1999 cents even when the float
// representation sits just below it.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

type paymentLinkRequest struct {
	Amount      int64  `json:"amount"` // minor units
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Customer    struct {
		Email string `json:"email"`
	} `json:"customer"`
	Notify struct {
		Email bool `json:"email"`
		SMS   bool `json:"sms"`
	} `json:"notify"`
	CallbackURL    string `json:"callback_url,omitempty"`
	CallbackMethod string `json:"callback_method,omitempty"`
}

type PaymentLink struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Status   string `json:"status"`
}

// CreatePaymentLink creates a hosted checkout link for the given amount.
// Amount is in major units and converted to minor units on the wire.
func (s *RazorpayService) CreatePaymentLink(amount float64, currency, buyerEmail string) (*PaymentLink, error) {
	reqBody := paymentLinkRequest{
		Amount:         minorUnits(amount),
		Currency:       currency,
		Description:    "Order Payment",
		CallbackURL:    s.CallbackURL,
		CallbackMethod: "get",
	}
	reqBody.Customer.Email = buyerEmail
	reqBody.Notify.Email = true
	reqBody.Notify.SMS = true

	var link PaymentLink
	if err := s.post("/payment_links", reqBody, &link); err != nil {
		return nil, fmt.Errorf("failed to create payment link: %w", err)
	}
	if link.ID == "" {
		return nil, fmt.Errorf("payment link response missing id")
	}
	return &link, nil
}

type payoutRequest struct {
	AccountNumber     string `json:"account_number"`
	FundAccountID     string `json:"fund_account_id"`
	Amount            int64  `json:"amount"` // minor units
	Currency          string `json:"currency"`
	Mode              string `json:"mode"`
	Purpose           string `json:"purpose"`
	QueueIfLowBalance bool   `json:"queue_if_low_balance"`
}

type Payout struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TransferToSeller executes a payout to the seller's fund account.
func (s *RazorpayService) TransferToSeller(fundAccountID string, amount float64, currency string) (*Payout, error) {
	reqBody := payoutRequest{
		AccountNumber:     s.PayoutAccount,
		FundAccountID:     fundAccountID,
		Amount:            minorUnits(amount),
		Currency:          currency,
		Mode:              "NEFT",
		Purpose:           "payout",
		QueueIfLowBalance: true,
	}

	var payout Payout
	if err := s.post("/payouts", reqBody, &payout); err != nil {
		return nil, fmt.Errorf("failed to transfer payment to seller: %w", err)
	}
	return &payout, nil
}

func (s *RazorpayService) post(path string, body interface{}, out interface{}) error {
	jsonBody, _ := json.Marshal(body)

	req, err := http.NewRequest("POST", s.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.KeyID, s.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("razorpay error (%d): %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to parse response: %v", err)
	}
	return nil
}

// ValidateWebhookSignature checks the HMAC-SHA256 signature Razorpay sends
// over the raw webhook body. Fails closed on mismatch.
func (s *RazorpayService) ValidateWebhookSignature(incomingSig string, rawBody []byte) bool {
	if incomingSig == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(s.WebhookSecret))
	h.Write(rawBody)
	calculated := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(calculated), []byte(incomingSig))
}
