package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(baseURL string) *RazorpayService {
	return &RazorpayService{
		Client:        &http.Client{Timeout: 5 * time.Second},
		KeyID:         "rzp_test_key",
		KeySecret:     "rzp_test_secret",
		WebhookSecret: "whsec_test",
		PayoutAccount: "2323230099089860",
		BaseURL:       baseURL,
		CallbackURL:   "https://app.example.com/payment/callback",
	}
}

func TestCreatePaymentLink(t *testing.T) {
	var captured map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/payment_links", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"plink_123","short_url":"https://rzp.io/l/abc","status":"created"}`))
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	link, err := svc.CreatePaymentLink(150.00, "USD", "buyer@example.com")
	require.NoError(t, err)

	assert.Equal(t, "plink_123", link.ID)
	assert.Equal(t, "https://rzp.io/l/abc", link.ShortURL)

	// amount goes out in minor units
	assert.Equal(t, float64(15000), captured["amount"])
	assert.Equal(t, "USD", captured["currency"])
	customer := captured["customer"].(map[string]interface{})
	assert.Equal(t, "buyer@example.com", customer["email"])
}

func TestCreatePaymentLinkRoundsFractionalAmounts(t *testing.T) {
	var captured map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Write([]byte(`{"id":"plink_frac","short_url":"https://rzp.io/l/frac","status":"created"}`))
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	_, err := svc.CreatePaymentLink(19.99, "USD", "buyer@example.com")
	require.NoError(t, err)

	// 19.99 sits below 1999 in binary, rounding must not drop the cent
	assert.Equal(t, float64(1999), captured["amount"])
}

func TestCreatePaymentLinkGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"description":"amount too low"}}`))
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	link, err := svc.CreatePaymentLink(0.01, "USD", "buyer@example.com")
	require.Error(t, err)
	assert.Nil(t, link)
	assert.Contains(t, err.Error(), "amount too low")
}

func TestCreatePaymentLinkMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"created"}`))
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	_, err := svc.CreatePaymentLink(10, "EUR", "buyer@example.com")
	require.Error(t, err)
}

func TestTransferToSeller(t *testing.T) {
	var captured map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payouts", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Write([]byte(`{"id":"pout_456","status":"queued"}`))
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	payout, err := svc.TransferToSeller("fa_789", 80.00, "USD")
	require.NoError(t, err)

	assert.Equal(t, "pout_456", payout.ID)
	assert.Equal(t, "queued", payout.Status)

	assert.Equal(t, "2323230099089860", captured["account_number"])
	assert.Equal(t, "fa_789", captured["fund_account_id"])
	assert.Equal(t, float64(8000), captured["amount"])
	assert.Equal(t, "NEFT", captured["mode"])
	assert.Equal(t, true, captured["queue_if_low_balance"])

	// Fractional earnings (a 49.99 order leaves the seller 39.992) must not
	// lose a cent between the debited balance and the transferred amount.
	_, err = svc.TransferToSeller("fa_789", 39.992, "USD")
	require.NoError(t, err)
	assert.Equal(t, float64(3999), captured["amount"])
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestValidateWebhookSignature(t *testing.T) {
	svc := newTestService("http://unused")
	body := []byte(`{"event":"payment_link.paid"}`)

	assert.True(t, svc.ValidateWebhookSignature(signBody("whsec_test", body), body))
	assert.False(t, svc.ValidateWebhookSignature(signBody("wrong_secret", body), body))
	assert.False(t, svc.ValidateWebhookSignature(signBody("whsec_test", body), []byte(`{"event":"tampered"}`)))
	assert.False(t, svc.ValidateWebhookSignature("", body))
	assert.False(t, svc.ValidateWebhookSignature("not-hex-garbage", body))
}
