package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oldbyju/platform_backend/internal/middleware"
	"github.com/oldbyju/platform_backend/internal/models"
	"github.com/oldbyju/platform_backend/internal/realtime"
	"github.com/oldbyju/platform_backend/internal/services/rating"
	"github.com/oldbyju/platform_backend/internal/services/razorpay"
	"github.com/oldbyju/platform_backend/internal/services/wallet"
	"github.com/oldbyju/platform_backend/internal/utils"
)

const (
	testJWTSecret     = "integration-test-secret"
	testWebhookSecret = "whsec_integration"
)

// testEnv wires the HTTP surface against a real database (TEST_DB_DSN) and a
// fake payment gateway. The gateway's failure mode is switchable per test.
type testEnv struct {
	app *fiber.App
	db  *gorm.DB
	hub *realtime.Hub

	mu          sync.Mutex
	gatewayFail bool
}

func (e *testEnv) setGatewayFail(fail bool) {
	e.mu.Lock()
	e.gatewayFail = fail
	e.mu.Unlock()
}

func (e *testEnv) gatewayShouldFail() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gatewayFail
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set, skipping database-backed tests")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Job{},
		&models.JobApplication{},
		&models.Order{},
		&models.Review{},
		&models.Conversation{},
		&models.Message{},
	))

	require.NoError(t, db.Exec(
		"TRUNCATE TABLE reviews, messages, conversations, orders, job_applications, jobs, users CASCADE",
	).Error)

	env := &testEnv{db: db}

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if env.gatewayShouldFail() {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"description":"gateway unavailable"}}`))
			return
		}
		switch r.URL.Path {
		case "/payment_links":
			fmt.Fprintf(w, `{"id":"plink_%s","short_url":"https://rzp.io/l/test","status":"created"}`, uuid.NewString()[:8])
		case "/payouts":
			w.Write([]byte(`{"id":"pout_test","status":"queued"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(gateway.Close)

	rz := &razorpay.RazorpayService{
		Client:        &http.Client{Timeout: 5 * time.Second},
		KeyID:         "rzp_test_key",
		KeySecret:     "rzp_test_secret",
		WebhookSecret: testWebhookSecret,
		PayoutAccount: "2323230099089860",
		BaseURL:       gateway.URL,
	}

	hub := realtime.NewHub()
	go hub.Run()
	env.hub = hub

	// Notification publishes go through a client with nothing listening; the
	// publish result is advisory, so that is fine here.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})

	walletSvc := wallet.NewWalletService(db)
	ratingSvc := rating.NewRatingService(db)

	orderH := NewOrderHandler(db, hub, rz, walletSvc)
	reviewH := NewReviewHandler(db, ratingSvc)
	chatH := NewChatHandler(db, hub, rdb, testJWTSecret)
	userH := &UserHandler{DB: db, Razorpay: rz, Wallet: walletSvc}

	app := fiber.New()
	api := app.Group("/api")

	api.Get("/reviews/:userId", reviewH.GetReviewsForUser)
	api.Post("/webhook/razorpay", orderH.HandleWebhook)

	protected := api.Group("/",
		middleware.JWTFromCookie(testJWTSecret),
		middleware.AttachJWTLocals(),
	)

	protected.Get("/users/me/stats", userH.GetStats)
	protected.Post("/users/payout", middleware.RequireRoles("teacher"), userH.TransferPayout)

	protected.Post("/orders", middleware.RequireRoles("student"), orderH.CreateOrder)
	protected.Get("/orders", orderH.GetOrders)
	protected.Put("/orders/status", orderH.UpdateOrderStatus)
	protected.Post("/orders/complete", orderH.CompleteOrder)

	protected.Post("/reviews", reviewH.SubmitReview)

	chat := protected.Group("/chat")
	chat.Post("/conversations", chatH.CreateOrGetConversation)
	chat.Get("/conversations", chatH.GetUserConversations)
	chat.Get("/conversations/:id/messages", chatH.GetMessages)
	chat.Post("/messages", chatH.SendMessage)

	env.app = app
	return env
}

func (e *testEnv) createUser(t *testing.T, role models.Role) *models.User {
	t.Helper()
	suffix := uuid.NewString()[:8]
	user := &models.User{
		Username:   "user_" + suffix,
		Email:      "user_" + suffix + "@example.com",
		Password:   "x",
		Role:       role,
		IsVerified: true,
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) createJob(t *testing.T, buyerID uuid.UUID, status models.JobStatus) *models.Job {
	t.Helper()
	job := &models.Job{
		BuyerID:     buyerID,
		Title:       "Calculus tutoring",
		Description: "Weekly derivative practice sessions",
		Budget:      100,
		Category:    "math",
		Status:      status,
	}
	require.NoError(t, e.db.Create(job).Error)
	return job
}

func tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := utils.SignAccessToken(testJWTSecret, user.ID.String(), string(user.Role), 15)
	require.NoError(t, err)
	return token
}

// request performs an authenticated JSON request and decodes the envelope.
func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.AccessCookie, Value: token})
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func (e *testEnv) postWebhook(t *testing.T, rawBody []byte, secret string) (int, map[string]interface{}) {
	t.Helper()

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest("POST", "/api/webhook/razorpay", bytes.NewReader(rawBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Razorpay-Signature", sig)

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func paidWebhookBody(paymentLinkID, paymentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"payment_link.paid","payload":{"payment_link":{"entity":{"id":"%s"}},"payment":{"entity":{"id":"%s"}}}}`,
		paymentLinkID, paymentID,
	))
}

func TestOrderLifecycle(t *testing.T) {
	env := setupEnv(t)

	buyer := env.createUser(t, models.RoleStudent)
	seller := env.createUser(t, models.RoleTeacher)
	job := env.createJob(t, buyer.ID, models.JobStatusOpen)

	buyerToken := tokenFor(t, buyer)

	status, body := env.request(t, "POST", "/api/orders", buyerToken, fiber.Map{
		"job_id":    job.ID.String(),
		"seller_id": seller.ID.String(),
		"price":     100.0,
		"currency":  "USD",
	})
	require.Equal(t, 201, status, "create order: %v", body)
	assert.Equal(t, "https://rzp.io/l/test", body["payment_link"])

	var order models.Order
	require.NoError(t, env.db.First(&order, "job_id = ?", job.ID).Error)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, models.OrderStatusPending, order.OrderStatus)
	assert.NotEmpty(t, order.PaymentLinkID)

	var reservedJob models.Job
	require.NoError(t, env.db.First(&reservedJob, "id = ?", job.ID).Error)
	assert.Equal(t, models.JobStatusHired, reservedJob.Status)

	// Payment confirmation arrives from the gateway.
	status, body = env.postWebhook(t, paidWebhookBody(order.PaymentLinkID, "pay_abc123"), testWebhookSecret)
	require.Equal(t, 200, status, "webhook: %v", body)

	require.NoError(t, env.db.First(&order, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, "pay_abc123", order.PaymentID)

	// Buyer reviews the seller before completion.
	status, body = env.request(t, "POST", "/api/reviews", buyerToken, fiber.Map{
		"order_id": order.ID.String(),
		"rating":   5,
		"comment":  "Great sessions",
	})
	require.Equal(t, 201, status, "review: %v", body)

	var ratedSeller models.User
	require.NoError(t, env.db.First(&ratedSeller, "id = ?", seller.ID).Error)
	assert.InDelta(t, 5.0, ratedSeller.AverageRating, 0.0001)

	status, body = env.request(t, "POST", "/api/orders/complete", buyerToken, fiber.Map{
		"order_id": order.ID.String(),
	})
	require.Equal(t, 200, status, "complete: %v", body)
	assert.InDelta(t, 80.0, body["seller_earnings"], 0.0001)

	var paidSeller models.User
	require.NoError(t, env.db.First(&paidSeller, "id = ?", seller.ID).Error)
	assert.InDelta(t, 80.0, paidSeller.EarnedBalance, 0.0001)
	assert.InDelta(t, 80.0, paidSeller.PaymentsReceived, 0.0001)
	assert.Equal(t, 1, paidSeller.OrdersCompleted)

	// Completing twice must not credit twice.
	status, _ = env.request(t, "POST", "/api/orders/complete", buyerToken, fiber.Map{
		"order_id": order.ID.String(),
	})
	assert.Equal(t, 400, status)

	require.NoError(t, env.db.First(&paidSeller, "id = ?", seller.ID).Error)
	assert.InDelta(t, 80.0, paidSeller.EarnedBalance, 0.0001)
}

func TestCreateOrderValidation(t *testing.T) {
	env := setupEnv(t)

	buyer := env.createUser(t, models.RoleStudent)
	otherBuyer := env.createUser(t, models.RoleStudent)
	seller := env.createUser(t, models.RoleTeacher)
	job := env.createJob(t, buyer.ID, models.JobStatusOpen)

	// Only the job owner may order against it.
	status, _ := env.request(t, "POST", "/api/orders", tokenFor(t, otherBuyer), fiber.Map{
		"job_id":    job.ID.String(),
		"seller_id": seller.ID.String(),
		"price":     100.0,
		"currency":  "USD",
	})
	assert.Equal(t, 403, status)

	status, body := env.request(t, "POST", "/api/orders", tokenFor(t, buyer), fiber.Map{
		"job_id":    job.ID.String(),
		"seller_id": seller.ID.String(),
		"price":     100.0,
		"currency":  "INR",
	})
	assert.Equal(t, 400, status)
	assert.Equal(t, "Invalid currency", body["message"])

	// A job that is no longer open cannot be ordered.
	require.NoError(t, env.db.Model(&models.Job{}).
		Where("id = ?", job.ID).
		Update("status", models.JobStatusHired).Error)

	status, body = env.request(t, "POST", "/api/orders", tokenFor(t, buyer), fiber.Map{
		"job_id":    job.ID.String(),
		"seller_id": seller.ID.String(),
		"price":     100.0,
		"currency":  "USD",
	})
	assert.Equal(t, 400, status)
	assert.Equal(t, "Job is not available", body["message"])
}

func TestCreateOrderReleasesJobWhenGatewayFails(t *testing.T) {
	env := setupEnv(t)

	buyer := env.createUser(t, models.RoleStudent)
	seller := env.createUser(t, models.RoleTeacher)
	job := env.createJob(t, buyer.ID, models.JobStatusOpen)

	env.setGatewayFail(true)
	status, _ := env.request(t, "POST", "/api/orders", tokenFor(t, buyer), fiber.Map{
		"job_id":    job.ID.String(),
		"seller_id": seller.ID.String(),
		"price":     100.0,
		"currency":  "USD",
	})
	assert.Equal(t, 502, status)

	// The reservation is rolled back, the job is orderable again.
	var reread models.Job
	require.NoError(t, env.db.First(&reread, "id = ?", job.ID).Error)
	assert.Equal(t, models.JobStatusOpen, reread.Status)

	var count int64
	env.db.Model(&models.Order{}).Where("job_id = ?", job.ID).Count(&count)
	assert.Zero(t, count)
}

func TestCompleteOrderGates(t *testing.T) {
	env := setupEnv(t)

	buyer := env.createUser(t, models.RoleStudent)
	seller := env.createUser(t, models.RoleTeacher)
	job := env.createJob(t, buyer.ID, models.JobStatusHired)

	order := models.Order{
		JobID:         job.ID,
		SellerID:      seller.ID,
		BuyerID:       buyer.ID,
		Price:         50,
		Currency:      "USD",
		PaymentLinkID: "plink_gates",
		OrderStatus:   models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
	require.NoError(t, env.db.Create(&order).Error)

	buyerToken := tokenFor(t, buyer)

	// Unpaid orders cannot complete.
	status, body := env.request(t, "POST", "/api/orders/complete", buyerToken, fiber.Map{
		"order_id": order.ID.String(),
	})
	assert.Equal(t, 400, status)
	assert.Contains(t, body["message"], "Payment is pending")

	require.NoError(t, env.db.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("payment_status", models.PaymentStatusPaid).Error)

	// Paid but no buyer review yet.
	status, body = env.request(t, "POST", "/api/orders/complete", buyerToken, fiber.Map{
		"order_id": order.ID.String(),
	})
	assert.Equal(t, 400, status)
	assert.Contains(t, body["message"], "review")

	// A review from the seller does not satisfy the gate.
	status, _ = env.request(t, "POST", "/api/reviews", tokenFor(t, seller), fiber.Map{
		"order_id": order.ID.String(),
		"rating":   4,
		"comment":  "Responsive buyer",
	})
	require.Equal(t, 201, status)

	status, _ = env.request(t, "POST", "/api/orders/complete", buyerToken, fiber.Map{
		"order_id": order.ID.String(),
	})
	assert.Equal(t, 400, status)

	// An outsider cannot complete someone else's order.
	outsider := env.createUser(t, models.RoleStudent)
	status, _ = env.request(t, "POST", "/api/orders/complete", tokenFor(t, outsider), fiber.Map{
		"order_id": order.ID.String(),
	})
	assert.Equal(t, 403, status)

	var untouched models.User
	require.NoError(t, env.db.First(&untouched, "id = ?", seller.ID).Error)
	assert.Zero(t, untouched.EarnedBalance)
}

func TestWebhookRejectsAndIgnores(t *testing.T) {
	env := setupEnv(t)

	buyer := env.createUser(t, models.RoleStudent)
	seller := env.createUser(t, models.RoleTeacher)
	job := env.createJob(t, buyer.ID, models.JobStatusHired)

	order := models.Order{
		JobID:         job.ID,
		SellerID:      seller.ID,
		BuyerID:       buyer.ID,
		Price:         50,
		Currency:      "USD",
		PaymentLinkID: "plink_hook",
		OrderStatus:   models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
	require.NoError(t, env.db.Create(&order).Error)

	// Wrong signing secret: rejected, no state change.
	status, _ := env.postWebhook(t, paidWebhookBody("plink_hook", "pay_evil"), "wrong_secret")
	assert.Equal(t, 400, status)

	var reread models.Order
	require.NoError(t, env.db.First(&reread, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentStatusPending, reread.PaymentStatus)

	// Properly signed but irrelevant event: acknowledged and ignored.
	status, body := env.postWebhook(t,
		[]byte(`{"event":"payment_link.cancelled","payload":{"payment_link":{"entity":{"id":"plink_hook"}}}}`),
		testWebhookSecret)
	assert.Equal(t, 200, status)
	assert.Equal(t, "Event ignored", body["message"])

	require.NoError(t, env.db.First(&reread, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentStatusPending, reread.PaymentStatus)

	// Unknown payment link.
	status, _ = env.postWebhook(t, paidWebhookBody("plink_unknown", "pay_x"), testWebhookSecret)
	assert.Equal(t, 404, status)

	// Replays land on the same values.
	status, _ = env.postWebhook(t, paidWebhookBody("plink_hook", "pay_real"), testWebhookSecret)
	assert.Equal(t, 200, status)
	status, _ = env.postWebhook(t, paidWebhookBody("plink_hook", "pay_real"), testWebhookSecret)
	assert.Equal(t, 200, status)

	require.NoError(t, env.db.First(&reread, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentStatusPaid, reread.PaymentStatus)
	assert.Equal(t, "pay_real", reread.PaymentID)
}

func TestUpdateOrderStatusTerminalFrozen(t *testing.T) {
	env := setupEnv(t)

	buyer := env.createUser(t, models.RoleStudent)
	seller := env.createUser(t, models.RoleTeacher)
	job := env.createJob(t, buyer.ID, models.JobStatusHired)

	order := models.Order{
		JobID:         job.ID,
		SellerID:      seller.ID,
		BuyerID:       buyer.ID,
		Price:         50,
		Currency:      "USD",
		PaymentLinkID: "plink_status",
		OrderStatus:   models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPaid,
	}
	require.NoError(t, env.db.Create(&order).Error)

	sellerToken := tokenFor(t, seller)

	status, _ := env.request(t, "PUT", "/api/orders/status", sellerToken, fiber.Map{
		"order_id": order.ID.String(),
		"status":   "in_progress",
	})
	assert.Equal(t, 200, status)

	status, _ = env.request(t, "PUT", "/api/orders/status", sellerToken, fiber.Map{
		"order_id": order.ID.String(),
		"status":   "archived",
	})
	assert.Equal(t, 400, status)

	require.NoError(t, env.db.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("order_status", models.OrderStatusCancelled).Error)

	// Terminal states are frozen.
	status, _ = env.request(t, "PUT", "/api/orders/status", sellerToken, fiber.Map{
		"order_id": order.ID.String(),
		"status":   "in_progress",
	})
	assert.Equal(t, 409, status)

	var reread models.Order
	require.NoError(t, env.db.First(&reread, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusCancelled, reread.OrderStatus)
}

func TestReviewsOncePerSideAndAverage(t *testing.T) {
	env := setupEnv(t)

	buyer := env.createUser(t, models.RoleStudent)
	seller := env.createUser(t, models.RoleTeacher)

	makeOrder := func(link string) models.Order {
		job := env.createJob(t, buyer.ID, models.JobStatusHired)
		order := models.Order{
			JobID:         job.ID,
			SellerID:      seller.ID,
			BuyerID:       buyer.ID,
			Price:         50,
			Currency:      "USD",
			PaymentLinkID: link,
			OrderStatus:   models.OrderStatusPending,
			PaymentStatus: models.PaymentStatusPaid,
		}
		require.NoError(t, env.db.Create(&order).Error)
		return order
	}

	first := makeOrder("plink_rev1")
	second := makeOrder("plink_rev2")

	buyerToken := tokenFor(t, buyer)

	status, _ := env.request(t, "POST", "/api/reviews", buyerToken, fiber.Map{
		"order_id": first.ID.String(),
		"rating":   5,
		"comment":  "Excellent",
	})
	require.Equal(t, 201, status)

	// Same reviewer, same order: rejected and not double-counted.
	status, _ = env.request(t, "POST", "/api/reviews", buyerToken, fiber.Map{
		"order_id": first.ID.String(),
		"rating":   1,
		"comment":  "Changed my mind",
	})
	assert.Equal(t, 409, status)

	var ratedSeller models.User
	require.NoError(t, env.db.First(&ratedSeller, "id = ?", seller.ID).Error)
	assert.InDelta(t, 5.0, ratedSeller.AverageRating, 0.0001)

	status, _ = env.request(t, "POST", "/api/reviews", buyerToken, fiber.Map{
		"order_id": second.ID.String(),
		"rating":   3,
		"comment":  "Okay this time",
	})
	require.Equal(t, 201, status)

	// Stored average is the exact mean of all received ratings.
	require.NoError(t, env.db.First(&ratedSeller, "id = ?", seller.ID).Error)
	assert.InDelta(t, 4.0, ratedSeller.AverageRating, 0.0001)

	// The seller reviewing back rates the buyer, not themselves.
	status, _ = env.request(t, "POST", "/api/reviews", tokenFor(t, seller), fiber.Map{
		"order_id": first.ID.String(),
		"rating":   4,
		"comment":  "Clear requirements",
	})
	require.Equal(t, 201, status)

	var ratedBuyer models.User
	require.NoError(t, env.db.First(&ratedBuyer, "id = ?", buyer.ID).Error)
	assert.InDelta(t, 4.0, ratedBuyer.AverageRating, 0.0001)

	// Outsiders cannot review.
	outsider := env.createUser(t, models.RoleStudent)
	status, _ = env.request(t, "POST", "/api/reviews", tokenFor(t, outsider), fiber.Map{
		"order_id": first.ID.String(),
		"rating":   1,
		"comment":  "Not my order",
	})
	assert.Equal(t, 403, status)

	status, body := env.request(t, "GET", "/api/reviews/"+seller.ID.String(), "", nil)
	require.Equal(t, 200, status)
	assert.Len(t, body["data"], 2)
}

func TestConversationsAndMessages(t *testing.T) {
	env := setupEnv(t)

	alice := env.createUser(t, models.RoleStudent)
	bob := env.createUser(t, models.RoleTeacher)

	aliceToken := tokenFor(t, alice)
	bobToken := tokenFor(t, bob)

	status, body := env.request(t, "POST", "/api/chat/conversations", aliceToken, fiber.Map{
		"receiver_id": bob.ID.String(),
	})
	require.Equal(t, 200, status)
	assert.Equal(t, true, body["created"])
	convID := body["data"].(map[string]interface{})["id"].(string)

	// Opening from the other side lands on the same conversation.
	status, body = env.request(t, "POST", "/api/chat/conversations", bobToken, fiber.Map{
		"receiver_id": alice.ID.String(),
	})
	require.Equal(t, 200, status)
	assert.Equal(t, false, body["created"])
	assert.Equal(t, convID, body["data"].(map[string]interface{})["id"])

	status, _ = env.request(t, "POST", "/api/chat/messages", aliceToken, fiber.Map{
		"conversation_id": convID,
		"receiver_id":     bob.ID.String(),
		"message":         "Hi, are you free this week?",
	})
	require.Equal(t, 201, status)

	status, _ = env.request(t, "POST", "/api/chat/messages", bobToken, fiber.Map{
		"conversation_id": convID,
		"receiver_id":     alice.ID.String(),
		"message":         "Yes, Thursday works.",
	})
	require.Equal(t, 201, status)

	status, body = env.request(t, "GET", "/api/chat/conversations/"+convID+"/messages", aliceToken, nil)
	require.Equal(t, 200, status)
	messages := body["data"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "Hi, are you free this week?", messages[0].(map[string]interface{})["message"])
	assert.Equal(t, "Yes, Thursday works.", messages[1].(map[string]interface{})["message"])

	var conv models.Conversation
	require.NoError(t, env.db.First(&conv, "id = ?", convID).Error)
	assert.Equal(t, "Yes, Thursday works.", conv.LastMessage)

	// Non-participants can neither read nor write.
	eve := env.createUser(t, models.RoleStudent)
	eveToken := tokenFor(t, eve)

	// A participant naming a third user as receiver cannot redirect the
	// message: the server resolves the receiver to the other member.
	status, _ = env.request(t, "POST", "/api/chat/messages", aliceToken, fiber.Map{
		"conversation_id": convID,
		"receiver_id":     eve.ID.String(),
		"message":         "Routing check",
	})
	require.Equal(t, 201, status)

	var redirected models.Message
	require.NoError(t, env.db.
		Where("conversation_id = ? AND message = ?", convID, "Routing check").
		First(&redirected).Error)
	assert.Equal(t, bob.ID, redirected.ReceiverID)

	status, _ = env.request(t, "GET", "/api/chat/conversations/"+convID+"/messages", eveToken, nil)
	assert.Equal(t, 403, status)

	status, _ = env.request(t, "POST", "/api/chat/messages", eveToken, fiber.Map{
		"conversation_id": convID,
		"receiver_id":     bob.ID.String(),
		"message":         "Let me in",
	})
	assert.Equal(t, 403, status)

	status, body = env.request(t, "GET", "/api/chat/conversations", eveToken, nil)
	require.Equal(t, 200, status)
	assert.Empty(t, body["data"])
}

func TestTransferPayout(t *testing.T) {
	env := setupEnv(t)

	seller := env.createUser(t, models.RoleTeacher)
	require.NoError(t, env.db.Model(&models.User{}).
		Where("id = ?", seller.ID).
		Update("earned_balance", 100.0).Error)

	sellerToken := tokenFor(t, seller)

	status, body := env.request(t, "POST", "/api/users/payout", sellerToken, fiber.Map{
		"amount":       80.0,
		"currency":     "USD",
		"recipient_id": "fa_test",
	})
	require.Equal(t, 200, status, "payout: %v", body)
	assert.InDelta(t, 20.0, body["remaining_balance"], 0.0001)

	// The remaining balance cannot cover a second withdrawal of that size.
	status, body = env.request(t, "POST", "/api/users/payout", sellerToken, fiber.Map{
		"amount":       80.0,
		"currency":     "USD",
		"recipient_id": "fa_test",
	})
	assert.Equal(t, 400, status)
	assert.Equal(t, "Insufficient balance for payout", body["message"])

	// Gateway failure refunds the debit.
	env.setGatewayFail(true)
	status, _ = env.request(t, "POST", "/api/users/payout", sellerToken, fiber.Map{
		"amount":       20.0,
		"currency":     "USD",
		"recipient_id": "fa_test",
	})
	assert.Equal(t, 502, status)

	var reread models.User
	require.NoError(t, env.db.First(&reread, "id = ?", seller.ID).Error)
	assert.InDelta(t, 20.0, reread.EarnedBalance, 0.0001)

	// Buyers have no payout surface.
	buyer := env.createUser(t, models.RoleStudent)
	status, _ = env.request(t, "POST", "/api/users/payout", tokenFor(t, buyer), fiber.Map{
		"amount":       10.0,
		"recipient_id": "fa_test",
	})
	assert.Equal(t, 403, status)
}
