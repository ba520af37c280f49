package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oldbyju/platform_backend/internal/models"
	"github.com/oldbyju/platform_backend/internal/realtime"
	"github.com/oldbyju/platform_backend/internal/services/razorpay"
	"github.com/oldbyju/platform_backend/internal/services/wallet"
)

type OrderHandler struct {
	DB       *gorm.DB
	Hub      *realtime.Hub
	Razorpay *razorpay.RazorpayService
	Wallet   *wallet.WalletService
}

func NewOrderHandler(db *gorm.DB, hub *realtime.Hub, rz *razorpay.RazorpayService, ws *wallet.WalletService) *OrderHandler {
	return &OrderHandler{DB: db, Hub: hub, Razorpay: rz, Wallet: ws}
}

type CreateOrderRequest struct {
	JobID    string  `json:"job_id"`
	SellerID string  `json:"seller_id"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// CreateOrder commits a buyer to a seller for an open job. The job is
// reserved first (conditional open->hired flip), then the payment link is
// created, then the order row is written. A failure after the reservation
// rolls the job back to open instead of leaving it half-hired.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, 400, "Invalid request body")
	}

	if req.JobID == "" || req.SellerID == "" || req.Price <= 0 || req.Currency == "" {
		return fail(c, 400, "Missing required fields")
	}
	if !models.ValidCurrency(req.Currency) {
		return fail(c, 400, "Invalid currency")
	}

	jobUUID, err := uuid.Parse(req.JobID)
	if err != nil {
		return fail(c, 400, "Invalid job ID")
	}
	sellerUUID, err := uuid.Parse(req.SellerID)
	if err != nil {
		return fail(c, 400, "Invalid seller ID")
	}

	var job models.Job
	if err := h.DB.First(&job, "id = ?", jobUUID).Error; err != nil || job.BuyerID != userUUID {
		return fail(c, 403, "Unauthorized")
	}

	// Reserve the job. The WHERE clause doubles as the availability check,
	// so two concurrent orders for one job cannot both pass.
	reserve := h.DB.Model(&models.Job{}).
		Where("id = ? AND status = ?", jobUUID, models.JobStatusOpen).
		Update("status", models.JobStatusHired)
	if reserve.Error != nil {
		return fail(c, 500, "Failed to reserve job")
	}
	if reserve.RowsAffected == 0 {
		return fail(c, 400, "Job is not available")
	}

	releaseJob := func() {
		if err := h.DB.Model(&models.Job{}).
			Where("id = ?", jobUUID).
			Update("status", models.JobStatusOpen).Error; err != nil {
			log.Printf("Failed to release job %s after order failure: %v", jobUUID, err)
		}
	}

	var buyer models.User
	if err := h.DB.First(&buyer, "id = ?", userUUID).Error; err != nil {
		releaseJob()
		return fail(c, 404, "Buyer not found")
	}

	link, err := h.Razorpay.CreatePaymentLink(req.Price, req.Currency, buyer.Email)
	if err != nil {
		log.Printf("Error creating payment link: %v", err)
		releaseJob()
		return fail(c, 502, "Failed to create payment link")
	}

	order := models.Order{
		JobID:         jobUUID,
		SellerID:      sellerUUID,
		BuyerID:       userUUID,
		Price:         req.Price,
		Currency:      req.Currency,
		PaymentLinkID: link.ID,
		OrderStatus:   models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}

	if err := h.DB.Create(&order).Error; err != nil {
		log.Printf("Error creating order: %v", err)
		releaseJob()
		return fail(c, 500, "Failed to create order")
	}

	return c.Status(201).JSON(fiber.Map{
		"success":      true,
		"message":      "Order placed successfully. Complete payment using the link.",
		"order":        order,
		"payment_link": link.ShortURL,
	})
}

// GetOrders lists orders where the current user is buyer or seller.
func (h *OrderHandler) GetOrders(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var orders []models.Order
	if err := h.DB.
		Preload("Job").
		Where("buyer_id = ? OR seller_id = ?", userUUID, userUUID).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		log.Println("Error fetching orders:", err)
		return fail(c, 500, "Failed to fetch orders")
	}

	return c.JSON(fiber.Map{"success": true, "data": orders})
}

type UpdateOrderStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// UpdateOrderStatus lets a participant move the order status. Terminal
// states are frozen: a completed or cancelled order no longer transitions.
func (h *OrderHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var req UpdateOrderStatusRequest
	if err := c.BodyParser(&req); err != nil || req.OrderID == "" || req.Status == "" {
		return fail(c, 400, "Order ID and status are required")
	}

	newStatus := models.OrderStatus(req.Status)
	switch newStatus {
	case models.OrderStatusPending, models.OrderStatusInProgress,
		models.OrderStatusCompleted, models.OrderStatusCancelled:
	default:
		return fail(c, 400, "Invalid order status")
	}

	var order models.Order
	if err := h.DB.First(&order, "id = ?", req.OrderID).Error; err != nil {
		return fail(c, 404, "Order not found")
	}

	if order.BuyerID != userUUID && order.SellerID != userUUID {
		return fail(c, 403, "Unauthorized")
	}

	if order.OrderStatus.IsTerminal() && newStatus != order.OrderStatus {
		log.Printf("Rejected order status transition %s -> %s for order %s",
			order.OrderStatus, newStatus, order.ID)
		return fail(c, 409, "Order is already in a final state")
	}

	order.OrderStatus = newStatus
	if err := h.DB.Save(&order).Error; err != nil {
		return fail(c, 500, "Failed to update order status")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Order status updated successfully",
		"order":   order,
	})
}

type CompleteOrderRequest struct {
	OrderID string `json:"order_id"`
}

// CompleteOrder marks a paid order as completed once the buyer's review is
// in, and credits the seller's share in one atomic update.
func (h *OrderHandler) CompleteOrder(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var req CompleteOrderRequest
	if err := c.BodyParser(&req); err != nil || req.OrderID == "" {
		return fail(c, 400, "Order ID is required")
	}

	var order models.Order
	if err := h.DB.First(&order, "id = ?", req.OrderID).Error; err != nil {
		return fail(c, 404, "Order not found")
	}

	if order.BuyerID != userUUID && order.SellerID != userUUID {
		return fail(c, 403, "Unauthorized")
	}

	if order.PaymentStatus != models.PaymentStatusPaid {
		return fail(c, 400, "Cannot complete order. Payment is pending.")
	}

	if order.OrderStatus == models.OrderStatusCompleted {
		return fail(c, 400, "Order already completed.")
	}

	var buyerReview models.Review
	if err := h.DB.
		Where("order_id = ? AND reviewer_id = ?", order.ID, order.BuyerID).
		First(&buyerReview).Error; err != nil {
		return fail(c, 400, "Cannot complete order. Buyer must submit a review first.")
	}

	// Conditional flip so a racing completion credits the seller only once.
	flip := h.DB.Model(&models.Order{}).
		Where("id = ? AND order_status <> ?", order.ID, models.OrderStatusCompleted).
		Update("order_status", models.OrderStatusCompleted)
	if flip.Error != nil {
		return fail(c, 500, "Failed to complete order")
	}
	if flip.RowsAffected == 0 {
		return fail(c, 400, "Order already completed.")
	}

	sellerEarnings := order.SellerEarnings()
	if err := h.Wallet.CreditSellerEarnings(order.SellerID, sellerEarnings); err != nil {
		log.Printf("Failed to credit seller %s for order %s: %v", order.SellerID, order.ID, err)
		return fail(c, 500, "Failed to credit seller earnings")
	}

	order.OrderStatus = models.OrderStatusCompleted

	h.Hub.SendToUser(order.SellerID, fiber.Map{
		"type":  "order_completed",
		"order": order,
	})

	return c.JSON(fiber.Map{
		"success":         true,
		"message":         "Order marked as completed. Seller earnings credited.",
		"order":           order,
		"seller_earnings": sellerEarnings,
	})
}

// Webhook payload shape sent by the payment gateway.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		PaymentLink struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"payment_link"`
		Payment struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook processes gateway callbacks. The signature is checked over
// the raw body before the payload is trusted; only payment_link.paid moves
// state, and replays land on the same absolute values.
func (h *OrderHandler) HandleWebhook(c *fiber.Ctx) error {
	signature := c.Get("X-Razorpay-Signature")
	body := c.Body()

	if !h.Razorpay.ValidateWebhookSignature(signature, body) {
		return fail(c, 400, "Invalid webhook signature")
	}

	var event WebhookEvent
	if err := c.BodyParser(&event); err != nil {
		return fail(c, 400, "Invalid payload")
	}

	if event.Event != "payment_link.paid" {
		return c.JSON(fiber.Map{"success": true, "message": "Event ignored"})
	}

	paymentLinkID := event.Payload.PaymentLink.Entity.ID
	paymentID := event.Payload.Payment.Entity.ID

	var order models.Order
	if err := h.DB.Where("payment_link_id = ?", paymentLinkID).First(&order).Error; err != nil {
		return fail(c, 404, "Order not found for this payment link")
	}

	if err := h.DB.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"payment_id":     paymentID,
			"payment_status": models.PaymentStatusPaid,
		}).Error; err != nil {
		log.Println("Error processing webhook:", err)
		return fail(c, 500, "Server error processing webhook")
	}

	order.PaymentID = paymentID
	order.PaymentStatus = models.PaymentStatusPaid

	h.Hub.SendToUser(order.BuyerID, fiber.Map{"type": "order_paid", "order": order})
	h.Hub.SendToUser(order.SellerID, fiber.Map{"type": "order_paid", "order": order})

	return c.JSON(fiber.Map{"success": true, "message": "Payment processed and order updated."})
}
