package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oldbyju/platform_backend/internal/models"
	"github.com/oldbyju/platform_backend/internal/services/rating"
)

type ReviewHandler struct {
	DB     *gorm.DB
	Rating *rating.RatingService
}

func NewReviewHandler(db *gorm.DB, rs *rating.RatingService) *ReviewHandler {
	return &ReviewHandler{DB: db, Rating: rs}
}

type SubmitReviewRequest struct {
	OrderID string `json:"order_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// SubmitReview records a review for an order. The reviewer must be the
// order's buyer or seller, and each side may review an order once.
func (h *ReviewHandler) SubmitReview(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var req SubmitReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, 400, "Invalid request body")
	}

	if req.OrderID == "" || req.Rating == 0 || req.Comment == "" {
		return fail(c, 400, "Order ID, rating, and comment are required.")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return fail(c, 400, "Rating must be between 1 and 5.")
	}

	var order models.Order
	if err := h.DB.First(&order, "id = ?", req.OrderID).Error; err != nil {
		return fail(c, 404, "Order not found")
	}

	var revieweeID uuid.UUID
	var role models.Role

	switch userUUID {
	case order.BuyerID:
		revieweeID = order.SellerID
		role = models.RoleStudent
	case order.SellerID:
		revieweeID = order.BuyerID
		role = models.RoleTeacher
	default:
		return fail(c, 403, "Unauthorized to review this order.")
	}

	var existing models.Review
	if err := h.DB.
		Where("order_id = ? AND reviewer_id = ?", order.ID, userUUID).
		First(&existing).Error; err == nil {
		return fail(c, 409, "You have already submitted a review for this order.")
	}

	review := models.Review{
		OrderID:    order.ID,
		ReviewerID: userUUID,
		RevieweeID: revieweeID,
		Rating:     req.Rating,
		Comment:    req.Comment,
		Role:       role,
	}

	if err := h.DB.Create(&review).Error; err != nil {
		// The unique index on (order_id, reviewer_id) catches the race the
		// pre-check above can lose.
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			return fail(c, 409, "You have already submitted a review for this order.")
		}
		log.Println("Error creating review:", err)
		return fail(c, 500, "Failed to submit review")
	}

	if err := h.Rating.ApplyRating(revieweeID, req.Rating); err != nil {
		log.Printf("Failed to update rating for user %s: %v", revieweeID, err)
		return fail(c, 500, "Failed to update reviewee rating")
	}

	return c.Status(201).JSON(fiber.Map{
		"success": true,
		"message": "Review submitted successfully.",
		"review":  review,
	})
}

// GetReviewsForUser lists reviews received by a user, newest first.
func (h *ReviewHandler) GetReviewsForUser(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return fail(c, 400, "User ID is required")
	}

	var reviews []models.Review
	if err := h.DB.
		Where("reviewee_id = ?", userID).
		Order("created_at DESC").
		Find(&reviews).Error; err != nil {
		log.Println("Error fetching reviews:", err)
		return fail(c, 500, "Failed to fetch reviews")
	}

	return c.JSON(fiber.Map{"success": true, "data": reviews})
}
