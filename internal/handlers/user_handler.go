package handlers

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/oldbyju/platform_backend/internal/models"
	"github.com/oldbyju/platform_backend/internal/services/mailer"
	"github.com/oldbyju/platform_backend/internal/services/razorpay"
	"github.com/oldbyju/platform_backend/internal/services/storage"
	"github.com/oldbyju/platform_backend/internal/services/wallet"
)

type UserHandler struct {
	DB         *gorm.DB
	Razorpay   *razorpay.RazorpayService
	Wallet     *wallet.WalletService
	Storage    *storage.CloudinaryService
	Mailer     *mailer.Mailer
	AdminEmail string
}

func NewUserHandler(db *gorm.DB, rz *razorpay.RazorpayService, ws *wallet.WalletService,
	st *storage.CloudinaryService, m *mailer.Mailer, adminEmail string) *UserHandler {
	return &UserHandler{DB: db, Razorpay: rz, Wallet: ws, Storage: st, Mailer: m, AdminEmail: adminEmail}
}

// GetProfile returns the logged-in user's profile.
func (h *UserHandler) GetProfile(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userUUID).Error; err != nil {
		return fail(c, 404, "User not found")
	}

	return c.JSON(fiber.Map{"success": true, "data": user})
}

// UpdateProfileRequest enumerates the optional profile fields a user may
// change. Absent fields are left untouched; keywords accept either a JSON
// array or a comma-separated string.
type UpdateProfileRequest struct {
	Education        *string  `json:"education"`
	JobExperience    *string  `json:"job_experience"`
	PersonalProjects []string `json:"personal_projects"`
	Keywords         []string `json:"keywords"`
	KeywordsCSV      *string  `json:"keywords_csv"`
}

// UpdateProfile applies the allowed profile fields. A multipart
// "profile_picture" file replaces the stored picture URL.
func (h *UserHandler) UpdateProfile(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var req UpdateProfileRequest
	_ = c.BodyParser(&req)

	updates := map[string]interface{}{}

	if fh, err := c.FormFile("profile_picture"); err == nil && fh != nil {
		f, err := fh.Open()
		if err == nil {
			uploaded, upErr := h.Storage.Upload(fh.Filename, f)
			f.Close()
			if upErr != nil {
				log.Println("Profile picture upload failed:", upErr)
				return fail(c, 502, "Failed to upload profile picture")
			}
			updates["profile_picture"] = uploaded.URL
		}
	}

	if req.Education != nil {
		updates["education"] = *req.Education
	}
	if req.JobExperience != nil {
		updates["job_experience"] = *req.JobExperience
	}
	if req.PersonalProjects != nil {
		updates["personal_projects"] = jsonStringArray(req.PersonalProjects)
	}

	keywords := req.Keywords
	if keywords == nil && req.KeywordsCSV != nil {
		for _, kw := range strings.Split(*req.KeywordsCSV, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
	}
	if keywords != nil {
		// replace-as-set: drop duplicates, keep first occurrence order
		seen := map[string]bool{}
		var unique []string
		for _, kw := range keywords {
			if !seen[kw] {
				seen[kw] = true
				unique = append(unique, kw)
			}
		}
		updates["keywords"] = jsonStringArray(unique)
	}

	if len(updates) == 0 {
		return fail(c, 400, "No profile fields to update")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", userUUID).Updates(updates).Error; err != nil {
		log.Println("Error updating profile:", err)
		return fail(c, 500, "Failed to update profile")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userUUID).Error; err != nil {
		return fail(c, 404, "User not found")
	}

	return c.JSON(fiber.Map{"success": true, "data": user})
}

// GetStats reports completed orders and payout-relevant balances.
func (h *UserHandler) GetStats(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var completedOrders int64
	h.DB.Model(&models.Order{}).
		Where("seller_id = ? AND order_status = ?", userUUID, models.OrderStatusCompleted).
		Count(&completedOrders)

	var user models.User
	if err := h.DB.First(&user, "id = ?", userUUID).Error; err != nil {
		return fail(c, 404, "User not found")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"completed_orders": completedOrders,
			"available_payout": user.EarnedBalance,
			"amount_earned":    user.PaymentsReceived,
			"amount_spent":     user.PaymentsMade,
		},
	})
}

type TransferPayoutRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	RecipientID string  `json:"recipient_id"`
}

// TransferPayout withdraws earned balance to the seller's gateway account.
// The balance is debited first with a guarded UPDATE, so concurrent payout
// requests can never overdraw; if the gateway transfer then fails, the
// debit is compensated.
func (h *UserHandler) TransferPayout(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var req TransferPayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, 400, "Invalid request body")
	}
	if req.Amount <= 0 || req.RecipientID == "" {
		return fail(c, 400, "Amount and recipient ID are required")
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userUUID).Error; err != nil {
		return fail(c, 404, "User not found")
	}

	if err := h.Wallet.DebitPayout(userUUID, req.Amount); err != nil {
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			return fail(c, 400, "Insufficient balance for payout")
		}
		log.Println("Error debiting payout:", err)
		return fail(c, 500, "Payout transfer failed")
	}

	payout, err := h.Razorpay.TransferToSeller(req.RecipientID, req.Amount, currency)
	if err != nil {
		log.Printf("Gateway payout failed for user %s, refunding: %v", userUUID, err)
		if refundErr := h.Wallet.RefundPayout(userUUID, req.Amount); refundErr != nil {
			log.Printf("Payout refund failed for user %s: %v", userUUID, refundErr)
		}
		return fail(c, 502, "Payout transfer failed")
	}

	if err := h.DB.First(&user, "id = ?", userUUID).Error; err == nil {
		return c.JSON(fiber.Map{
			"success":           true,
			"message":           "Payout transferred successfully",
			"transfer":          payout,
			"remaining_balance": user.EarnedBalance,
		})
	}

	return c.JSON(fiber.Map{"success": true, "message": "Payout transferred successfully", "transfer": payout})
}

// ExploreTeachers is the public teacher directory with keyword and
// minimum-rating filters.
func (h *UserHandler) ExploreTeachers(c *fiber.Ctx) error {
	query := h.DB.Model(&models.User{}).Where("role = ?", models.RoleTeacher)

	if keyword := c.Query("keyword"); keyword != "" {
		query = query.Where("keywords::text ILIKE ?", "%"+keyword+"%")
	}
	if min := c.Query("minimum_rating"); min != "" {
		if v, err := strconv.ParseFloat(min, 64); err == nil {
			query = query.Where("average_rating >= ?", v)
		}
	}

	var teachers []models.User
	if err := query.Find(&teachers).Error; err != nil {
		log.Println("Error fetching teachers:", err)
		return fail(c, 500, "Failed to fetch teachers")
	}

	return c.JSON(fiber.Map{"success": true, "data": teachers})
}

type ContactUsRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// ContactUs forwards a public contact message to the admin inbox.
func (h *UserHandler) ContactUs(c *fiber.Ctx) error {
	var req ContactUsRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" || req.Email == "" || req.Message == "" {
		return fail(c, 400, "All fields are required.")
	}

	subject := "Contact Us - Message from " + req.Name
	body := "From: " + req.Email + "\n\n" + req.Message
	if err := h.Mailer.Send(h.AdminEmail, subject, body); err != nil {
		log.Println("Error sending contact mail:", err)
		return fail(c, 502, "Failed to send message.")
	}

	return c.JSON(fiber.Map{"success": true, "message": "Your message has been sent successfully."})
}

type ReportIssueRequest struct {
	Issue string `json:"issue"`
}

// ReportIssue lets an authenticated user mail an issue report to the admin.
func (h *UserHandler) ReportIssue(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var req ReportIssueRequest
	if err := c.BodyParser(&req); err != nil || req.Issue == "" {
		return fail(c, 400, "Issue description is required.")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userUUID).Error; err != nil {
		return fail(c, 404, "User not found")
	}

	subject := "Report Issue - " + user.Username + " (" + user.ID.String() + ")"
	body := "User email: " + user.Email + "\n\nIssue: " + req.Issue
	if err := h.Mailer.Send(h.AdminEmail, subject, body); err != nil {
		log.Println("Error sending issue report:", err)
		return fail(c, 502, "Failed to report issue.")
	}

	return c.JSON(fiber.Map{"success": true, "message": "Issue reported successfully."})
}
