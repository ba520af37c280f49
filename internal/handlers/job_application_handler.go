package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oldbyju/platform_backend/internal/models"
	"github.com/oldbyju/platform_backend/internal/services/storage"
)

type JobApplicationHandler struct {
	DB      *gorm.DB
	Storage *storage.CloudinaryService
}

func NewJobApplicationHandler(db *gorm.DB, st *storage.CloudinaryService) *JobApplicationHandler {
	return &JobApplicationHandler{DB: db, Storage: st}
}

// ApplyToJob records a seller's application with optional attachments.
func (h *JobApplicationHandler) ApplyToJob(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	jobID := c.FormValue("job_id")
	coverLetter := c.FormValue("cover_letter")
	if jobID == "" || coverLetter == "" {
		return fail(c, 400, "Job ID and cover letter are required.")
	}

	jobUUID, err := uuid.Parse(jobID)
	if err != nil {
		return fail(c, 400, "Invalid job ID")
	}

	var job models.Job
	if err := h.DB.First(&job, "id = ?", jobUUID).Error; err != nil {
		return fail(c, 404, "Job not found")
	}

	var attachments []string
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, fh := range form.File["attachments"] {
			f, err := fh.Open()
			if err != nil {
				continue
			}
			uploaded, err := h.Storage.Upload(fh.Filename, f)
			f.Close()
			if err != nil {
				log.Println("Attachment upload failed:", err)
				return fail(c, 502, "Failed to upload attachments")
			}
			attachments = append(attachments, uploaded.URL)
		}
	}

	application := models.JobApplication{
		JobID:       jobUUID,
		SellerID:    userUUID,
		CoverLetter: coverLetter,
		Attachments: jsonStringArray(attachments),
		Status:      models.ApplicationStatusPending,
	}

	if err := h.DB.Create(&application).Error; err != nil {
		log.Println("Error creating application:", err)
		return fail(c, 500, "Failed to submit application")
	}

	return c.Status(201).JSON(fiber.Map{"success": true, "data": application})
}

// GetJobApplications lists applications for a job with applicant info.
func (h *JobApplicationHandler) GetJobApplications(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return fail(c, 400, "Job ID is required")
	}

	var applications []models.JobApplication
	if err := h.DB.
		Preload("Seller").
		Where("job_id = ?", jobID).
		Find(&applications).Error; err != nil {
		log.Println("Error fetching applications:", err)
		return fail(c, 500, "Failed to fetch applications")
	}

	return c.JSON(fiber.Map{"success": true, "data": applications})
}

type UpdateApplicationStatusRequest struct {
	Status string `json:"status"`
}

// UpdateApplicationStatus lets the job's owner accept or reject an
// application.
func (h *JobApplicationHandler) UpdateApplicationStatus(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var req UpdateApplicationStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, 400, "Invalid request body")
	}

	status := models.ApplicationStatus(req.Status)
	if status != models.ApplicationStatusAccepted && status != models.ApplicationStatusRejected {
		return fail(c, 400, "Status must be accepted or rejected")
	}

	var application models.JobApplication
	if err := h.DB.Preload("Job").First(&application, "id = ?", c.Params("id")).Error; err != nil {
		return fail(c, 404, "Application not found")
	}

	if application.Job == nil || application.Job.BuyerID != userUUID {
		return fail(c, 403, "Unauthorized")
	}

	application.Status = status
	if err := h.DB.Save(&application).Error; err != nil {
		return fail(c, 500, "Failed to update application")
	}

	return c.JSON(fiber.Map{"success": true, "data": application})
}
