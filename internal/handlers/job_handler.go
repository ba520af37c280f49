package handlers

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/oldbyju/platform_backend/internal/models"
	"github.com/oldbyju/platform_backend/internal/services/storage"
)

type JobHandler struct {
	DB      *gorm.DB
	Storage *storage.CloudinaryService
}

func NewJobHandler(db *gorm.DB, st *storage.CloudinaryService) *JobHandler {
	return &JobHandler{DB: db, Storage: st}
}

// uploadAttachments pushes every multipart file under "attachments" to
// storage and returns their public URLs.
func (h *JobHandler) uploadAttachments(c *fiber.Ctx) ([]string, error) {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil, nil // no attachments is fine
	}

	var urls []string
	for _, fh := range form.File["attachments"] {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		uploaded, err := h.Storage.Upload(fh.Filename, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		urls = append(urls, uploaded.URL)
	}
	return urls, nil
}

// CreateJob posts a new job for the current buyer.
func (h *JobHandler) CreateJob(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	title := c.FormValue("title")
	description := c.FormValue("description")
	category := c.FormValue("category")
	budget, _ := strconv.ParseFloat(c.FormValue("budget"), 64)

	if category == "" || title == "" || description == "" || budget <= 0 {
		return fail(c, 400, "Category, title, description, and budget are required.")
	}

	attachments, err := h.uploadAttachments(c)
	if err != nil {
		log.Println("Attachment upload failed:", err)
		return fail(c, 502, "Failed to upload attachments")
	}

	job := models.Job{
		BuyerID:     userUUID,
		Title:       title,
		Description: description,
		Budget:      budget,
		Category:    category,
		Attachments: jsonStringArray(attachments),
		Status:      models.JobStatusOpen,
	}

	if err := h.DB.Create(&job).Error; err != nil {
		log.Println("Error creating job:", err)
		return fail(c, 500, "Failed to create job")
	}

	return c.Status(201).JSON(fiber.Map{"success": true, "data": job})
}

// GetJobs lists open jobs, optionally filtered by category and budget range.
func (h *JobHandler) GetJobs(c *fiber.Ctx) error {
	query := h.DB.Where("status = ?", models.JobStatusOpen)

	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if min := c.Query("min_budget"); min != "" {
		if v, err := strconv.ParseFloat(min, 64); err == nil {
			query = query.Where("budget >= ?", v)
		}
	}
	if max := c.Query("max_budget"); max != "" {
		if v, err := strconv.ParseFloat(max, 64); err == nil {
			query = query.Where("budget <= ?", v)
		}
	}

	var jobs []models.Job
	if err := query.Order("created_at DESC").Find(&jobs).Error; err != nil {
		log.Println("Error fetching jobs:", err)
		return fail(c, 500, "Failed to fetch jobs")
	}

	return c.JSON(fiber.Map{"success": true, "data": jobs})
}

// ArchiveJob marks an owned job as archived.
func (h *JobHandler) ArchiveJob(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var job models.Job
	if err := h.DB.First(&job, "id = ?", c.Params("id")).Error; err != nil || job.BuyerID != userUUID {
		return fail(c, 403, "Unauthorized")
	}

	job.Status = models.JobStatusArchived
	if err := h.DB.Save(&job).Error; err != nil {
		return fail(c, 500, "Failed to archive job")
	}

	return c.JSON(fiber.Map{"success": true, "message": "Job archived successfully"})
}

// DeleteJob soft-deletes an owned job. Only open jobs can be deleted.
func (h *JobHandler) DeleteJob(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var job models.Job
	if err := h.DB.First(&job, "id = ?", c.Params("id")).Error; err != nil || job.BuyerID != userUUID {
		return fail(c, 403, "Unauthorized")
	}

	if job.Status != models.JobStatusOpen {
		return fail(c, 400, "Only open jobs can be deleted")
	}

	job.Status = models.JobStatusDeleted
	if err := h.DB.Save(&job).Error; err != nil {
		return fail(c, 500, "Failed to delete job")
	}

	return c.JSON(fiber.Map{"success": true, "message": "Job deleted successfully"})
}
