package rating

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oldbyju/platform_backend/internal/models"
)

type RatingService struct {
	DB *gorm.DB
}

func NewRatingService(db *gorm.DB) *RatingService {
	return &RatingService{DB: db}
}

// ApplyRating folds a new review rating into the reviewee's aggregate. Sum,
// count and the derived average move in the same UPDATE, so two concurrent
// submissions for one reviewee cannot overwrite each other with stale reads
// and the stored average always equals the exact mean.
func (s *RatingService) ApplyRating(revieweeID uuid.UUID, ratingValue int) error {
	result := s.DB.Model(&models.User{}).
		Where("id = ?", revieweeID).
		Updates(map[string]interface{}{
			"rating_sum":     gorm.Expr("rating_sum + ?", ratingValue),
			"rating_count":   gorm.Expr("rating_count + 1"),
			"average_rating": gorm.Expr("(rating_sum + ?) / (rating_count + 1.0)", ratingValue),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
