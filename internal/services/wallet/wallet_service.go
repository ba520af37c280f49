package wallet

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oldbyju/platform_backend/internal/models"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// CreditSellerEarnings applies a completed order to the seller's counters.
// All three columns move in one UPDATE so concurrent completions for the
// same seller cannot lose an increment.
func (s *WalletService) CreditSellerEarnings(sellerID uuid.UUID, earnings float64) error {
	result := s.DB.Model(&models.User{}).
		Where("id = ?", sellerID).
		Updates(map[string]interface{}{
			"earned_balance":    gorm.Expr("earned_balance + ?", earnings),
			"payments_received": gorm.Expr("payments_received + ?", earnings),
			"orders_completed":  gorm.Expr("orders_completed + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DebitPayout withdraws from the seller's earned balance. The balance guard
// is part of the UPDATE's WHERE clause, so two payouts racing each other can
// never overdraw: the loser matches zero rows.
func (s *WalletService) DebitPayout(sellerID uuid.UUID, amount float64) error {
	if amount <= 0 {
		return errors.New("amount to debit must be greater than zero")
	}

	result := s.DB.Model(&models.User{}).
		Where("id = ? AND earned_balance >= ?", sellerID, amount).
		Updates(map[string]interface{}{
			"earned_balance": gorm.Expr("earned_balance - ?", amount),
			"payments_made":  gorm.Expr("payments_made + ?", amount),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// RefundPayout compensates a debit whose gateway transfer failed.
func (s *WalletService) RefundPayout(sellerID uuid.UUID, amount float64) error {
	result := s.DB.Model(&models.User{}).
		Where("id = ?", sellerID).
		Updates(map[string]interface{}{
			"earned_balance": gorm.Expr("earned_balance + ?", amount),
			"payments_made":  gorm.Expr("payments_made - ?", amount),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
