package services

import (
	"settlement-service/internal/models"

	"gorm.io/gorm"
)

// LedgerService is the single gateway to a user's spendable balance. Every
// mutation is an atomic SQL increment/decrement so concurrent withdrawals,
// refunds and compensation credits for the same user compose safely; no
// caller ever read-modify-writes the balance column.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// Debit atomically decrements the user's balance by amount, refusing the
// update when the balance would go negative. The overdraft check lives in
// the WHERE clause so check and decrement are one statement.
func (s *LedgerService) Debit(tx *gorm.DB, userId int, amount float64) error {
	res := tx.Model(&models.Wallet{}).
		Where("user_id = ? AND available_balance >= ?", userId, amount).
		UpdateColumn("available_balance", gorm.Expr("available_balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.Wallet{}).Where("user_id = ?", userId).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrWalletNotFound
		}
		return ErrInsufficientBalance
	}
	return nil
}

// Credit atomically increments the user's balance by amount.
func (s *LedgerService) Credit(tx *gorm.DB, userId int, amount float64) error {
	res := tx.Model(&models.Wallet{}).
		Where("user_id = ?", userId).
		UpdateColumn("available_balance", gorm.Expr("available_balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// Balance loads the user's wallet.
func (s *LedgerService) Balance(userId int) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := s.DB.Where("user_id = ?", userId).First(&wallet).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

type JournalEntry struct {
	UserId        int
	Username      string
	TransactionNo string
	Amount        float64
	TrxType       string
	Subject       string
	Description   string
	Channel       string
	Balance       float64
	Status        int
}

// Record appends one journal row for a balance movement. Withdrawals are an
// append-only financial record; the journal is its ledger-side mirror.
func (s *LedgerService) Record(tx *gorm.DB, entry JournalEntry) error {
	trx := models.Transaction{
		UserId:        entry.UserId,
		Username:      entry.Username,
		TransactionNo: entry.TransactionNo,
		Amount:        entry.Amount,
		TrxType:       entry.TrxType,
		Subject:       entry.Subject,
		Description:   entry.Description,
		Channel:       entry.Channel,
		Balance:       entry.Balance,
		Status:        entry.Status,
	}
	return tx.Create(&trx).Error
}
