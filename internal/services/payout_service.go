package services

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"settlement-service/internal/models"
	"settlement-service/pkg/common"

	"gorm.io/gorm"
)

// PayoutExecutor moves funds out over the withdrawal's payout channel once
// settlement has recorded completion. The wire protocol belongs to the rail;
// settlement only hands over the completed withdrawal.
type PayoutExecutor interface {
	Disburse(w *models.Withdrawal) error
}

// HTTPPayoutExecutor disburses through a per-channel HTTP rail configured in
// the payment_methods table.
type HTTPPayoutExecutor struct {
	DB *gorm.DB
}

func NewHTTPPayoutExecutor(db *gorm.DB) *HTTPPayoutExecutor {
	return &HTTPPayoutExecutor{DB: db}
}

func (e *HTTPPayoutExecutor) payoutSettings(method string) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	err := e.DB.Where("method = ? AND status = 1", method).First(&pm).Error
	if err != nil {
		return nil, fmt.Errorf("no payout settings for %s: %w", method, err)
	}
	return &pm, nil
}

func (e *HTTPPayoutExecutor) Disburse(w *models.Withdrawal) error {
	settings, err := e.payoutSettings(w.Method)
	if err != nil {
		return err
	}

	signatureInput := fmt.Sprintf("%s:%s", settings.MerchantId, settings.SecretKey)
	hash := sha512.New()
	hash.Write([]byte(signatureInput))
	xAuthSignature := hex.EncodeToString(hash.Sum(nil))

	headers := map[string]string{
		"Client-Id":        settings.MerchantId,
		"X-Auth-Signature": xAuthSignature,
	}

	payload := map[string]interface{}{
		"reference":   w.Reference,
		"amount":      w.Amount,
		"destination": w.Destination,
		"narration":   "withdrawal settlement",
	}

	url := fmt.Sprintf("%s/disburse", settings.BaseUrl)
	response, err := common.Post(url, payload, headers)
	if err != nil {
		return err
	}

	if resMap, ok := response.(map[string]interface{}); ok {
		if success, ok := resMap["success"].(bool); ok && !success {
			return fmt.Errorf("disbursement rejected for %s: %v", w.Reference, resMap["message"])
		}
	}
	return nil
}
