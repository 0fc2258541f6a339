package models

import (
	"time"
)

// PaymentMethod holds the disbursement settings for one payout channel.
type PaymentMethod struct {
	ID         int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider   string    `gorm:"column:provider;size:50;not null;index" json:"provider"`
	Method     string    `gorm:"column:method;size:50;not null;uniqueIndex:idx_payment_method" json:"method"`
	BaseUrl    string    `gorm:"column:base_url;size:255" json:"base_url"`
	MerchantId string    `gorm:"column:merchant_id;size:255" json:"merchant_id"`
	SecretKey  string    `gorm:"column:secret_key;size:255" json:"secret_key"`
	Status     int       `gorm:"column:status;default:1" json:"status"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PaymentMethod) TableName() string {
	return "payment_methods"
}
