package models

import (
	"time"
)

// Withdrawal statuses. PENDING is the only non-terminal state; the three
// terminal states are reached through a conditional status update and never
// revert.
const (
	WithdrawalPending     = "PENDING"
	WithdrawalCompleted   = "COMPLETED"
	WithdrawalCompensated = "COMPENSATED"
	WithdrawalCancelled   = "CANCELLED"
)

// Payout channels.
const (
	MethodBankTransfer = "bank_transfer"
	MethodStablecoin   = "stablecoin"
	MethodCrypto       = "crypto"
	MethodMobileMoney  = "mobile_money"
)

type Withdrawal struct {
	ID                 int        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserId             int        `gorm:"column:user_id;not null;index:idx_withdrawal_user" json:"user_id"`
	Amount             float64    `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Method             string     `gorm:"column:method;size:50;not null" json:"method"`
	Destination        string     `gorm:"column:destination;size:255;not null" json:"destination"`
	Status             string     `gorm:"column:status;size:20;not null;default:PENDING;index:idx_withdrawal_status" json:"status"`
	Reference          string     `gorm:"column:reference;size:40;uniqueIndex:idx_withdrawal_reference" json:"reference"`
	RequestedAt        time.Time  `gorm:"column:requested_at;not null" json:"requested_at"`
	TimerStartedAt     time.Time  `gorm:"column:timer_started_at;not null" json:"timer_started_at"`
	ProcessedAt        *time.Time `gorm:"column:processed_at" json:"processed_at"`
	TimerExpired       bool       `gorm:"column:timer_expired;default:false" json:"timer_expired"`
	CompensationPaid   bool       `gorm:"column:compensation_paid;default:false" json:"compensation_paid"`
	CompensationAmount float64    `gorm:"column:compensation_amount;type:decimal(20,2);default:0.00" json:"compensation_amount"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}

// Terminal reports whether the withdrawal has reached a final status.
func (w *Withdrawal) Terminal() bool {
	return w.Status != WithdrawalPending
}

// ValidMethod reports whether m names a supported payout channel.
func ValidMethod(m string) bool {
	switch m {
	case MethodBankTransfer, MethodStablecoin, MethodCrypto, MethodMobileMoney:
		return true
	}
	return false
}
