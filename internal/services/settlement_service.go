package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"settlement-service/internal/config"
	"settlement-service/internal/models"
	"settlement-service/pkg/common"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

// Task types (mirrored in internal/worker to avoid an import cycle).
const (
	TypeWithdrawalEvaluate = "withdrawal-evaluate"
	TypeWithdrawalEvent    = "withdrawal-event"
)

// EvaluateJobPayload is the delayed-job body handed to the scheduler at
// creation time and delivered back at least once after the SLA offset.
type EvaluateJobPayload struct {
	WithdrawalId int     `json:"withdrawalId"`
	UserId       int     `json:"userId"`
	Amount       float64 `json:"amount"`
	Method       string  `json:"method"`
	Destination  string  `json:"destination"`
}

// errTransitionLost signals a compare-and-swap that found the withdrawal
// already terminal. It never leaves this package.
var errTransitionLost = errors.New("terminal transition lost")

// Scheduler enqueues tasks for deferred execution with at-least-once
// delivery. *asynq.Client satisfies it.
type Scheduler interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SettlementService drives a withdrawal from creation through reservation,
// delayed evaluation, compensation or cancellation. The only concurrency
// primitive is the conditional status update: whichever trigger flips
// PENDING to a terminal status first wins, the loser performs no mutation.
type SettlementService struct {
	DB       *gorm.DB
	Ledger   *LedgerService
	Policy   *CompensationPolicy
	Payout   PayoutExecutor
	Client   Scheduler
	Settings config.Settings
}

func NewSettlementService(
	db *gorm.DB,
	ledger *LedgerService,
	policy *CompensationPolicy,
	payout PayoutExecutor,
	client Scheduler,
	settings config.Settings,
) *SettlementService {
	return &SettlementService{
		DB:       db,
		Ledger:   ledger,
		Policy:   policy,
		Payout:   payout,
		Client:   client,
		Settings: settings,
	}
}

type CreateWithdrawalDTO struct {
	UserId      int
	Amount      float64
	Method      string
	Destination string
}

type WithdrawalResult struct {
	Withdrawal     *models.Withdrawal `json:"withdrawal"`
	TimerExpiresAt time.Time          `json:"timer_expires_at"`
}

// CreateWithdrawal reserves the funds and opens the settlement window. The
// balance debit and the withdrawal row are written in one database
// transaction; neither is observable without the other.
func (s *SettlementService) CreateWithdrawal(data CreateWithdrawalDTO) (*WithdrawalResult, error) {
	if data.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	if data.Destination == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrValidation)
	}
	if !models.ValidMethod(data.Method) {
		return nil, fmt.Errorf("%w: unsupported payout method %q", ErrValidation, data.Method)
	}
	if data.Amount < s.Settings.MinimumWithdrawal {
		return nil, fmt.Errorf("%w: minimum withdrawable amount is %.2f", ErrValidation, s.Settings.MinimumWithdrawal)
	}
	if data.Amount > s.Settings.MaximumWithdrawal {
		return nil, fmt.Errorf("%w: maximum withdrawable amount is %.2f", ErrValidation, s.Settings.MaximumWithdrawal)
	}

	wallet, err := s.Ledger.Balance(data.UserId)
	if err != nil {
		return nil, err
	}
	if wallet.AvailableBalance < data.Amount {
		return nil, ErrInsufficientBalance
	}

	now := time.Now()
	withdrawal := models.Withdrawal{
		UserId:         data.UserId,
		Amount:         data.Amount,
		Method:         data.Method,
		Destination:    data.Destination,
		Status:         models.WithdrawalPending,
		Reference:      common.GenerateReference(),
		RequestedAt:    now,
		TimerStartedAt: now,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.Ledger.Debit(tx, data.UserId, data.Amount); err != nil {
			return err
		}
		if err := tx.Create(&withdrawal).Error; err != nil {
			return err
		}

		// Re-read after the debit so the journal carries the committed
		// running balance even if another mutation slipped in since the
		// precheck snapshot.
		var debited models.Wallet
		if err := tx.Where("user_id = ?", data.UserId).First(&debited).Error; err != nil {
			return err
		}
		return s.Ledger.Record(tx, JournalEntry{
			UserId:        data.UserId,
			Username:      debited.Username,
			TransactionNo: withdrawal.Reference,
			Amount:        data.Amount,
			TrxType:       "debit",
			Subject:       "Withdrawal",
			Description:   "withdrawal reservation",
			Channel:       data.Method,
			Balance:       debited.AvailableBalance,
			Status:        1,
		})
	})
	if err != nil {
		return nil, err
	}

	s.scheduleEvaluation(&withdrawal)

	return &WithdrawalResult{
		Withdrawal:     &withdrawal,
		TimerExpiresAt: withdrawal.TimerStartedAt.Add(s.Settings.SlaDuration),
	}, nil
}

// scheduleEvaluation enqueues the delayed evaluation job. A withdrawal left
// PENDING with no scheduled evaluation is a silent liveness failure, so
// enqueue errors are retried here and the cron watchdog backstops the rest.
func (s *SettlementService) scheduleEvaluation(w *models.Withdrawal) {
	payload := EvaluateJobPayload{
		WithdrawalId: w.ID,
		UserId:       w.UserId,
		Amount:       w.Amount,
		Method:       w.Method,
		Destination:  w.Destination,
	}
	taskData, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal evaluation payload for withdrawal %d: %v", w.ID, err)
		return
	}

	delay := time.Until(w.TimerStartedAt.Add(s.Settings.SlaDuration))
	if delay < 0 {
		delay = 0
	}

	task := asynq.NewTask(TypeWithdrawalEvaluate, taskData)
	for attempt := 1; attempt <= s.Settings.EnqueueMaxRetry; attempt++ {
		_, err = s.Client.Enqueue(task,
			asynq.TaskID(fmt.Sprintf("withdrawal-evaluate:%d", w.ID)),
			asynq.ProcessIn(delay),
			asynq.MaxRetry(s.Settings.SchedulerMaxRetry),
			asynq.Queue("critical"),
		)
		if err == nil || errors.Is(err, asynq.ErrTaskIDConflict) {
			return
		}
		log.Printf("Enqueue attempt %d failed for withdrawal %d: %v", attempt, w.ID, err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	log.Printf("ALERT: withdrawal %d has no scheduled evaluation after %d attempts", w.ID, s.Settings.EnqueueMaxRetry)
}

// EvaluateWithdrawal is the delayed-job handler. The elapsed check uses the
// wall-clock difference from timer start, not time since scheduling, so a
// late-running job reports the breach as worse rather than masking it.
// Redelivered jobs and jobs racing a cancellation fall through the
// conditional update as no-ops.
func (s *SettlementService) EvaluateWithdrawal(withdrawalId int) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := s.DB.First(&withdrawal, withdrawalId).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}

	if withdrawal.Terminal() {
		return &withdrawal, nil
	}

	elapsed := time.Since(withdrawal.TimerStartedAt)
	if elapsed <= s.Settings.SlaDuration {
		return s.completeWithdrawal(&withdrawal)
	}
	return s.compensateWithdrawal(&withdrawal)
}

func (s *SettlementService) completeWithdrawal(w *models.Withdrawal) (*models.Withdrawal, error) {
	now := time.Now()
	res := s.DB.Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", w.ID, models.WithdrawalPending).
		Updates(map[string]interface{}{
			"status":       models.WithdrawalCompleted,
			"processed_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race; the other trigger's outcome stands.
		return s.reload(w.ID)
	}

	w.Status = models.WithdrawalCompleted
	w.ProcessedAt = &now

	// Funds were reserved at creation; completion moves them out over the
	// payout rail. A rail failure never reverses the recorded completion.
	if err := s.Payout.Disburse(w); err != nil {
		log.Printf("Payout failed for withdrawal %s: %v", w.Reference, err)
	}

	return w, nil
}

func (s *SettlementService) compensateWithdrawal(w *models.Withdrawal) (*models.Withdrawal, error) {
	compensation := s.Policy.Compensation(true)
	now := time.Now()

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Withdrawal{}).
			Where("id = ? AND status = ?", w.ID, models.WithdrawalPending).
			Updates(map[string]interface{}{
				"status":              models.WithdrawalCompensated,
				"processed_at":        now,
				"timer_expired":       true,
				"compensation_paid":   true,
				"compensation_amount": compensation,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errTransitionLost
		}

		if err := s.Ledger.Credit(tx, w.UserId, compensation); err != nil {
			return err
		}

		var wallet models.Wallet
		if err := tx.Where("user_id = ?", w.UserId).First(&wallet).Error; err != nil {
			return err
		}
		return s.Ledger.Record(tx, JournalEntry{
			UserId:        w.UserId,
			Username:      wallet.Username,
			TransactionNo: common.GenerateTrxNo(),
			Amount:        compensation,
			TrxType:       "credit",
			Subject:       "Compensation",
			Description:   fmt.Sprintf("settlement window breached for %s", w.Reference),
			Channel:       "Internal Transfer",
			Balance:       wallet.AvailableBalance,
			Status:        1,
		})
	})
	if err == errTransitionLost {
		return s.reload(w.ID)
	}
	if err != nil {
		return nil, err
	}

	w.Status = models.WithdrawalCompensated
	w.ProcessedAt = &now
	w.TimerExpired = true
	w.CompensationPaid = true
	w.CompensationAmount = compensation

	s.emitLateEvent(w)

	return w, nil
}

// emitLateEvent hands the withdrawal.late event to the low-priority queue.
// The compensation credit is already committed; a notification outage only
// delays delivery, asynq retries the task on its own schedule.
func (s *SettlementService) emitLateEvent(w *models.Withdrawal) {
	event := WithdrawalEvent{
		EventId:            uuid.NewString(),
		Event:              EventWithdrawalLate,
		WithdrawalId:       w.ID,
		UserId:             w.UserId,
		Amount:             w.Amount,
		CompensationPaid:   w.CompensationPaid,
		CompensationAmount: w.CompensationAmount,
		Reference:          w.Reference,
		Timestamp:          time.Now(),
	}
	taskData, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal %s event for withdrawal %d: %v", event.Event, w.ID, err)
		return
	}

	_, err = s.Client.Enqueue(asynq.NewTask(TypeWithdrawalEvent, taskData),
		asynq.MaxRetry(5),
		asynq.Queue("low"),
	)
	if err != nil {
		log.Printf("Failed to enqueue %s event for withdrawal %d: %v", event.Event, w.ID, err)
	}
}

// CancelWithdrawal is the user-initiated writer racing the scheduled
// evaluation on the same status column. Winning the conditional update
// refunds the full reserved amount; losing it is a terminal business fact
// reported as ErrInvalidState.
func (s *SettlementService) CancelWithdrawal(withdrawalId, userId int) (*models.Withdrawal, error) {
	withdrawal, err := s.GetWithdrawalDetails(withdrawalId, userId)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Withdrawal{}).
			Where("id = ? AND status = ?", withdrawal.ID, models.WithdrawalPending).
			Updates(map[string]interface{}{
				"status":       models.WithdrawalCancelled,
				"processed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidState
		}

		if err := s.Ledger.Credit(tx, userId, withdrawal.Amount); err != nil {
			return err
		}

		var wallet models.Wallet
		if err := tx.Where("user_id = ?", userId).First(&wallet).Error; err != nil {
			return err
		}
		return s.Ledger.Record(tx, JournalEntry{
			UserId:        userId,
			Username:      wallet.Username,
			TransactionNo: common.GenerateTrxNo(),
			Amount:        withdrawal.Amount,
			TrxType:       "credit",
			Subject:       "Withdrawal Refund",
			Description:   fmt.Sprintf("cancellation refund for %s", withdrawal.Reference),
			Channel:       "Internal Transfer",
			Balance:       wallet.AvailableBalance,
			Status:        1,
		})
	})
	if err != nil {
		return nil, err
	}

	withdrawal.Status = models.WithdrawalCancelled
	withdrawal.ProcessedAt = &now
	return withdrawal, nil
}

// GetWithdrawalDetails returns the withdrawal only to its owner; a foreign
// or unknown id is indistinguishable from a missing one.
func (s *SettlementService) GetWithdrawalDetails(withdrawalId, userId int) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	err := s.DB.Where("id = ? AND user_id = ?", withdrawalId, userId).First(&withdrawal).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &withdrawal, nil
}

type HistoryDTO struct {
	UserId int
	Page   int
	Limit  int
}

// GetWithdrawalHistory returns the user's withdrawals newest-first.
func (s *SettlementService) GetWithdrawalHistory(data HistoryDTO) ([]models.Withdrawal, int64, error) {
	limit := data.Limit
	if limit <= 0 {
		limit = 50
	}
	page := data.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := s.DB.Model(&models.Withdrawal{}).Where("user_id = ?", data.UserId)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []models.Withdrawal
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error; err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

func (s *SettlementService) reload(id int) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := s.DB.First(&withdrawal, id).Error; err != nil {
		return nil, err
	}
	return &withdrawal, nil
}
