package services

import (
	"encoding/json"
	"log"
	"time"

	"settlement-service/internal/config"
	"settlement-service/internal/models"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// WatchdogService backstops the delayed scheduler. A withdrawal stuck in
// PENDING past its SLA with no further evaluation attempt leaves the user
// neither paid nor compensated, so the scan surfaces an alert and enqueues
// an immediate evaluation. The conditional status update makes the extra
// delivery safe.
type WatchdogService struct {
	DB       *gorm.DB
	Client   Scheduler
	Settings config.Settings
}

func NewWatchdogService(db *gorm.DB, client Scheduler, settings config.Settings) *WatchdogService {
	return &WatchdogService{DB: db, Client: client, Settings: settings}
}

// StartScheduler initializes the cron job for the stuck-withdrawal scan.
func (s *WatchdogService) StartScheduler() {
	c := cron.New()
	// Run every minute: "* * * * *"
	_, err := c.AddFunc("* * * * *", func() {
		if err := s.ScanStuckWithdrawals(); err != nil {
			log.Printf("Error in ScanStuckWithdrawals: %v", err)
		}
	})
	if err != nil {
		log.Printf("Error scheduling ScanStuckWithdrawals: %v", err)
		return
	}
	c.Start()
	log.Println("Withdrawal watchdog scheduler started")
}

// ScanStuckWithdrawals re-enqueues evaluation for withdrawals whose window
// expired a full grace period ago without a terminal transition.
func (s *WatchdogService) ScanStuckWithdrawals() error {
	grace := s.Settings.SlaDuration
	cutoff := time.Now().Add(-(s.Settings.SlaDuration + grace))

	var stuck []models.Withdrawal
	err := s.DB.Where("status = ? AND timer_started_at < ?", models.WithdrawalPending, cutoff).
		Find(&stuck).Error
	if err != nil {
		return err
	}

	for _, w := range stuck {
		log.Printf("ALERT: withdrawal %d (%s) stuck in PENDING since %s, re-enqueueing evaluation",
			w.ID, w.Reference, w.TimerStartedAt.Format(time.RFC3339))

		payload := EvaluateJobPayload{
			WithdrawalId: w.ID,
			UserId:       w.UserId,
			Amount:       w.Amount,
			Method:       w.Method,
			Destination:  w.Destination,
		}
		taskData, err := json.Marshal(payload)
		if err != nil {
			log.Printf("Failed to marshal watchdog payload for withdrawal %d: %v", w.ID, err)
			continue
		}

		_, err = s.Client.Enqueue(asynq.NewTask(TypeWithdrawalEvaluate, taskData),
			asynq.MaxRetry(s.Settings.SchedulerMaxRetry),
			asynq.Queue("critical"),
		)
		if err != nil {
			log.Printf("Failed to re-enqueue evaluation for withdrawal %d: %v", w.ID, err)
		}
	}
	return nil
}
