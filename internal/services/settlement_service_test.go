package services

import (
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"settlement-service/internal/config"
	"settlement-service/internal/models"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NOTE: These tests require a running MySQL instance pointed to by
// DATABASE_URL. Without it they skip, matching CI environments without a
// database container.

var testDB *gorm.DB

func setup() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Println("Skipping DB tests: DATABASE_URL not set")
		return
	}

	var err error
	testDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		return
	}

	testDB.AutoMigrate(&models.Wallet{}, &models.Transaction{}, &models.Withdrawal{})
}

func cleanup() {
	if testDB != nil {
		testDB.Exec("DELETE FROM transactions")
		testDB.Exec("DELETE FROM withdrawals")
		testDB.Exec("DELETE FROM wallets")
	}
}

func TestMain(m *testing.M) {
	setup()
	code := m.Run()
	os.Exit(code)
}

type stubScheduler struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (s *stubScheduler) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func (s *stubScheduler) count(taskType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.Type() == taskType {
			n++
		}
	}
	return n
}

type stubPayout struct {
	mu        sync.Mutex
	disbursed []string
}

func (p *stubPayout) Disburse(w *models.Withdrawal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disbursed = append(p.disbursed, w.Reference)
	return nil
}

func (p *stubPayout) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.disbursed)
}

func testSettings() config.Settings {
	return config.Settings{
		SlaDuration:        time.Minute,
		CompensationAmount: 1000.0,
		SchedulerMaxRetry:  3,
		EnqueueMaxRetry:    1,
		MinimumWithdrawal:  100.0,
		MaximumWithdrawal:  1000000.0,
	}
}

func newTestService() (*SettlementService, *stubScheduler, *stubPayout) {
	scheduler := &stubScheduler{}
	payout := &stubPayout{}
	svc := NewSettlementService(
		testDB,
		NewLedgerService(testDB),
		NewCompensationPolicy(1000.0),
		payout,
		scheduler,
		testSettings(),
	)
	return svc, scheduler, payout
}

func seedWallet(userId int, balance float64) {
	testDB.Create(&models.Wallet{
		UserId:           userId,
		Username:         "settler",
		AvailableBalance: balance,
		Currency:         "NGN",
	})
}

func walletBalance(t *testing.T, userId int) float64 {
	t.Helper()
	var wallet models.Wallet
	if err := testDB.Where("user_id = ?", userId).First(&wallet).Error; err != nil {
		t.Fatalf("Failed to load wallet: %v", err)
	}
	return wallet.AvailableBalance
}

func backdateTimer(t *testing.T, withdrawalId int, d time.Duration) {
	t.Helper()
	err := testDB.Model(&models.Withdrawal{}).Where("id = ?", withdrawalId).
		UpdateColumn("timer_started_at", time.Now().Add(-d)).Error
	if err != nil {
		t.Fatalf("Failed to backdate timer: %v", err)
	}
}

func TestCreateWithdrawal(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, scheduler, _ := newTestService()
	seedWallet(701, 100000.0)

	result, err := svc.CreateWithdrawal(CreateWithdrawalDTO{
		UserId:      701,
		Amount:      50000.0,
		Method:      models.MethodBankTransfer,
		Destination: "0123456789",
	})
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}

	w := result.Withdrawal
	assert.Equal(t, models.WithdrawalPending, w.Status)
	assert.Equal(t, 50000.0, w.Amount)
	assert.NotEmpty(t, w.Reference)
	assert.Equal(t, w.TimerStartedAt.Add(time.Minute), result.TimerExpiresAt)
	assert.Equal(t, 50000.0, walletBalance(t, 701))

	// One delayed evaluation scheduled for the new withdrawal.
	assert.Equal(t, 1, scheduler.count(TypeWithdrawalEvaluate))

	// The reservation debit is journaled.
	var trx models.Transaction
	err = testDB.Where("transaction_no = ?", w.Reference).First(&trx).Error
	if err != nil {
		t.Fatalf("Expected journal entry for %s: %v", w.Reference, err)
	}
	assert.Equal(t, "debit", trx.TrxType)
	assert.Equal(t, 50000.0, trx.Amount)
	// Running balance in the journal is the wallet balance after the debit
	// committed, not a value derived from a pre-transaction snapshot.
	assert.Equal(t, walletBalance(t, 701), trx.Balance)
	assert.Equal(t, 50000.0, trx.Balance)
}

func TestCreateWithdrawalInsufficientBalance(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, scheduler, _ := newTestService()
	seedWallet(702, 500.0)

	_, err := svc.CreateWithdrawal(CreateWithdrawalDTO{
		UserId:      702,
		Amount:      600.0,
		Method:      models.MethodBankTransfer,
		Destination: "0123456789",
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// No record created, no balance change, nothing scheduled.
	var count int64
	testDB.Model(&models.Withdrawal{}).Where("user_id = ?", 702).Count(&count)
	assert.Equal(t, int64(0), count)
	assert.Equal(t, 500.0, walletBalance(t, 702))
	assert.Equal(t, 0, scheduler.count(TypeWithdrawalEvaluate))
}

func TestCreateWithdrawalValidation(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _, _ := newTestService()
	seedWallet(703, 5000.0)

	cases := []CreateWithdrawalDTO{
		{UserId: 703, Amount: 0, Method: models.MethodBankTransfer, Destination: "0123"},
		{UserId: 703, Amount: -50, Method: models.MethodBankTransfer, Destination: "0123"},
		{UserId: 703, Amount: 500, Method: models.MethodBankTransfer, Destination: ""},
		{UserId: 703, Amount: 500, Method: "carrier-pigeon", Destination: "0123"},
		{UserId: 703, Amount: 50, Method: models.MethodMobileMoney, Destination: "0123"}, // below minimum
	}
	for _, dto := range cases {
		_, err := svc.CreateWithdrawal(dto)
		assert.ErrorIs(t, err, ErrValidation)
	}

	assert.Equal(t, 5000.0, walletBalance(t, 703))

	_, err := svc.CreateWithdrawal(CreateWithdrawalDTO{
		UserId: 99999, Amount: 500, Method: models.MethodCrypto, Destination: "0xabc",
	})
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestEvaluateWithinWindow(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _, payout := newTestService()
	seedWallet(704, 100000.0)

	result, err := svc.CreateWithdrawal(CreateWithdrawalDTO{
		UserId: 704, Amount: 50000.0, Method: models.MethodBankTransfer, Destination: "0123456789",
	})
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}

	w, err := svc.EvaluateWithdrawal(result.Withdrawal.ID)
	if err != nil {
		t.Fatalf("EvaluateWithdrawal failed: %v", err)
	}

	assert.Equal(t, models.WithdrawalCompleted, w.Status)
	assert.NotNil(t, w.ProcessedAt)
	assert.False(t, w.TimerExpired)
	// Funds were already reserved; completion is a status change only.
	assert.Equal(t, 50000.0, walletBalance(t, 704))
	assert.Equal(t, 1, payout.calls())

	// Redelivery is a no-op: no second payout, no balance movement.
	w, err = svc.EvaluateWithdrawal(result.Withdrawal.ID)
	if err != nil {
		t.Fatalf("Redelivered evaluation failed: %v", err)
	}
	assert.Equal(t, models.WithdrawalCompleted, w.Status)
	assert.Equal(t, 1, payout.calls())
	assert.Equal(t, 50000.0, walletBalance(t, 704))
}

func TestEvaluateBreachedWindow(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, scheduler, payout := newTestService()
	seedWallet(705, 100000.0)

	result, err := svc.CreateWithdrawal(CreateWithdrawalDTO{
		UserId: 705, Amount: 50000.0, Method: models.MethodMobileMoney, Destination: "+2348012345678",
	})
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}

	// Deliver the job late: 75s elapsed against a 60s window.
	backdateTimer(t, result.Withdrawal.ID, 75*time.Second)

	w, err := svc.EvaluateWithdrawal(result.Withdrawal.ID)
	if err != nil {
		t.Fatalf("EvaluateWithdrawal failed: %v", err)
	}

	assert.Equal(t, models.WithdrawalCompensated, w.Status)
	assert.True(t, w.TimerExpired)
	assert.True(t, w.CompensationPaid)
	assert.Equal(t, 1000.0, w.CompensationAmount)
	assert.NotNil(t, w.ProcessedAt)

	// Balance gains exactly the flat compensation, not the withdrawal amount.
	assert.Equal(t, 51000.0, walletBalance(t, 705))
	// No payout happens on the compensated path.
	assert.Equal(t, 0, payout.calls())
	// The late event went to the queue.
	assert.Equal(t, 1, scheduler.count(TypeWithdrawalEvent))

	// Redelivery must not credit a second time.
	w, err = svc.EvaluateWithdrawal(result.Withdrawal.ID)
	if err != nil {
		t.Fatalf("Redelivered evaluation failed: %v", err)
	}
	assert.Equal(t, models.WithdrawalCompensated, w.Status)
	assert.Equal(t, 51000.0, walletBalance(t, 705))
	assert.Equal(t, 1, scheduler.count(TypeWithdrawalEvent))
}

func TestCancelWithdrawal(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _, _ := newTestService()
	seedWallet(706, 100000.0)

	result, err := svc.CreateWithdrawal(CreateWithdrawalDTO{
		UserId: 706, Amount: 50000.0, Method: models.MethodStablecoin, Destination: "TX9abc",
	})
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}
	assert.Equal(t, 50000.0, walletBalance(t, 706))

	w, err := svc.CancelWithdrawal(result.Withdrawal.ID, 706)
	if err != nil {
		t.Fatalf("CancelWithdrawal failed: %v", err)
	}

	assert.Equal(t, models.WithdrawalCancelled, w.Status)
	assert.NotNil(t, w.ProcessedAt)
	// Full, exact refund.
	assert.Equal(t, 100000.0, walletBalance(t, 706))

	// A second cancel is rejected and does not refund again.
	_, err = svc.CancelWithdrawal(result.Withdrawal.ID, 706)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 100000.0, walletBalance(t, 706))
}

func TestCancelAfterCompleted(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _, _ := newTestService()
	seedWallet(707, 100000.0)

	result, err := svc.CreateWithdrawal(CreateWithdrawalDTO{
		UserId: 707, Amount: 50000.0, Method: models.MethodBankTransfer, Destination: "0123456789",
	})
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}

	if _, err := svc.EvaluateWithdrawal(result.Withdrawal.ID); err != nil {
		t.Fatalf("EvaluateWithdrawal failed: %v", err)
	}

	_, err = svc.CancelWithdrawal(result.Withdrawal.ID, 707)
	assert.ErrorIs(t, err, ErrInvalidState)

	w, _ := svc.GetWithdrawalDetails(result.Withdrawal.ID, 707)
	assert.Equal(t, models.WithdrawalCompleted, w.Status)
	assert.Equal(t, 50000.0, walletBalance(t, 707))
}

func TestCancelOwnership(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _, _ := newTestService()
	seedWallet(708, 100000.0)
	seedWallet(709, 100000.0)

	result, err := svc.CreateWithdrawal(CreateWithdrawalDTO{
		UserId: 708, Amount: 50000.0, Method: models.MethodBankTransfer, Destination: "0123456789",
	})
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}

	// Another user cannot see or cancel it by guessing the id.
	_, err = svc.GetWithdrawalDetails(result.Withdrawal.ID, 709)
	assert.ErrorIs(t, err, ErrWithdrawalNotFound)

	_, err = svc.CancelWithdrawal(result.Withdrawal.ID, 709)
	assert.ErrorIs(t, err, ErrWithdrawalNotFound)
	assert.Equal(t, 50000.0, walletBalance(t, 708))
}

func TestGetWithdrawalHistory(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _, _ := newTestService()
	seedWallet(710, 100000.0)

	references := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		result, err := svc.CreateWithdrawal(CreateWithdrawalDTO{
			UserId: 710, Amount: 1000.0, Method: models.MethodBankTransfer, Destination: "0123456789",
		})
		if err != nil {
			t.Fatalf("CreateWithdrawal failed: %v", err)
		}
		references = append(references, result.Withdrawal.Reference)
		time.Sleep(10 * time.Millisecond)
	}

	list, total, err := svc.GetWithdrawalHistory(HistoryDTO{UserId: 710, Limit: 2})
	if err != nil {
		t.Fatalf("GetWithdrawalHistory failed: %v", err)
	}

	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 2)
	// Newest first.
	assert.Equal(t, references[2], list[0].Reference)
	assert.Equal(t, references[1], list[1].Reference)
}

// TestConcurrentCancelEvaluate races a user cancellation against a late
// scheduled evaluation on the same pending withdrawal. Exactly one terminal
// transition may win, and the balance must reflect only the winner's credit.
func TestConcurrentCancelEvaluate(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc, _, _ := newTestService()

	const rounds = 20
	const start = 100000.0
	const amount = 50000.0

	for i := 0; i < rounds; i++ {
		userId := 720 + i
		seedWallet(userId, start)

		result, err := svc.CreateWithdrawal(CreateWithdrawalDTO{
			UserId: userId, Amount: amount, Method: models.MethodBankTransfer, Destination: "0123456789",
		})
		if err != nil {
			t.Fatalf("round %d: CreateWithdrawal failed: %v", i, err)
		}
		// Make the evaluation take the compensation path so both racers
		// want to credit the wallet.
		backdateTimer(t, result.Withdrawal.ID, 2*time.Minute)

		var wg sync.WaitGroup
		var cancelErr, evalErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = svc.CancelWithdrawal(result.Withdrawal.ID, userId)
		}()
		go func() {
			defer wg.Done()
			_, evalErr = svc.EvaluateWithdrawal(result.Withdrawal.ID)
		}()
		wg.Wait()

		if evalErr != nil {
			t.Fatalf("round %d: evaluate returned error: %v", i, evalErr)
		}

		final, err := svc.GetWithdrawalDetails(result.Withdrawal.ID, userId)
		if err != nil {
			t.Fatalf("round %d: reload failed: %v", i, err)
		}
		balance := walletBalance(t, userId)

		switch final.Status {
		case models.WithdrawalCancelled:
			assert.NoError(t, cancelErr, "round %d: cancel won but reported error", i)
			assert.Equal(t, start, balance, "round %d: cancel winner must refund in full", i)
		case models.WithdrawalCompensated:
			assert.ErrorIs(t, cancelErr, ErrInvalidState, "round %d: losing cancel must report invalid state", i)
			assert.Equal(t, start-amount+1000.0, balance, "round %d: compensation winner credits the flat amount", i)
		default:
			t.Fatalf("round %d: unexpected terminal status %s", i, final.Status)
		}
	}
}
