package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"settlement-service/internal/services"

	"github.com/hibiken/asynq"
)

type Worker struct {
	Settlement *services.SettlementService
	Events     *services.EventService
}

func NewWorker(settlement *services.SettlementService, events *services.EventService) *Worker {
	return &Worker{
		Settlement: settlement,
		Events:     events,
	}
}

// HandleWithdrawalEvaluate runs the SLA evaluation for one withdrawal.
// Delivery is at-least-once; the service's conditional status update makes
// redelivery a no-op, so any returned error is safe to retry.
func (w *Worker) HandleWithdrawalEvaluate(ctx context.Context, t *asynq.Task) error {
	var p services.EvaluateJobPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	withdrawal, err := w.Settlement.EvaluateWithdrawal(p.WithdrawalId)
	if err != nil {
		if errors.Is(err, services.ErrWithdrawalNotFound) {
			return fmt.Errorf("withdrawal %d not found: %w", p.WithdrawalId, asynq.SkipRetry)
		}
		return err
	}

	log.Printf("Evaluated withdrawal %d: status=%s", withdrawal.ID, withdrawal.Status)
	return nil
}

// HandleWithdrawalEvent delivers a terminal-outcome event downstream.
// Failures are retried on the low queue and never touch settlement state.
func (w *Worker) HandleWithdrawalEvent(ctx context.Context, t *asynq.Task) error {
	var p services.WithdrawalEvent
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	return w.Events.Deliver(p)
}

func StartWorker(redisOpt asynq.RedisClientOpt, settlement *services.SettlementService, events *services.EventService) {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	worker := NewWorker(settlement, events)
	mux := asynq.NewServeMux()

	mux.HandleFunc(TypeWithdrawalEvaluate, worker.HandleWithdrawalEvaluate)
	mux.HandleFunc(TypeWithdrawalEvent, worker.HandleWithdrawalEvent)

	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}
