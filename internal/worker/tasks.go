package worker

import (
	"encoding/json"

	"settlement-service/internal/services"

	"github.com/hibiken/asynq"
)

// Task Types (mirrored in internal/services to avoid a cycle)
const (
	TypeWithdrawalEvaluate = "withdrawal-evaluate"
	TypeWithdrawalEvent    = "withdrawal-event"
)

// Task Creators

func NewWithdrawalEvaluateTask(payload services.EvaluateJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWithdrawalEvaluate, data), nil
}

func NewWithdrawalEventTask(payload services.WithdrawalEvent) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWithdrawalEvent, data), nil
}
