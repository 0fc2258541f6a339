package services

import (
	"log"
	"time"

	"settlement-service/pkg/common"
)

// Event names emitted on terminal outcomes.
const (
	EventWithdrawalLate = "withdrawal.late"
)

// WithdrawalEvent is the payload delivered to downstream notification and
// analytics consumers. Delivery is best-effort and never blocks or reverses
// the financial transition that produced it; EventId lets consumers dedupe
// redeliveries.
type WithdrawalEvent struct {
	EventId            string    `json:"eventId"`
	Event              string    `json:"event"`
	WithdrawalId       int       `json:"withdrawalId"`
	UserId             int       `json:"userId"`
	Amount             float64   `json:"amount"`
	CompensationPaid   bool      `json:"compensationPaid"`
	CompensationAmount float64   `json:"compensationAmount"`
	Reference          string    `json:"reference"`
	Timestamp          time.Time `json:"timestamp"`
}

// EventService delivers withdrawal events to the configured notification
// webhook. With no webhook configured events are logged so they are never
// silently dropped.
type EventService struct {
	NotificationUrl string
}

func NewEventService(notificationUrl string) *EventService {
	return &EventService{NotificationUrl: notificationUrl}
}

func (s *EventService) Deliver(event WithdrawalEvent) error {
	if s.NotificationUrl == "" {
		log.Printf("Event %s (no webhook configured): withdrawal=%d user=%d compensation=%.2f",
			event.Event, event.WithdrawalId, event.UserId, event.CompensationAmount)
		return nil
	}

	_, err := common.Post(s.NotificationUrl, event, nil)
	if err != nil {
		log.Printf("Failed to deliver %s for withdrawal %d: %v", event.Event, event.WithdrawalId, err)
		return err
	}
	return nil
}
