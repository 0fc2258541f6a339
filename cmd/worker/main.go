package main

import (
	"log"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"settlement-service/internal/config"
	"settlement-service/internal/database"
	"settlement-service/internal/services"
	"settlement-service/internal/worker"
)

func main() {
	// Load env
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found in ../../.env, trying .env")
		if err := godotenv.Load(".env"); err != nil {
			log.Println("No .env file found, using system env")
		}
	}

	settings := config.Load()

	// Connect DB
	database.Connect()
	db := database.DB

	// The worker enqueues follow-up tasks (late events) through its own client.
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: settings.RedisAddr})
	defer asynqClient.Close()

	// Init Services
	ledgerService := services.NewLedgerService(db)
	compensationPolicy := services.NewCompensationPolicy(settings.CompensationAmount)
	payoutExecutor := services.NewHTTPPayoutExecutor(db)
	settlementService := services.NewSettlementService(
		db,
		ledgerService,
		compensationPolicy,
		payoutExecutor,
		asynqClient,
		settings,
	)
	eventService := services.NewEventService(settings.NotificationUrl)

	redisOpt := asynq.RedisClientOpt{Addr: settings.RedisAddr}

	log.Println("Starting Asynq Worker...")
	worker.StartWorker(redisOpt, settlementService, eventService)
}
