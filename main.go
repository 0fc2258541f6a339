package main

import (
	"log"
	"os"

	"settlement-service/internal/config"
	"settlement-service/internal/database"
	"settlement-service/internal/handlers"
	"settlement-service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found in current directory, trying parent")
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found, using system environment variables")
		}
	}

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	}

	settings := config.Load()

	// Initialize Database
	database.Connect()
	database.Migrate()
	db := database.DB

	// Redis/Asynq Client
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

	// Initialize Gin
	r := gin.Default()

	// Ping endpoint
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Welcome To Withdrawal Settlement service",
		})
	})

	// Wallet Routes
	r.POST("/wallets", handlers.CreateWallet)
	r.GET("/wallets/balance", handlers.GetBalance)
	r.GET("/transactions", handlers.GetTransactions)

	// Withdrawal Routes
	withdrawalHandler := handlers.NewWithdrawalHandler(settlementService)
	r.POST("/withdrawals", withdrawalHandler.CreateWithdrawal)
	r.POST("/withdrawals/:id/cancel", withdrawalHandler.CancelWithdrawal)
	r.GET("/withdrawals/:id", withdrawalHandler.GetWithdrawalDetails)
	r.GET("/withdrawals", withdrawalHandler.GetWithdrawalHistory)

	// Start the stuck-withdrawal watchdog
	watchdogService := services.NewWatchdogService(db, asynqClient, settings)
	watchdogService.StartScheduler()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("HTTP Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
