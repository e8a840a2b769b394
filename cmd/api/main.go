package main

import (
	"context"
	"os"
	"time"

	_ "procurement/api/swagger" // swagger docs
	"procurement/internal/config"
	"procurement/internal/database"
	"procurement/internal/handler"
	"procurement/internal/middleware"
	"procurement/internal/repository"
	"procurement/internal/service"
	"procurement/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Procurement Settlement API
// @version         1.0
// @description     Back-office API for purchase order intake, receipt grouping and supplier settlement.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, relying on environment variables")
	}

	cfg := config.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.App.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	db, err := database.NewConnection(cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}
	log.Info().Str("host", cfg.Database.Host).Msg("connected to postgres")

	middleware.InitAuth(cfg.JWT.Secret)

	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Repository -> Service -> Handler
	txm := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	inviteRepo := repository.NewInviteRepository(db)
	supplierRepo := repository.NewSupplierRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	userService := service.NewUserService(userRepo, inviteRepo, auditRepo, txm, cfg.JWT, cfg.Invite)
	supplierService := service.NewSupplierService(supplierRepo, ledgerRepo)
	orderService := service.NewOrderService(orderRepo, supplierRepo, auditRepo, txm)
	receiptService := service.NewReceiptService(receiptRepo, orderRepo, auditRepo, txm)
	settlementService := service.NewSettlementService(receiptRepo, orderRepo, ledgerRepo, auditRepo, txm, wsHub)
	ledgerService := service.NewLedgerService(ledgerRepo, auditRepo, txm)
	auditService := service.NewAuditService(auditRepo)

	userHandler := handler.NewUserHandler(userService)
	supplierHandler := handler.NewSupplierHandler(supplierService)
	orderHandler := handler.NewOrderHandler(orderService)
	receiptHandler := handler.NewReceiptHandler(receiptService, settlementService, idempotencyRepo)
	ledgerHandler := handler.NewLedgerHandler(ledgerService)
	auditHandler := handler.NewAuditHandler(auditService)

	// Nightly audit retention and idempotency cleanup
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	_, err = scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := auditService.Maintain(ctx, cfg.Audit.ArchiveAfter, cfg.Audit.PurgeAfter); err != nil {
				log.Error().Err(err).Msg("audit maintenance failed")
			}
			if n, err := idempotencyRepo.DeleteExpired(ctx); err != nil {
				log.Error().Err(err).Msg("idempotency cleanup failed")
			} else if n > 0 {
				log.Info().Int64("deleted", n).Msg("expired idempotency keys cleaned")
			}
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule maintenance job")
	}
	scheduler.Start()
	defer func() { _ = scheduler.Shutdown() }()

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "Idempotency-Key"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, []byte(cfg.JWT.Secret))
	})

	userHandler.RegisterRoutes(router.Group(""))
	supplierHandler.RegisterRoutes(router.Group(""))
	orderHandler.RegisterRoutes(router.Group(""))
	receiptHandler.RegisterRoutes(router.Group(""))
	ledgerHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))

	log.Info().Str("port", cfg.App.Port).Msg("server listening")
	if err := router.Run(":" + cfg.App.Port); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
