// internal/app/server.go
package app

import (
	"fmt"
	"log"

	"finboard-service/internal/config"
	"finboard-service/internal/db"
	planHandler "finboard-service/internal/handlers/plan"
	subscriptionHandler "finboard-service/internal/handlers/subscription"
	"finboard-service/internal/middleware"
	"finboard-service/internal/migrations"
	"finboard-service/internal/pkg/jwt"
	"finboard-service/internal/pkg/ratelimit"
	"finboard-service/internal/repository/postgres"
	paymentService "finboard-service/internal/service/payment"
	planService "finboard-service/internal/service/plan"
	subscriptionService "finboard-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- Migrations -----
	if err := migrations.Up(s.cfg.DatabaseURL, logger); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Println("[REDIS] ✅ Connected successfully")

	// ----- JWT Verifier -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Payment gateway -----
	gateway, err := paymentService.NewMercadoPagoGateway(paymentService.MercadoPagoConfig{
		AccessToken: s.cfg.GatewayAccessToken,
		Currency:    s.cfg.GatewayCurrency,
		BackURL:     s.cfg.GatewayBackURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to build payment gateway: %w", err)
	}
	if s.cfg.GatewayTestMode {
		logger.Warn("payment gateway running in test mode")
	}

	// ----- Repositories -----
	planRepo := postgres.NewPlanRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	// ----- Services -----
	planSvc := planService.NewPlanService(planRepo, redisClient, s.cfg.CadencePricing, logger)
	subscriptionSvc := subscriptionService.NewSubscriptionService(
		subscriptionRepo,
		planSvc,
		userRepo,
		gateway,
		s.cfg.GatewayTimeout,
		s.cfg.GatewayTestMode,
		logger,
	)

	// ----- Handlers -----
	planHandlerInst := planHandler.NewPlanHandler(planSvc)
	subscriptionHandlerInst := subscriptionHandler.NewSubscriptionHandler(subscriptionSvc)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(verifier)
	limiter := ratelimit.NewLimiter(redisClient)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		PlanHandler:         planHandlerInst,
		SubscriptionHandler: subscriptionHandlerInst,
		AuthMiddleware:      authMiddleware,
		Limiter:             limiter,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("🚀 Server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}
