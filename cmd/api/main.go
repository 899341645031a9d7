package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "requisition-backend/api/swagger" // swagger docs
	"requisition-backend/internal/auth"
	"requisition-backend/internal/cache"
	"requisition-backend/internal/config"
	"requisition-backend/internal/database"
	"requisition-backend/internal/events"
	"requisition-backend/internal/handler"
	"requisition-backend/internal/ledger"
	"requisition-backend/internal/logger"
	"requisition-backend/internal/middleware"
	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"
	"requisition-backend/internal/service"
	"requisition-backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Material Requisition API
// @version         1.0
// @description     Material requests with DSE and PADIRI approval, issuance, purchase orders, goods receipts and a stock ledger.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config: " + err.Error())
	}
	if err := logger.Init(cfg.Env, cfg.Log.Level); err != nil {
		panic("logger: " + err.Error())
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Database connection failed", zap.Error(err))
	}
	logger.Info("Connected to PostgreSQL successfully.")

	// Permission cache: redis when configured, in-process otherwise
	var (
		redisClient *redis.Client
		permCache   cache.PermissionCache
	)
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Redis connection failed", zap.Error(err))
		}
		permCache = cache.NewRedisPermissionCache(redisClient, cfg.Redis.PermissionTTL)
	} else {
		permCache = cache.NewMemoryPermissionCache(cfg.Redis.PermissionTTL)
	}

	// Events fan out to dashboards and, when enabled, to the broker
	wsHub := websocket.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	go wsHub.Run(hubCtx)

	publishers := events.Multi{wsHub}
	var rabbit *events.RabbitPublisher
	if cfg.RabbitMQ.Enabled {
		rabbit, err = events.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logger.Fatal("RabbitMQ connection failed", zap.Error(err))
		}
		publishers = append(publishers, rabbit)
	}

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db, cfg.Database.TxRetries)
	numbers := repository.NewNumberGenerator(db)
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	siteRepo := repository.NewSiteRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	stockRepo := repository.NewStockRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)
	supplierRepo := repository.NewSupplierRepository(db)
	statsRepo := repository.NewStatisticsRepository(db)

	policy := ledger.Policy{AllowNegative: cfg.Stock.AllowNegative}
	tokens := auth.NewTokenManager(cfg.JWT)

	roleService := service.NewRoleService(roleRepo, userRepo, txManager, permCache)
	userService := service.NewUserService(userRepo, roleRepo, siteRepo, auditRepo, txManager, tokens)
	catalogService := service.NewCatalogService(siteRepo, materialRepo, userRepo, auditRepo, txManager)
	stockService := service.NewStockService(stockRepo, siteRepo, materialRepo, auditRepo, numbers, txManager, policy, publishers)
	requestService := service.NewRequestService(requestRepo, issueRepo, userRepo, siteRepo, materialRepo, stockRepo, auditRepo, numbers, txManager, policy, publishers)
	purchaseService := service.NewPurchaseService(purchaseRepo, supplierRepo, siteRepo, materialRepo, stockRepo, auditRepo, numbers, txManager, policy, publishers)
	supplierService := service.NewSupplierService(supplierRepo, auditRepo, txManager)
	auditService := service.NewAuditService(auditRepo)
	statisticsService := service.NewStatisticsService(statsRepo, requestRepo, stockRepo, purchaseRepo)
	exportService := service.NewExportService(stockRepo, requestRepo)

	if err := roleService.SeedDefaultRolesAndPermissions(ctx); err != nil {
		logger.Fatal("Failed to seed roles and permissions", zap.Error(err))
	}
	if err := userService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		logger.Fatal("Failed to bootstrap admin account", zap.Error(err))
	}

	if err := handler.RegisterValidators(); err != nil {
		logger.Fatal("Failed to register validators", zap.Error(err))
	}
	authMW := middleware.NewAuth(tokens, roleService, cfg.Server.CookieSecure)

	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(middleware.Recovery(), middleware.RequestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ws_clients": wsHub.ClientCount()})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, tokens, authMW.CanRole(model.PermDashboardRead))
	})

	api := router.Group("/api")
	handler.NewUserHandler(userService, authMW).RegisterRoutes(api)
	handler.NewRoleHandler(roleService, authMW).RegisterRoutes(api)
	handler.NewCatalogHandler(catalogService, authMW).RegisterRoutes(api)
	handler.NewRequestHandler(requestService, authMW).RegisterRoutes(api)
	handler.NewStockHandler(stockService, authMW).RegisterRoutes(api)
	handler.NewPurchaseHandler(purchaseService, authMW).RegisterRoutes(api)
	handler.NewSupplierHandler(supplierService, authMW).RegisterRoutes(api)
	handler.NewAuditHandler(auditService, authMW).RegisterRoutes(api)
	handler.NewStatisticsHandler(statisticsService, authMW).RegisterRoutes(api)
	handler.NewExportHandler(exportService, authMW).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	stopHub()
	if rabbit != nil {
		if err := rabbit.Close(); err != nil {
			logger.Warn("RabbitMQ close failed", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Redis close failed", zap.Error(err))
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
