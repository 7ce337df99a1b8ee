package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/hafsa-erp/hafsa-erp/internal/activity"
	"github.com/hafsa-erp/hafsa-erp/internal/app"
	"github.com/hafsa-erp/hafsa-erp/internal/auth"
	"github.com/hafsa-erp/hafsa-erp/internal/catalog"
	"github.com/hafsa-erp/hafsa-erp/internal/clients"
	"github.com/hafsa-erp/hafsa-erp/internal/observability"
	"github.com/hafsa-erp/hafsa-erp/internal/purchases"
	"github.com/hafsa-erp/hafsa-erp/internal/quotes"
	"github.com/hafsa-erp/hafsa-erp/internal/rbac"
	"github.com/hafsa-erp/hafsa-erp/internal/repairs"
	"github.com/hafsa-erp/hafsa-erp/internal/reports"
	"github.com/hafsa-erp/hafsa-erp/internal/sales"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
	"github.com/hafsa-erp/hafsa-erp/internal/suppliers"
	"github.com/hafsa-erp/hafsa-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "hafsa_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	locker := redislock.New(redisClient)
	recorder := shared.NewActivityRecorder(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger, Activity: recorder}

	clientsRepo := clients.NewRepository(dbpool)
	balanceCache := clients.NewBalanceCache(redisClient, cfg.BalanceCacheTTL)
	clientsService := clients.NewService(clientsRepo, balanceCache, recorder)
	clientsHandler := clients.NewHandler(logger, clientsService)

	suppliersRepo := suppliers.NewRepository(dbpool)
	suppliersService := suppliers.NewService(suppliersRepo, recorder)
	suppliersHandler := suppliers.NewHandler(logger, suppliersService)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, recorder)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(salesRepo, balanceCache, recorder, locker, cfg.PaymentDupWindow)
	salesHandler := sales.NewHandler(logger, salesService)

	purchasesRepo := purchases.NewRepository(dbpool)
	purchasesService := purchases.NewService(purchasesRepo, recorder, locker, cfg.PaymentDupWindow)
	purchasesHandler := purchases.NewHandler(logger, purchasesService)

	repairsRepo := repairs.NewRepository(dbpool)
	repairsService := repairs.NewService(repairsRepo, recorder)
	repairsHandler := repairs.NewHandler(logger, repairsService)

	quotesRepo := quotes.NewRepository(dbpool)
	quotesService := quotes.NewService(quotesRepo, salesService, recorder)
	quotesHandler := quotes.NewHandler(logger, quotesService)

	activityRepo := activity.NewRepository(dbpool)
	activityService := activity.NewService(activityRepo, recorder)
	activityHandler := activity.NewHandler(logger, activityService)

	reportsRepo := reports.NewRepository(dbpool)
	reportsService := reports.NewService(reportsRepo, recorder, language.French)
	reportsHandler := reports.NewHandler(logger, reportsService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		ClientsHandler:   clientsHandler,
		SuppliersHandler: suppliersHandler,
		CatalogHandler:   catalogHandler,
		SalesHandler:     salesHandler,
		PurchasesHandler: purchasesHandler,
		RepairsHandler:   repairsHandler,
		QuotesHandler:    quotesHandler,
		ActivityHandler:  activityHandler,
		ReportsHandler:   reportsHandler,
		JobHandler:       jobHandler,
		RBACMiddleware:   rbacMiddleware,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
