package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/stafflane/be-hr-requests/internal/client"
	"github.com/stafflane/be-hr-requests/internal/config"
	"github.com/stafflane/be-hr-requests/internal/database"
	"github.com/stafflane/be-hr-requests/internal/dedup"
	"github.com/stafflane/be-hr-requests/internal/handler"
	"github.com/stafflane/be-hr-requests/internal/logger"
	"github.com/stafflane/be-hr-requests/internal/middleware"
	"github.com/stafflane/be-hr-requests/internal/notification"
	"github.com/stafflane/be-hr-requests/internal/repository"
	"github.com/stafflane/be-hr-requests/internal/service"
	"github.com/stafflane/be-hr-requests/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("environment", cfg.Service.Environment).
		Msg("Starting HR Requests Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Str("database", cfg.Database.Database).Msg("Database connected")

	// NATS is optional: without a broker the service still runs, it just
	// skips event publishing.
	var natsClient *client.NATSClient
	if nc, err := client.ConnectNATS(cfg.NATS.URL); err != nil {
		log.Warn().Err(err).Msg("NATS unavailable, event publishing disabled")
	} else {
		natsClient = nc
		defer natsClient.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connected")
	}
	publisher := client.NewNotificationPublisher(natsClient, cfg.NATS.SubjectPrefix, log.Logger)

	// Repositories
	requestRepo := repository.NewRequestRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	workflowTemplateRepo := repository.NewWorkflowTemplateRepository(db)
	workflowExecutionRepo := repository.NewWorkflowExecutionRepository(db)

	// Workflow core
	sequences := workflow.DefaultSequences()
	machine := workflow.NewMachine(requestRepo, sequences, log)
	validator := workflow.NewValidator(directoryRepo)
	engine := workflow.NewEngine(workflowExecutionRepo, directoryRepo, log)
	escalator := workflow.NewEscalator(workflowExecutionRepo, engine, log)

	// Notification pipeline
	permissionTable := notification.DefaultPermissionTable()
	resolver := notification.NewResolver(permissionTable, directoryRepo, log)
	classifier := notification.NewDestinationClassifier(requestRepo)
	dispatcher := notification.NewDispatcher(
		notification.NewRouter(),
		resolver,
		classifier,
		templateRepo,
		notificationRepo,
		publisher,
		cfg.Portal.BaseURL,
		log,
	)

	// Services
	guard := dedup.NewGuard(cfg.Dedup.SweepInterval)
	requestService := service.NewRequestService(requestRepo, sequences, guard, dispatcher, cfg.Dedup.TTL, log)
	approvalService := service.NewApprovalService(requestRepo, directoryRepo, machine, permissionTable, sequences, dispatcher, log)
	workflowService := service.NewWorkflowAdminService(workflowTemplateRepo, workflowExecutionRepo, validator, engine, log)
	feedService := service.NewNotificationFeedService(notificationRepo, templateRepo)

	// HTTP server
	httpHandler := handler.NewHTTPHandler(requestService, approvalService, workflowService, feedService, log)
	router := mux.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.Recovery(&log.Logger),
		middleware.Logger(&log.Logger),
		middleware.CORS([]string{"*"}),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)
	httpHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Step-timeout escalation sweep
	var sweeper *cron.Cron
	if cfg.Escalator.Enabled {
		sweeper = cron.New()
		if _, err := sweeper.AddFunc(cfg.Escalator.Schedule, func() {
			escalator.Sweep(ctx)
		}); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Escalator.Schedule).Msg("Invalid escalator schedule")
		}
		sweeper.Start()
		log.Info().Str("schedule", cfg.Escalator.Schedule).Msg("Escalation sweep scheduled")
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	cancel()
	if sweeper != nil {
		<-sweeper.Stop().Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown")
	}
	log.Info().Msg("Server stopped")
}
