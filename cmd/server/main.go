package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maktaba-platform/be-legal-deposit/internal/client"
	"github.com/maktaba-platform/be-legal-deposit/internal/config"
	"github.com/maktaba-platform/be-legal-deposit/internal/database"
	"github.com/maktaba-platform/be-legal-deposit/internal/handler"
	"github.com/maktaba-platform/be-legal-deposit/internal/logger"
	"github.com/maktaba-platform/be-legal-deposit/internal/middleware"
	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
	"github.com/maktaba-platform/be-legal-deposit/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Legal Deposit Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Connect NATS when configured; notifications degrade to inbox-only
	// without it.
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set, notification events disabled")
	}

	// Load workflow step templates and partner routing table
	workflowData, err := service.LoadWorkflowData(cfg.Workflow.DataFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load workflow data")
	}

	// Initialize repositories
	requestRepo := repository.NewRequestRepository(db)
	partyRepo := repository.NewPartyRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	stepsRepo := repository.NewWorkflowStepsRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Initialize platform service clients
	identityClient := client.NewIdentityClient(cfg.Clients.IdentityURL)
	storageClient := client.NewStorageClient(cfg.Clients.StorageURL)
	publisher := client.NewNotificationPublisher(nc, log.Logger)

	// Initialize services
	notifier := service.NewNotifier(notificationRepo, publisher, log)
	registryService := service.NewRegistryService(partyRepo, requestRepo, log)
	approvalService := service.NewApprovalService(requestRepo, partyRepo, stepsRepo, notifier, workflowData, log)
	workflowService := service.NewWorkflowService(stepsRepo, workflowData, log)
	tokenService := service.NewTokenService(tokenRepo, partyRepo, approvalService, notifier,
		cfg.Workflow.TokenTTL, cfg.Workflow.PublicBaseURL, log)
	routingService := service.NewRoutingService(requestRepo, notifier,
		cfg.Workflow.HomeInstitution, workflowData.Partners, cfg.Workflow.ContactURL, log)
	requestService := service.NewRequestService(requestRepo, stepsRepo, registryService,
		workflowService, tokenService, routingService, notifier, identityClient, storageClient, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(requestService, registryService, tokenService,
		workflowService, routingService, notifier, identityClient, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Request routes
	mux.HandleFunc("/api/v1/requests", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListRequests(w, r)
		case http.MethodPost:
			httpHandler.CreateRequest(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/requests/get", httpHandler.GetRequest)
	mux.HandleFunc("/api/v1/requests/submit", httpHandler.SubmitRequest)
	mux.HandleFunc("/api/v1/requests/attribute-numbers", httpHandler.AttributeNumbers)
	mux.HandleFunc("/api/v1/requests/receive", httpHandler.ReceiveRequest)
	mux.HandleFunc("/api/v1/requests/committee-decision", httpHandler.CommitteeDecision)
	mux.HandleFunc("/api/v1/requests/publish-document", httpHandler.PublishDocument)
	mux.HandleFunc("/api/v1/requests/parties", httpHandler.ListParties)

	// Workflow routes
	mux.HandleFunc("/api/v1/requests/workflow", httpHandler.GetWorkflow)
	mux.HandleFunc("/api/v1/requests/workflow/steps", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			httpHandler.AdvanceStep(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Confirmation routes
	mux.HandleFunc("/api/v1/parties/confirmation-tokens", httpHandler.IssueToken)
	mux.HandleFunc("/api/v1/confirmations/", httpHandler.Confirm)
	mux.HandleFunc("/api/v1/users/pending-confirmations", httpHandler.PendingConfirmations)

	// Notification routes
	mux.HandleFunc("/api/v1/notifications", httpHandler.ListNotifications)
	mux.HandleFunc("/api/v1/notifications/read", httpHandler.MarkNotificationRead)

	// Reproduction routing
	mux.HandleFunc("/api/v1/reproductions/route", httpHandler.RouteReproduction)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.Metrics(h)
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
