package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support_router_backend/internal/conversation"
	"support_router_backend/internal/events"
	apphttp "support_router_backend/internal/http"
	"support_router_backend/internal/knowledge"
	"support_router_backend/internal/notification"
	"support_router_backend/internal/outbound"
	"support_router_backend/internal/pipeline"
	"support_router_backend/internal/queue"
	"support_router_backend/internal/tickets"
	"support_router_backend/internal/webhook"
	"support_router_backend/internal/whatsapp"
	"support_router_backend/platform/config"
	"support_router_backend/platform/keylock"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/retry"
	"support_router_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := map[string]apphttp.HealthChecker{}

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	ticketStore, closeTickets := initTicketStore(ctx, cfg, log)
	defer closeTickets()
	if pinger, ok := ticketStore.(apphttp.HealthChecker); ok {
		health["postgres"] = pinger
	}

	redisClient := initRedis(ctx, cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
		health["redis"] = redisPinger{redisClient}
	}

	var convStore conversation.Store
	if redisClient != nil {
		convStore = conversation.NewRedisStore(redisClient, cfg.GetDedupeTTL())
		log.Info("conversation store: redis", "dedupeTTL", cfg.GetDedupeTTL())
	} else {
		convStore = conversation.NewMemoryStore(cfg.GetDedupeTTL())
		log.Warn("REDIS_URL not configured; conversation state is kept in memory")
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	notificationModule := notification.New(initEmailSender(cfg, log), cfg.GetSupportDeskEmail(), log)
	notificationModule.RegisterHandlers(eventBus)

	replies, err := pipeline.LoadReplies(cfg.GetRepliesFile())
	if err != nil {
		log.Error("failed to load replies file", "error", err, "path", cfg.GetRepliesFile())
		panic("failed to load replies file: " + err.Error())
	}

	collaboratorRetry := retry.Policy{
		Attempts:  cfg.GetCollaboratorAttempts(),
		BaseDelay: 200 * time.Millisecond,
		Timeout:   cfg.GetCollaboratorTimeout(),
	}

	knowledgeStore, closeKnowledge := initKnowledgeStore(ctx, cfg, log)
	defer closeKnowledge()
	updater := initKnowledgeUpdater(ctx, cfg, knowledgeStore, log)

	classifier := initClassifier(cfg, replies, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	ticketsModule := tickets.NewModule(ticketStore, eventBus, log)
	if n, err := ticketsModule.Start(ctx); err != nil {
		log.Error("failed to load open tickets", "error", err)
	} else {
		log.Info("open tickets loaded", "count", n)
	}

	// The ingress path and the dispatcher share key locks so recording an
	// outbound id never interleaves with evaluating an inbound one.
	locks := keylock.New()

	router := queue.NewRouter(convStore, locks, nil, queue.Options{
		Workers:    cfg.GetQueueWorkers(),
		MaxPending: cfg.GetQueueMaxPending(),
	}, log)

	reminders, stopReminders := initReminders(ctx, cfg, router, log)
	defer stopReminders()

	dispatcher := outbound.NewDispatcher(whatsapp.NewClient(cfg, log), convStore, locks, outbound.Options{
		RPS: cfg.GetWhatsAppSendRPS(),
		Retry: retry.Policy{
			Attempts:  cfg.GetCollaboratorAttempts(),
			BaseDelay: 500 * time.Millisecond,
			Timeout:   cfg.GetCollaboratorTimeout(),
			Retryable: whatsapp.NotSent,
		},
	}, log)

	orchestrator := pipeline.New(pipeline.Deps{
		Store:      convStore,
		Classifier: classifier,
		Knowledge:  knowledgeStore,
		Tickets:    ticketsModule.Manager(),
		Dispatcher: dispatcher,
		WriteBack:  updater,
		Reminders:  reminders,
		Bus:        eventBus,
	}, replies, pipeline.Options{
		HistoryWindow: cfg.GetHistoryWindow(),
		Threshold:     cfg.GetKnowledgeConfidenceThreshold(),
		Retry:         collaboratorRetry,
		ReminderAfter: cfg.GetAwaitingHumanReminder(),
	}, log)
	router.SetHandler(orchestrator)

	if n, err := pipeline.RequeuePending(ctx, convStore, router, log); err != nil {
		log.Error("failed to requeue undelivered answers", "error", err, "queued", n)
	} else if n > 0 {
		log.Info("undelivered answers requeued", "count", n)
	}

	val := validator.New()
	webhookModule := webhook.NewModule(cfg, router, ticketsModule.Manager(), convStore, val, log)
	conversationModule := conversation.NewModule(convStore, cfg.GetDefaultPhoneRegion())
	knowledgeModule := knowledge.NewModule(updater, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: health,
		Modules: []apphttp.Module{
			webhookModule,
			ticketsModule,
			conversationModule,
			knowledgeModule,
		},
	}

	server := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           apphttp.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.GetHTTPAddr())
		srvErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	if err := router.Close(shutdownCtx); err != nil {
		log.Error("queue did not drain", "error", err)
	}
	updater.Wait()
	eventBus.Wait()
	log.Info("shutdown complete")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
