package main

import (
	"context"
	"crypto/tls"
	"time"

	"support_router_backend/internal/adapters/storage"
	"support_router_backend/internal/agent"
	"support_router_backend/internal/email"
	"support_router_backend/internal/knowledge"
	"support_router_backend/internal/pipeline"
	"support_router_backend/internal/scheduler"
	"support_router_backend/internal/tickets"
	"support_router_backend/platform/ai/embeddings"
	"support_router_backend/platform/config"
	"support_router_backend/platform/db"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/qdrant"
	"support_router_backend/platform/retry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const embeddingProbe = "hola"

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// initTicketStore uses Postgres when DATABASE_URL is set and an in-memory
// store otherwise.
func initTicketStore(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (tickets.Store, func()) {
	if cfg.GetDatabaseURL() == "" {
		log.Warn("DATABASE_URL not configured; tickets are kept in memory")
		return tickets.NewMemoryStore(), func() {}
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	return tickets.NewPostgresStore(pool), pool.Close
}

func initRedis(ctx context.Context, cfg config.SchedulerConfig, log *logger.Logger) *redis.Client {
	if cfg.GetRedisURL() == "" {
		return nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		panic("invalid REDIS_URL: " + err.Error())
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}

	client := redis.NewClient(opt)
	if err := withRetry(ctx, log, "redis connection", 5, time.Second, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	log.Info("redis connection established", "addr", opt.Addr)
	return client
}

func initEmailSender(cfg config.SMTPConfig, log *logger.Logger) email.Sender {
	if !cfg.IsSMTPEnabled() {
		log.Warn("SMTP not configured; support desk e-mails disabled")
		return email.NoopSender{}
	}
	return email.NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetSMTPFromAddress(),
		cfg.GetSMTPFromName(),
	)
}

type knowledgeConfig interface {
	config.QdrantConfig
	config.EmbeddingConfig
}

// initKnowledgeStore uses Qdrant with the embedding API when both are
// configured and an in-memory word-overlap store otherwise.
func initKnowledgeStore(ctx context.Context, cfg knowledgeConfig, log *logger.Logger) (knowledge.Store, func()) {
	if !cfg.IsQdrantEnabled() || !cfg.IsEmbeddingEnabled() {
		log.Warn("Qdrant or embedding API not configured; using in-memory knowledge store")
		return knowledge.NewMemoryStore(), func() {}
	}

	client, err := qdrant.NewClient(qdrant.Config{
		URL:        cfg.GetQdrantURL(),
		APIKey:     cfg.GetQdrantAPIKey(),
		Collection: cfg.GetQdrantCollection(),
	})
	if err != nil {
		panic("failed to initialize qdrant client: " + err.Error())
	}

	embedder := embeddings.NewClient(embeddings.Config{
		BaseURL: cfg.GetEmbeddingAPIURL(),
		APIKey:  cfg.GetEmbeddingAPIKey(),
	})

	// Collection is created at startup when the embedding API answers.
	if vector, err := embedder.Embed(ctx, embeddingProbe); err == nil {
		if err := client.EnsureCollection(ctx, len(vector)); err != nil {
			log.Warn("failed to ensure qdrant collection", "error", err)
		}
	} else {
		log.Warn("embedding API check failed", "error", err)
	}

	log.Info("knowledge store: qdrant", "collection", cfg.GetQdrantCollection())
	return knowledge.NewQdrantStore(embedder, client), func() { _ = client.Close() }
}

type updaterConfig interface {
	config.KnowledgeConfig
	config.MinIOConfig
	config.PipelineConfig
}

func initKnowledgeUpdater(ctx context.Context, cfg updaterConfig, store knowledge.Store, log *logger.Logger) *knowledge.Updater {
	var archiver knowledge.Archiver
	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		bucket := cfg.GetMinioBucketKnowledgeArchive()
		if err := withRetry(ctx, log, "ensure knowledge archive bucket", 5, 2*time.Second, func() error {
			return storageSvc.EnsureBucketExists(ctx, bucket)
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		archiver = knowledge.NewObjectArchiver(storageSvc, bucket)
		log.Info("knowledge archive enabled", "bucket", bucket)
	}

	return knowledge.NewUpdater(store, archiver, retry.Policy{
		Attempts:  cfg.GetKnowledgeWriteBackAttempts(),
		BaseDelay: cfg.GetKnowledgeWriteBackBaseDelay(),
		Timeout:   cfg.GetCollaboratorTimeout(),
	}, log)
}

func initClassifier(cfg config.LLMConfig, replies pipeline.Replies, log *logger.Logger) pipeline.Classifier {
	rules := agent.RuleClassifier{Greeting: replies.Greeting, Thanks: replies.Thanks}
	if !cfg.IsLLMEnabled() {
		log.Warn("LLM not configured; SIMPLE stage uses greeting rules")
		return rules
	}

	classifier, err := agent.NewClassifier(agent.Config{
		APIKey:  cfg.GetLLMAPIKey(),
		BaseURL: cfg.GetLLMBaseURL(),
		Model:   cfg.GetLLMModel(),
	})
	if err != nil {
		log.Error("failed to initialize classifier, falling back to rules", "error", err)
		return rules
	}
	log.Info("SIMPLE stage classifier ready", "model", cfg.GetLLMModel())
	return classifier
}

// initReminders schedules reminders through asynq when Redis is configured
// and in-process timers otherwise.
func initReminders(ctx context.Context, cfg config.SchedulerConfig, enqueuer scheduler.Enqueuer, log *logger.Logger) (pipeline.ReminderScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		timers := scheduler.NewTimerScheduler(enqueuer, log)
		return timers, timers.Stop
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize reminder scheduler client", "error", err)
		panic("failed to initialize reminder scheduler client: " + err.Error())
	}

	worker, err := scheduler.NewWorker(cfg, enqueuer, log)
	if err != nil {
		log.Error("failed to initialize reminder worker", "error", err)
		panic("failed to initialize reminder worker: " + err.Error())
	}

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()

	return client, func() {
		cancel()
		<-done
		_ = client.Close()
	}
}
