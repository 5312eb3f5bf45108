// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for the operator API.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSOrigins() []string
}

// ChannelConfig provides WhatsApp Cloud API settings.
type ChannelConfig interface {
	GetWhatsAppVerifyToken() string
	GetWhatsAppAppSecret() string
	GetWhatsAppAccessToken() string
	GetWhatsAppPhoneNumberID() string
	GetWhatsAppBusinessNumber() string
	GetWhatsAppAPIBaseURL() string
	GetWhatsAppAPIVersion() string
	GetWhatsAppSendRPS() float64
	GetDefaultPhoneRegion() string
}

// TicketWebhookConfig provides the ticket-answer webhook secret.
type TicketWebhookConfig interface {
	GetTicketWebhookSecret() string
}

// PipelineConfig provides orchestration tuning.
type PipelineConfig interface {
	GetQueueWorkers() int
	GetQueueMaxPending() int
	GetHistoryWindow() int
	GetKnowledgeConfidenceThreshold() float64
	GetCollaboratorTimeout() time.Duration
	GetCollaboratorAttempts() int
	GetAwaitingHumanReminder() time.Duration
	GetDedupeTTL() time.Duration
	GetRepliesFile() string
}

// KnowledgeConfig provides settings for the knowledge store updater.
type KnowledgeConfig interface {
	GetKnowledgeWriteBackAttempts() int
	GetKnowledgeWriteBackBaseDelay() time.Duration
}

// QdrantConfig provides settings for Qdrant vector database.
type QdrantConfig interface {
	GetQdrantURL() string
	GetQdrantAPIKey() string
	GetQdrantCollection() string
	IsQdrantEnabled() bool
}

// EmbeddingConfig provides settings for the embedding API service.
type EmbeddingConfig interface {
	GetEmbeddingAPIURL() string
	GetEmbeddingAPIKey() string
	IsEmbeddingEnabled() bool
}

// LLMConfig provides settings for the OpenAI-compatible chat model.
type LLMConfig interface {
	GetLLMAPIKey() string
	GetLLMBaseURL() string
	GetLLMModel() string
	IsLLMEnabled() bool
}

// SchedulerConfig provides Redis/asynq settings.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// MinIOConfig provides settings for the QA archive bucket.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketKnowledgeArchive() string
	IsMinIOEnabled() bool
}

// SMTPConfig provides settings for support desk e-mail notifications.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFromAddress() string
	GetSMTPFromName() string
	GetSupportDeskEmail() string
	IsSMTPEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                         string
	HTTPAddr                    string
	CORSOrigins                 []string
	DatabaseURL                 string
	JWTAccessSecret             string
	WhatsAppVerifyToken         string
	WhatsAppAppSecret           string
	WhatsAppAccessToken         string
	WhatsAppPhoneNumberID       string
	WhatsAppBusinessNumber      string
	WhatsAppAPIBaseURL          string
	WhatsAppAPIVersion          string
	WhatsAppSendRPS             float64
	DefaultPhoneRegion          string
	TicketWebhookSecret         string
	QueueWorkers                int
	QueueMaxPending             int
	HistoryWindow               int
	KnowledgeThreshold          float64
	CollaboratorTimeout         time.Duration
	CollaboratorAttempts        int
	AwaitingHumanReminder       time.Duration
	DedupeTTL                   time.Duration
	RepliesFile                 string
	WriteBackAttempts           int
	WriteBackBaseDelay          time.Duration
	QdrantURL                   string
	QdrantAPIKey                string
	QdrantCollection            string
	EmbeddingAPIURL             string
	EmbeddingAPIKey             string
	LLMAPIKey                   string
	LLMBaseURL                  string
	LLMModel                    string
	RedisURL                    string
	RedisTLSInsecure            bool
	AsynqQueueName              string
	AsynqConcurrency            int
	MinIOEndpoint               string
	MinIOAccessKey              string
	MinIOSecretKey              string
	MinIOUseSSL                 bool
	MinioBucketKnowledgeArchive string
	SMTPHost                    string
	SMTPPort                    int
	SMTPUsername                string
	SMTPPassword                string
	SMTPFromAddress             string
	SMTPFromName                string
	SupportDeskEmail            string
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// ChannelConfig implementation
func (c *Config) GetWhatsAppVerifyToken() string    { return c.WhatsAppVerifyToken }
func (c *Config) GetWhatsAppAppSecret() string      { return c.WhatsAppAppSecret }
func (c *Config) GetWhatsAppAccessToken() string    { return c.WhatsAppAccessToken }
func (c *Config) GetWhatsAppPhoneNumberID() string  { return c.WhatsAppPhoneNumberID }
func (c *Config) GetWhatsAppBusinessNumber() string { return c.WhatsAppBusinessNumber }
func (c *Config) GetWhatsAppAPIBaseURL() string     { return c.WhatsAppAPIBaseURL }
func (c *Config) GetWhatsAppAPIVersion() string     { return c.WhatsAppAPIVersion }
func (c *Config) GetWhatsAppSendRPS() float64       { return c.WhatsAppSendRPS }
func (c *Config) GetDefaultPhoneRegion() string     { return c.DefaultPhoneRegion }

func (c *Config) GetTicketWebhookSecret() string { return c.TicketWebhookSecret }

// PipelineConfig implementation
func (c *Config) GetQueueWorkers() int                     { return c.QueueWorkers }
func (c *Config) GetQueueMaxPending() int                  { return c.QueueMaxPending }
func (c *Config) GetHistoryWindow() int                    { return c.HistoryWindow }
func (c *Config) GetKnowledgeConfidenceThreshold() float64 { return c.KnowledgeThreshold }
func (c *Config) GetCollaboratorTimeout() time.Duration    { return c.CollaboratorTimeout }
func (c *Config) GetCollaboratorAttempts() int             { return c.CollaboratorAttempts }
func (c *Config) GetAwaitingHumanReminder() time.Duration  { return c.AwaitingHumanReminder }
func (c *Config) GetDedupeTTL() time.Duration              { return c.DedupeTTL }
func (c *Config) GetRepliesFile() string                   { return c.RepliesFile }

func (c *Config) GetKnowledgeWriteBackAttempts() int            { return c.WriteBackAttempts }
func (c *Config) GetKnowledgeWriteBackBaseDelay() time.Duration { return c.WriteBackBaseDelay }

// QdrantConfig implementation
func (c *Config) GetQdrantURL() string        { return c.QdrantURL }
func (c *Config) GetQdrantAPIKey() string     { return c.QdrantAPIKey }
func (c *Config) GetQdrantCollection() string { return c.QdrantCollection }
func (c *Config) IsQdrantEnabled() bool {
	return c.QdrantURL != "" && c.QdrantCollection != ""
}

// EmbeddingConfig implementation
func (c *Config) GetEmbeddingAPIURL() string { return c.EmbeddingAPIURL }
func (c *Config) GetEmbeddingAPIKey() string { return c.EmbeddingAPIKey }
func (c *Config) IsEmbeddingEnabled() bool   { return c.EmbeddingAPIURL != "" }

// LLMConfig implementation
func (c *Config) GetLLMAPIKey() string  { return c.LLMAPIKey }
func (c *Config) GetLLMBaseURL() string { return c.LLMBaseURL }
func (c *Config) GetLLMModel() string   { return c.LLMModel }
func (c *Config) IsLLMEnabled() bool    { return c.LLMAPIKey != "" }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketKnowledgeArchive() string {
	return c.MinioBucketKnowledgeArchive
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string        { return c.SMTPHost }
func (c *Config) GetSMTPPort() int           { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string    { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string    { return c.SMTPPassword }
func (c *Config) GetSMTPFromAddress() string { return c.SMTPFromAddress }
func (c *Config) GetSMTPFromName() string    { return c.SMTPFromName }
func (c *Config) GetSupportDeskEmail() string {
	return c.SupportDeskEmail
}
func (c *Config) IsSMTPEnabled() bool {
	return c.SMTPHost != "" && c.SupportDeskEmail != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                         getEnv("APP_ENV", "development"),
		HTTPAddr:                    getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins:                 splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),
		DatabaseURL:                 getEnv("DATABASE_URL", ""),
		JWTAccessSecret:             getEnv("JWT_ACCESS_SECRET", ""),
		WhatsAppVerifyToken:         getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:           getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppAccessToken:         getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID:       getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppBusinessNumber:      getEnv("WHATSAPP_BUSINESS_NUMBER", ""),
		WhatsAppAPIBaseURL:          getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com"),
		WhatsAppAPIVersion:          getEnv("WHATSAPP_API_VERSION", "v22.0"),
		WhatsAppSendRPS:             mustFloat(getEnv("WHATSAPP_SEND_RPS", "20")),
		DefaultPhoneRegion:          getEnv("DEFAULT_PHONE_REGION", "CL"),
		TicketWebhookSecret:         getEnv("TICKET_WEBHOOK_SECRET", ""),
		QueueWorkers:                mustInt(getEnv("QUEUE_WORKERS", "16")),
		QueueMaxPending:             mustInt(getEnv("QUEUE_MAX_PENDING", "3")),
		HistoryWindow:               mustInt(getEnv("HISTORY_WINDOW", "6")),
		KnowledgeThreshold:          mustFloat(getEnv("KNOWLEDGE_CONFIDENCE_THRESHOLD", "0.8")),
		CollaboratorTimeout:         mustDuration(getEnv("COLLABORATOR_TIMEOUT", "20s")),
		CollaboratorAttempts:        mustInt(getEnv("COLLABORATOR_ATTEMPTS", "3")),
		AwaitingHumanReminder:       mustDuration(getEnv("AWAITING_HUMAN_REMINDER", "30m")),
		DedupeTTL:                   mustDuration(getEnv("DEDUPE_TTL", "72h")),
		RepliesFile:                 getEnv("REPLIES_FILE", ""),
		WriteBackAttempts:           mustInt(getEnv("KNOWLEDGE_WRITEBACK_ATTEMPTS", "5")),
		WriteBackBaseDelay:          mustDuration(getEnv("KNOWLEDGE_WRITEBACK_BASE_DELAY", "1s")),
		QdrantURL:                   getEnv("QDRANT_URL", ""),
		QdrantAPIKey:                getEnv("QDRANT_API_KEY", ""),
		QdrantCollection:            getEnv("QDRANT_COLLECTION", "support_knowledge"),
		EmbeddingAPIURL:             getEnv("EMBEDDING_API_URL", ""),
		EmbeddingAPIKey:             getEnv("EMBEDDING_API_KEY", ""),
		LLMAPIKey:                   getEnv("LLM_API_KEY", ""),
		LLMBaseURL:                  getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:                    getEnv("LLM_MODEL", "gpt-4o"),
		RedisURL:                    getEnv("REDIS_URL", ""),
		RedisTLSInsecure:            strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:              getEnv("ASYNQ_QUEUE", "support"),
		AsynqConcurrency:            mustInt(getEnv("ASYNQ_CONCURRENCY", "4")),
		MinIOEndpoint:               getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:              getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:              getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                 strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketKnowledgeArchive: getEnv("MINIO_BUCKET_KNOWLEDGE_ARCHIVE", "knowledge-archive"),
		SMTPHost:                    getEnv("SMTP_HOST", ""),
		SMTPPort:                    mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:                getEnv("SMTP_USERNAME", ""),
		SMTPPassword:                getEnv("SMTP_PASSWORD", ""),
		SMTPFromAddress:             getEnv("SMTP_FROM_ADDRESS", ""),
		SMTPFromName:                getEnv("SMTP_FROM_NAME", "Support Router"),
		SupportDeskEmail:            getEnv("SUPPORT_DESK_EMAIL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings. Secrets have no defaults.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"WHATSAPP_VERIFY_TOKEN", c.WhatsAppVerifyToken},
		{"WHATSAPP_APP_SECRET", c.WhatsAppAppSecret},
		{"WHATSAPP_ACCESS_TOKEN", c.WhatsAppAccessToken},
		{"WHATSAPP_PHONE_NUMBER_ID", c.WhatsAppPhoneNumberID},
		{"TICKET_WEBHOOK_SECRET", c.TicketWebhookSecret},
		{"JWT_ACCESS_SECRET", c.JWTAccessSecret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}
	if c.KnowledgeThreshold <= 0 || c.KnowledgeThreshold > 1 {
		return fmt.Errorf("KNOWLEDGE_CONFIDENCE_THRESHOLD must be in (0, 1]")
	}
	if c.QueueWorkers < 1 {
		return fmt.Errorf("QUEUE_WORKERS must be at least 1")
	}
	if c.QueueMaxPending < 1 {
		return fmt.Errorf("QUEUE_MAX_PENDING must be at least 1")
	}
	if c.CollaboratorTimeout <= 0 {
		return fmt.Errorf("COLLABORATOR_TIMEOUT must be a positive duration")
	}
	if c.DedupeTTL <= 0 {
		return fmt.Errorf("DEDUPE_TTL must be a positive duration")
	}
	if c.IsSMTPEnabled() && c.SMTPFromAddress == "" {
		return fmt.Errorf("SMTP_FROM_ADDRESS is required when SMTP_HOST is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
