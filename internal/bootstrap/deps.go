// Package bootstrap wires configuration, infrastructure and adapters
// into the running worker.
package bootstrap

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"mailroom/adapter/out/dispatch"
	"mailroom/adapter/out/mail"
	"mailroom/adapter/out/ocr"
	"mailroom/adapter/out/persistence"
	"mailroom/adapter/out/storage"
	"mailroom/config"
	"mailroom/core/domain"
	"mailroom/core/port/out"
	"mailroom/core/service/classify"
	"mailroom/core/service/extract"
	"mailroom/core/service/ingest"
	"mailroom/core/service/route"
	"mailroom/infra/database"
	"mailroom/pkg/guard"
)

type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client

	MessageRepo out.MessageRepository
	BlobStore   *storage.S3Store
	Transport   out.MailTransport
	Sender      out.MailSender
	Dispatcher  out.StageDispatcher

	Guard      *guard.Guard
	Ingestor   *ingest.Ingestor
	Classifier *classify.AIClassifier
	Extractor  *extract.Processor
	Router     *route.Router
}

func NewDependencies(cfg *config.Config, log zerolog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Database (pgxpool)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// sqlx handle for the adapters; simple protocol to stay
	// PgBouncer-compatible
	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis backs the shared resource guard counters and the stage
	// streams. Without it the guard falls back to process-local state.
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Redis = redisClient
		cleanups = append(cleanups, func() { redisClient.Close() })
	} else {
		log.Warn().Msg("REDIS_URL not set, guard counters are process-local and dispatch is disabled")
	}

	// Object storage
	blobs, err := storage.New(storage.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	}, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := blobs.EnsureBucket(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.BlobStore = blobs

	// Adapters
	deps.MessageRepo = persistence.NewMessageAdapter(sqlDB)
	deps.Transport = mail.NewIMAPAdapter(mail.IMAPConfig{
		Host:     cfg.IMAPHost,
		Port:     cfg.IMAPPort,
		Username: cfg.IMAPUsername,
		Password: cfg.IMAPPassword,
		Mailbox:  cfg.IMAPMailbox,
	}, log)
	deps.Sender = mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Enabled:  cfg.OutboundEnabled,
	}, log)
	deps.Dispatcher = dispatch.NewStreamDispatcher(deps.Redis, log)

	// Resource guard shared by every worker through Redis
	deps.Guard = guard.New(deps.Redis, guard.Config{
		TokenCeiling:     cfg.AITokensPerHour,
		MaxConcurrent:    cfg.AIMaxConcurrent,
		Window:           time.Hour,
		FailureThreshold: cfg.AIBreakerThreshold,
		Cooldown:         cfg.AIBreakerCooldown,
	}, log)

	// Services
	deps.Ingestor = ingest.NewIngestor(deps.MessageRepo, deps.BlobStore, log)
	deps.Classifier = classify.NewAIClassifier(
		openai.NewClient(cfg.OpenAIAPIKey),
		deps.Guard,
		classify.AIConfig{
			Model:              cfg.LLMModel,
			MaxTokens:          cfg.LLMMaxTokens,
			Timeout:            cfg.LLMTimeout,
			FallbackCategories: fallbackCategories(cfg.AIFallbackCategories),
		},
		log,
	)
	deps.Extractor = extract.NewProcessor(
		extract.NewOCRService(
			ocr.NewFitzRasterizer(log),
			ocr.NewTesseractRecognizer(cfg.OCRLanguages, log),
			log,
		),
		log,
	)
	deps.Router = route.NewRouter(cfg.ReviewThreshold)

	return deps, cleanup, nil
}

func fallbackCategories(names []string) []domain.Category {
	out := make([]domain.Category, 0, len(names))
	for _, name := range names {
		if domain.ValidCategory(name) {
			out = append(out, domain.Category(name))
		}
	}
	return out
}
