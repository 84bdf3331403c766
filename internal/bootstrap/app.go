package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ivioje/globe-scholars/internal/accounts"
	googleauth "github.com/ivioje/globe-scholars/internal/auth"
	"github.com/ivioje/globe-scholars/internal/convert"
	"github.com/ivioje/globe-scholars/internal/export"
	"github.com/ivioje/globe-scholars/internal/queue"
	"github.com/ivioje/globe-scholars/internal/services/health"
	"github.com/ivioje/globe-scholars/internal/shared/auth"
	"github.com/ivioje/globe-scholars/internal/shared/config"
	"github.com/ivioje/globe-scholars/internal/shared/server"
	"github.com/ivioje/globe-scholars/internal/shared/storage/db"
	"github.com/ivioje/globe-scholars/internal/shared/storage/object"
	gcsstore "github.com/ivioje/globe-scholars/internal/shared/storage/object/gcs"
	localstore "github.com/ivioje/globe-scholars/internal/shared/storage/object/local"
	s3store "github.com/ivioje/globe-scholars/internal/shared/storage/object/s3"
	"github.com/ivioje/globe-scholars/internal/shared/telemetry"
	"github.com/ivioje/globe-scholars/internal/works"
)

// App holds shared dependencies.
type App struct {
	Config              config.Config
	Router              *gin.Engine
	DB                  *sql.DB
	Store               object.ObjectStore
	Queue               queue.Client
	Tokens              *auth.Issuer
	WorksRepo           works.Repo
	AccountsRepo        accounts.Repo
	WorksService        *works.Service
	AccountsService     *accounts.Service
	ConversionProcessor *convert.Processor
	GoogleAuth          *googleauth.GoogleService
}

// Build prepares shared dependencies and the HTTP router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewIssuer(cfg.JWTSecret, cfg.Env, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Tokens: tokens,
	}
	buildServices(app)

	queueClient, err := buildQueue(ctx, cfg, app.ConversionProcessor)
	if err != nil {
		return nil, err
	}
	app.Queue = queueClient
	app.WorksService.JobQueue = queueClient

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		Tokens:          tokens,
		Health:          health.NewService(sqlDB),
		WorksHandler:    works.NewHandler(app.WorksService, app.AccountsService, cfg.PublicBaseURL),
		AccountsHandler: accounts.NewHandler(app.AccountsService),
		ExportHandler:   export.NewHandler(app.AccountsService),
		GoogleAuth:      app.GoogleAuth,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if config.IsDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{
				"reason": "DATABASE_URL empty",
				"env":    cfg.Env,
			})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if config.IsDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{
				"reason": "database connect failed",
				"env":    cfg.Env,
				"error":  err.Error(),
			})
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "gcs":
		return gcsstore.New(ctx, cfg.GCSBucket, cfg.GCSPrefix, cfg.GCSCredentialsFile)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

// buildQueue returns the SQS client when a queue is configured. Dev-like
// environments without one convert in-process instead.
func buildQueue(ctx context.Context, cfg config.Config, processor *convert.Processor) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) != "" {
		return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.QueueURL)
	}
	if config.IsDevLike(cfg.Env) {
		telemetry.Info("bootstrap.inline_conversion", map[string]any{
			"reason": "GS_SQS_QUEUE_URL empty",
			"env":    cfg.Env,
		})
		return newInlineDispatcher(processor), nil
	}
	telemetry.Warn("bootstrap.queue_disabled", map[string]any{
		"reason": "GS_SQS_QUEUE_URL empty",
		"env":    cfg.Env,
	})
	return nil, nil
}

func buildServices(app *App) {
	if app.DB != nil {
		app.WorksRepo = &works.PGRepo{DB: app.DB}
		app.AccountsRepo = &accounts.PGRepo{DB: app.DB}
	} else {
		app.WorksRepo = works.NewMemoryRepo()
		app.AccountsRepo = accounts.NewMemoryRepo()
	}

	app.WorksService = &works.Service{
		Repo:  app.WorksRepo,
		Store: app.Store,
	}
	app.AccountsService = &accounts.Service{
		Repo:   app.AccountsRepo,
		Tokens: app.Tokens,
		Stats:  app.WorksService,
	}
	app.ConversionProcessor = convert.NewProcessor(app.WorksService, app.Store)
	app.GoogleAuth = googleauth.NewGoogleService(
		app.Config.GoogleClientID,
		app.Config.GoogleClientSecret,
		app.Config.GoogleRedirectURL,
		app.Config.UIRedirectURL,
		app.AccountsService,
	)
}
