package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/bazaardial/internal/cache"
	"github.com/example/bazaardial/internal/config"
	"github.com/example/bazaardial/internal/database"
	"github.com/example/bazaardial/internal/logger"
	"github.com/example/bazaardial/internal/middleware"
	"github.com/example/bazaardial/internal/repository"
	"github.com/example/bazaardial/internal/routes"
	"github.com/example/bazaardial/internal/services"
	"github.com/example/bazaardial/internal/storage"
	"github.com/example/bazaardial/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer func() { _ = store.Close(context.Background()) }()

	rate, closeRate := openRateStore(ctx, cfg, zl)
	defer closeRate()

	blobs, uploadDir, err := openBlobs(ctx, cfg)
	if err != nil {
		zl.Fatal("failed to open blob store", zap.String("driver", cfg.UploadDriver), zap.Error(err))
	}

	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.TokenExpires, cfg.RefreshExpires)
	sms := services.NewSMSService(services.SMSConfig{
		APIURL:     cfg.SMSAPIURL,
		APIKey:     cfg.SMSAPIKey,
		TemplateID: cfg.SMSTemplateID,
		AppName:    cfg.AppName,
		Timeout:    cfg.SMSTimeout,
		Retries:    cfg.SMSRetries,
	}, zl)
	email := services.NewEmailService(services.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.EmailFrom,
		AppName:  cfg.AppName,
	}, zl)

	otp := services.NewOTPService(store.Users(), sms, email, rate, zl)
	limiter := middleware.NewIPRateLimiter(routes.AuthBurst, routes.AuthWindow, zl)
	go limiter.Run(ctx.Done())

	app := routes.NewApp(routes.Deps{
		Auth:         services.NewAuthService(store.Users(), otp, tokens, zl),
		Listings:     services.NewListingService(store, blobs, tokens, zl),
		Profiles:     services.NewProfileService(store, blobs, zl),
		Tokens:       tokens,
		Users:        store.Users(),
		Blobs:        blobs,
		Log:          zl,
		AppName:      cfg.AppName,
		FrontendURL:  cfg.FrontendURL,
		UploadDir:    uploadDir,
		SecureCookie: cfg.Production(),
		BodyLimit:    cfg.BodyLimit(),
		AuthLimiter:  limiter,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			zl.Error("shutdown failed", zap.Error(err))
		}
	}()

	zl.Info("starting server",
		zap.String("port", cfg.AppPort),
		zap.String("env", cfg.AppEnv),
		zap.String("store", cfg.StoreDriver),
		zap.String("uploads", cfg.UploadDriver),
	)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		zl.Fatal("fiber.Listen error", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := database.Connect(cfg.DatabaseURL, !cfg.Production(), zl)
		if err != nil {
			return nil, err
		}
		return repository.NewPostgresStore(db), nil
	case config.StoreMemory:
		zl.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), nil
	default:
		db, client, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, zl)
		if err != nil {
			return nil, err
		}
		return repository.NewMongoStore(ctx, client, db)
	}
}

func openRateStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (cache.Store, func()) {
	memory := func() (cache.Store, func()) {
		m := cache.NewMemory()
		go m.Run(ctx.Done(), time.Minute)
		return m, func() {}
	}
	if cfg.RedisURL == "" {
		return memory()
	}
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisURL, "bazaardial", zl)
	if err != nil {
		zl.Warn("redis unavailable, falling back to in-memory rate store", zap.Error(err))
		return memory()
	}
	return rdb, func() { _ = rdb.Close() }
}

func openBlobs(ctx context.Context, cfg *config.Config) (storage.BlobStore, string, error) {
	if cfg.UploadDriver == config.UploadS3 {
		s3, err := storage.NewS3(ctx, cfg.S3Region, cfg.S3Bucket, "uploads/")
		return s3, "", err
	}
	local, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		return nil, "", err
	}
	return local, local.Root(), nil
}
