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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	config "github.com/phillip/campus-events-go/config"
	"github.com/phillip/campus-events-go/lifecycle"
	"github.com/phillip/campus-events-go/logging"
	"github.com/phillip/campus-events-go/metrics"
	"github.com/phillip/campus-events-go/notify"
	"github.com/phillip/campus-events-go/repository"
	routes "github.com/phillip/campus-events-go/routes"
	utils "github.com/phillip/campus-events-go/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logging.Base()
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logging.Configure(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: os.Getenv("LOG_PRETTY") == "true",
	})
	logger := logging.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

// run serves until ctx is cancelled or the listener fails. Everything wired
// is released before it returns, including on startup errors.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	cleanup, err := wire(ctx, cfg, logger)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.NewRouter(cfg, logging.WithComponent("http"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("store", cfg.Store).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}

// wire connects the stores and collaborators selected by cfg and stores
// them on cfg. The returned func releases them.
func wire(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Store {
	case config.StoreMemory:
		cfg.Users = repository.NewMemoryUsers()
		cfg.Events = repository.NewMemoryEvents()
		cfg.Organizations = repository.NewMemoryOrganizations()
		logger.Warn().Msg("using in-memory store, data is lost on restart")
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := repository.Connect(connectCtx, cfg.MongoURI)
		if err != nil {
			return cleanup, err
		}
		closers = append(closers, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error().Err(err).Msg("mongo disconnect failed")
			}
		})
		db := client.Database(cfg.DBName)
		if err := repository.EnsureIndexes(connectCtx, db); err != nil {
			return cleanup, err
		}
		cfg.MongoClient = client
		cfg.Users = repository.NewMongoUsers(db)
		cfg.Events = repository.NewMongoEvents(db)
		cfg.Organizations = repository.NewMongoOrganizations(db)
		logger.Info().Str("db", cfg.DBName).Msg("connected to MongoDB")
	}

	if cfg.Cloudinary.Enabled() {
		up, err := utils.NewCloudinaryUploader(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
		if err != nil {
			return cleanup, err
		}
		cfg.Uploader = up
	} else {
		logger.Warn().Msg("cloudinary not configured, document uploads are disabled")
		cfg.Uploader = utils.DisabledUploader{}
	}

	if cfg.Mail.APIURL != "" && cfg.Mail.APIKey != "" {
		cfg.Mailer = notify.NewZeptoMailer(cfg.Mail.APIURL, cfg.Mail.APIKey, cfg.Mail.From, logging.WithComponent("mail"))
	} else {
		cfg.Mailer = notify.LogMailer{Logger: logging.WithComponent("mail")}
	}

	notifiers := notify.Multi{notify.ReviewMailer{Mailer: cfg.Mailer, Users: cfg.Users}}
	if cfg.RedisURL != "" {
		rn, err := notify.NewRedisNotifier(ctx, cfg.RedisURL, cfg.LifecycleTopic, logging.WithComponent("notify"))
		if err != nil {
			return cleanup, err
		}
		closers = append(closers, func() { _ = rn.Close() })
		notifiers = append(notifiers, rn)
	}

	cfg.Lifecycle = lifecycle.NewService(cfg.Events,
		lifecycle.WithNotifier(notifiers),
		lifecycle.WithRecorder(metrics.Recorder{}),
		lifecycle.WithLogger(logging.WithComponent("lifecycle")),
	)
	return cleanup, nil
}
