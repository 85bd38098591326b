package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/armchr/graphogm/internal/auth"
	"github.com/armchr/graphogm/internal/cdn"
	"github.com/armchr/graphogm/internal/config"
	"github.com/armchr/graphogm/internal/controller"
	"github.com/armchr/graphogm/internal/graphdb"
	"github.com/armchr/graphogm/internal/handler"
	"github.com/armchr/graphogm/internal/ogm"
	"github.com/armchr/graphogm/internal/schema"
	"github.com/armchr/graphogm/internal/storage"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// parseLogLevel converts a string log level to zapcore.Level
func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logFile := cfg.App.LogFile
	if logFile == "" {
		logFile = "ogm.log"
	}
	cfgZap := zap.NewProductionConfig()
	cfgZap.Level.SetLevel(parseLogLevel(cfg.App.LogLevel))
	cfgZap.OutputPaths = []string{"stdout", logFile}
	return cfgZap.Build()
}

// app holds everything the modes share. close releases it in reverse
// order of acquisition.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *graphdb.Manager
	mapper  *ogm.Mapper
	models  *auth.Models
	closers []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.db = graphdb.NewManager(cfg.Neo4j, logger)
	if err := a.db.Open(ctx); err != nil {
		return nil, err
	}

	reg := ogm.NewRegistry()
	models, err := auth.Register(reg)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.models = models

	opts := []ogm.Option{ogm.WithCreatePropertyIfNotFound(cfg.OGM.CreatePropertyIfNotFound)}

	store, closer, err := storage.Open(cfg.SFTP, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	if store != nil {
		a.closers = append(a.closers, closer)
		layout := storage.Layout{Root: cfg.SFTP.Root, PullURL: cfg.SFTP.PullURL}
		opts = append(opts, ogm.WithFiles(storage.NewFiles(store, layout, logger)))
		logger.Info("File storage enabled", zap.String("root", layout.Root), zap.String("pull_url", layout.PullURL))
	}

	if cfg.CDN.Enabled {
		purger, err := cdn.NewCDN77(cfg.CDN, logger)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		opts = append(opts, ogm.WithPurger(purger))
		logger.Info("CDN purge enabled", zap.String("resource_id", cfg.CDN.ResourceID))
	}

	a.mapper = ogm.NewMapper(a.db, reg, logger, opts...)
	return a, nil
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	if err := a.db.Close(ctx); err != nil {
		a.logger.Warn("Failed to close graph store", zap.Error(err))
	}
}

func main() {
	var configPath = flag.String("config", "app.yaml", "Path to app configuration file")
	var applyConstraints = flag.Bool("apply-constraints", false, "Create store constraints for the registered types and exit")
	var createSuperUser = flag.String("create-superuser", "", "Create a super user with this email and exit (password from OGM_SUPERUSER_PASSWORD)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("neo4j_uri", cfg.Neo4j.URI),
		zap.Int("port", cfg.App.Port),
		zap.Bool("file_storage", cfg.SFTP.Enabled()),
		zap.Bool("cdn", cfg.CDN.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.close(context.Background())

	switch {
	case *applyConstraints:
		logger.Info("Running in CLI mode - apply-constraints")
		if _, err := schema.Apply(ctx, a.db, a.mapper.Registry(), logger); err != nil {
			logger.Error("Failed to apply constraints", zap.Error(err))
		}
	case *createSuperUser != "":
		logger.Info("Running in CLI mode - create-superuser")
		if err := CreateSuperUserCommand(ctx, a, *createSuperUser); err != nil {
			logger.Error("Failed to create super user", zap.Error(err))
		}
	default:
		if err := serve(ctx, a); err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
	}
}

// CreateSuperUserCommand creates a super user named by email.
func CreateSuperUserCommand(ctx context.Context, a *app, email string) error {
	password := os.Getenv("OGM_SUPERUSER_PASSWORD")
	if password == "" {
		return fmt.Errorf("OGM_SUPERUSER_PASSWORD is not set")
	}
	svc := auth.NewService(a.mapper, a.models, a.logger)
	user, err := svc.CreateSuperUser(ctx, map[string]any{"email": email, "password": password})
	if err != nil {
		return err
	}
	a.logger.Info("Super user created", zap.String("uuid", user.UUID()), zap.String("email", email))
	return nil
}

func serve(ctx context.Context, a *app) error {
	router := handler.SetupRouter(controller.NewGraphController(a.mapper, a.logger), a.cfg, a.logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.App.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting server", zap.Int("port", a.cfg.App.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
