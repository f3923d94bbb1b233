package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coparent/api/internal/app"
	"coparent/api/internal/config"
	"coparent/api/internal/email"
	"coparent/api/internal/export"
	"coparent/api/internal/gitrepo"
	"coparent/api/internal/logger"
	"coparent/api/internal/metrics"
	"coparent/api/internal/plan"
	"coparent/api/internal/search"
	"coparent/api/internal/session"
	"coparent/api/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("api exited")
		os.Exit(1)
	}
}

// run wires the service and serves until SIGINT or SIGTERM. Every resource
// it opens is closed before it returns.
func run(cfg config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tpl, err := loadTemplate(cfg.PlanTemplate)
	if err != nil {
		return fmt.Errorf("plan template: %w", err)
	}

	deps := app.Deps{Logger: log, Metrics: metrics.New()}
	var seeder plan.SectionSeeder
	storeKind := "memory"
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		storeKind = "postgres"
		openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := store.Open(openCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			return fmt.Errorf("database connection: %w", err)
		}
		defer db.Close()

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		log.Info().Strs("applied", applied).Msg("migrations up to date")

		pg := store.NewPostgresStore(db, cfg.PlanID)
		deps.Store = pg
		deps.SearchDB = db
		seeder = pg
	} else {
		mem := store.NewMemoryStore()
		deps.Store = mem
		seeder = mem
	}

	created, err := plan.Seed(ctx, seeder, tpl)
	if err != nil {
		return fmt.Errorf("seed plan: %w", err)
	}
	log.Info().Int("created", len(created)).Int("sections", len(tpl.Sections)).Msg("plan seeded")

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection: %w", err)
		}
		defer redisStore.Close()
		deps.Refresh = redisStore
		log.Info().Msg("using redis for refresh tokens")
	}

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		deps.Meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer deps.Meili.Close()
	}

	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			return fmt.Errorf("create archive dir: %w", err)
		}
		archive := gitrepo.New(cfg.ArchiveDir)
		if err := archive.EnsurePlanRepo(cfg.PlanID); err != nil {
			return fmt.Errorf("init plan archive: %w", err)
		}
		deps.Archive = archive
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objects, err := export.NewObjectStore(ctx, export.StorageConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Warn().Err(err).Msg("object storage unavailable, exports are served inline only")
		} else {
			deps.Uploader = objects
		}
	}

	deps.Mailer = email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !deps.Mailer.IsConfigured() {
		log.Info().Msg("SMTP not configured, review notifications disabled")
	}

	service := app.New(cfg, deps)
	defer service.Close()
	service.Bootstrap(ctx)
	go service.Sessions().Run(ctx, time.Minute)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.LogServerStart(cfg.Addr, storeKind)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	log.LogServerShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func loadTemplate(path string) (plan.Template, error) {
	if strings.TrimSpace(path) == "" {
		return plan.DefaultTemplate()
	}
	return plan.Load(path)
}
