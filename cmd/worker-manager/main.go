package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsutil "malnutrition-workers/internal/common/aws"
	"malnutrition-workers/internal/common/camunda"
	"malnutrition-workers/internal/common/config"
	"malnutrition-workers/internal/common/database"
	"malnutrition-workers/internal/common/logger"
	"malnutrition-workers/internal/common/observability"
	"malnutrition-workers/internal/engine/assessment"
	"malnutrition-workers/internal/engine/growth"
	"malnutrition-workers/internal/engine/treatment"
	"malnutrition-workers/internal/workers/nutrition"
	am "malnutrition-workers/internal/workers/nutrition/assess-malnutrition"
	ra "malnutrition-workers/internal/workers/nutrition/record-assessment"
	sma "malnutrition-workers/internal/workers/nutrition/send-malnutrition-alert"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// loadReference picks the growth reference: the official WHO tables in reference_dir, a
// CSV in reference_file, or the bundled tables.
func loadReference(cfg config.AssessmentConfig) (*growth.Store, string, error) {
	switch {
	case cfg.ReferenceDir != "":
		store, err := growth.LoadWHODir(cfg.ReferenceDir)
		if err != nil {
			return nil, "", fmt.Errorf("load reference dir %s: %w", cfg.ReferenceDir, err)
		}
		return store, cfg.ReferenceDir, nil
	case cfg.ReferenceFile != "":
		f, err := os.Open(cfg.ReferenceFile)
		if err != nil {
			return nil, "", fmt.Errorf("open reference file: %w", err)
		}
		defer f.Close()

		store, err := growth.Load(f)
		if err != nil {
			return nil, "", fmt.Errorf("load reference file %s: %w", cfg.ReferenceFile, err)
		}
		return store, cfg.ReferenceFile, nil
	default:
		store, err := growth.Default()
		return store, "bundled", err
	}
}

// newEngine builds the assessment engine. Tables off the published WHO grid are fatal
// with strict_reference and a warning otherwise.
func newEngine(cfg config.AssessmentConfig, log *zap.Logger) (*assessment.Engine, error) {
	store, source, err := loadReference(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.CheckResolution(); err != nil {
		if cfg.StrictReference {
			return nil, err
		}
		var resErr *growth.ResolutionError
		if errors.As(err, &resErr) {
			log.Warn("growth reference is coarser than the WHO tables, z-scores are interpolated",
				zap.String("source", source),
				zap.Strings("problems", resErr.Problems),
			)
		}
	}

	book, err := treatment.DefaultRuleBook()
	if err != nil {
		return nil, err
	}
	log.Info("Growth reference tables loaded", zap.String("source", source), zap.Int("rows", store.Len()))
	return assessment.New(store, book, assessment.WithReviewThreshold(cfg.ReviewConfidenceThreshold)), nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("otel metrics disabled", zap.Error(err))
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			zapLog.Error("otel shutdown failed", zap.Error(err))
		}
	}()

	engine, err := newEngine(cfg.Assessment, zapLog)
	if err != nil {
		zapLog.Fatal("assessment engine init failed", zap.Error(err))
	}

	ctx := context.Background()

	// --- Zeebe ---
	var zc *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zc, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: cfg.Camunda.Plaintext,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis ---
	var rc *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rc, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rc.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rc.Close()
	zapLog.Info("Redis connected successfully")

	// --- AWS notification clients ---
	var (
		snsClient sma.SNSService
		sesClient sma.SESService
	)
	if cfg.Notifications.SNS.Enabled || cfg.Notifications.SES.Enabled {
		awsCfg, err := awsutil.LoadConfig(ctx, cfg.Notifications.Region)
		if err != nil {
			zapLog.Fatal("aws config load failed", zap.Error(err))
		}
		if cfg.Notifications.SNS.Enabled {
			snsClient = awsutil.NewSNSClient(awsCfg)
		}
		if cfg.Notifications.SES.Enabled {
			sesClient = awsutil.NewSESClient(awsCfg)
		}
	}

	// --- Workers ---
	catalog := nutrition.Catalog()
	for taskType := range cfg.Workers {
		if _, ok := catalog.Find(taskType); !ok {
			zapLog.Warn("configured worker has no implementation", zap.String("taskType", taskType))
		}
	}

	assessCfg, err := am.ConfigFrom(cfg)
	if err != nil {
		zapLog.Fatal("invalid assess-malnutrition config", zap.Error(err))
	}
	handlers := []struct {
		taskType string
		handler  camunda.JobHandler
	}{
		{am.TaskType, am.NewHandler(assessCfg, engine, rc.GetClient(), obs, log)},
		{ra.TaskType, ra.NewHandler(ra.ConfigFrom(cfg), pg.GetDB(), rc.GetClient(), obs, log)},
		{sma.TaskType, sma.NewHandler(sma.ConfigFrom(cfg), snsClient, sesClient, obs, log)},
	}

	registry := camunda.NewRegistry(zc.GetClient(), log)
	for _, h := range handlers {
		if !config.IsWorkerEnabled(cfg, h.taskType) {
			zapLog.Info("Worker disabled by configuration", zap.String("taskType", h.taskType))
			continue
		}
		registry.Start(h.taskType, config.GetWorkerConfig(cfg, h.taskType), h.handler)
	}

	zapLog.Info("Workers registered", zap.Strings("taskTypes", registry.TaskTypes()))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{"reference": "ok", "zeebe": "ok", "postgres": "ok", "redis": "ok"}
		if cfg.Assessment.ReferenceDir == "" && cfg.Assessment.ReferenceFile == "" && !growth.Loaded() {
			checks["reference"] = "not loaded"
		}
		if err := zc.ExecuteWithRetry(checkCtx, zc.HealthCheck, "topology"); err != nil {
			checks["zeebe"] = err.Error()
		}
		if err := pg.Ping(checkCtx); err != nil {
			checks["postgres"] = err.Error()
		}
		if err := rc.Ping(checkCtx); err != nil {
			checks["redis"] = err.Error()
		}

		status := http.StatusOK
		for _, v := range checks {
			if v != "ok" {
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, map[string]interface{}{
			"status": http.StatusText(status),
			"checks": checks,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.Server.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	registry.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zc.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
