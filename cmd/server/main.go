package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	_ "github.com/joho/godotenv/autoload"
	"github.com/riandyrn/otelchi"
	otelchimetric "github.com/riandyrn/otelchi/metric"
	"go.opentelemetry.io/otel"

	"github.com/lecturanotes/kalam/internal/api"
	"github.com/lecturanotes/kalam/internal/cache"
	"github.com/lecturanotes/kalam/internal/config"
	"github.com/lecturanotes/kalam/internal/db"
	"github.com/lecturanotes/kalam/internal/logger"
	"github.com/lecturanotes/kalam/internal/metrics"
	"github.com/lecturanotes/kalam/internal/middleware"
	"github.com/lecturanotes/kalam/internal/sentry"
	"github.com/lecturanotes/kalam/internal/store"
	"github.com/lecturanotes/kalam/internal/telemetry"
	"github.com/lecturanotes/kalam/internal/transcription"
	"github.com/lecturanotes/kalam/internal/worker"
)

func main() {
	defer sentry.Recover()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize telemetry
	if cfg.OtelExporterOTLPEndpoint != "" {
		shutdown, err := telemetry.InitTelemetry(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.Env,
			cfg.OtelExporterOTLPEndpoint, telemetry.ParseHeaders(cfg.OtelExporterOTLPHeaders))
		if err != nil {
			slog.Warn("Failed to init telemetry", "error", err)
		} else {
			defer shutdown(ctx)
		}
	}

	// Initialize Sentry
	if err := sentry.Init(cfg.SentryDSN, cfg.Env, cfg.ServiceName, cfg.ServiceVersion); err != nil {
		slog.Warn("Failed to init Sentry", "error", err)
	} else if cfg.SentryDSN != "" {
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize business metrics
	if err := metrics.Init(); err != nil {
		slog.Warn("Failed to init business metrics", "error", err)
	}

	// Initialize logger with OTel support
	logger := logger.New(cfg.Env)
	slog.SetDefault(logger)

	// Database connection
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	records := store.New(pool)

	// Asynq client for enqueuing watch tasks
	asynqClient := worker.NewClient(cfg.RedisURL)
	defer asynqClient.Close()

	// Provider clients and the domain services on top of them
	submitTimeout := time.Duration(cfg.Transcription.SubmitTimeoutSeconds) * time.Second
	assembly := transcription.NewAssemblyAIClient(cfg.AssemblyAIKey, submitTimeout)
	eleven := transcription.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.Transcription.ElevenLabsModelID, submitTimeout)

	dispatcher := transcription.NewDispatcher(assembly, eleven, records, logger, submitTimeout)
	resolver := transcription.NewResolver(records, assembly, logger)
	detector := transcription.NewDetector(assembly,
		cfg.Transcription.DetectMaxAttempts,
		time.Duration(cfg.Transcription.DetectDelayMillis)*time.Millisecond)

	// Detection results are cached per audio URL
	var detectCache api.DetectionCache
	if dc, err := cache.NewDetectionCache(cfg.RedisURL); err != nil {
		slog.Warn("Failed to init detection cache", "error", err)
	} else {
		defer dc.Close()
		detectCache = dc
	}

	// API handlers
	apiServer := api.NewServer(cfg, dispatcher, resolver, detector, records, asynqClient, detectCache, logger)

	// Router
	r := chi.NewRouter()

	// Middleware
	r.Use(otelchi.Middleware(cfg.ServiceName,
		otelchi.WithChiRoutes(r),
		otelchi.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	))

	// HTTP metrics
	metricCfg := otelchimetric.NewBaseConfig(cfg.ServiceName, otelchimetric.WithMeterProvider(otel.GetMeterProvider()))
	r.Use(otelchimetric.NewRequestDurationMillis(metricCfg))
	r.Use(otelchimetric.NewRequestInFlight(metricCfg))
	r.Use(otelchimetric.NewResponseSizeBytes(metricCfg))

	r.Use(sentry.HTTPMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// Health check endpoint
	r.Get("/health", api.HandleHealth)

	// Status reads work without a session; a valid token scopes them to
	// its owner.
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuthMiddleware(cfg))
		r.Get("/api/transcribe/{id}", apiServer.HandleTranscribeStatus)
	})

	// Protected API routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg))
		r.Post("/api/transcribe", apiServer.HandleTranscribe)
		r.Post("/api/detect-language", apiServer.HandleDetectLanguage)

		r.Get("/api/transcriptions", apiServer.HandleListTranscriptions)
		r.Post("/api/transcriptions", apiServer.HandleCreateTranscription)
		r.Get("/api/transcriptions/{id}", apiServer.HandleGetTranscription)
		r.Patch("/api/transcriptions/{id}", apiServer.HandleUpdateTranscription)
		r.Delete("/api/transcriptions/{id}", apiServer.HandleDeleteTranscription)

		r.Get("/api/dashboard/stats", apiServer.HandleDashboardStats)

		r.Get("/api/notifications", apiServer.HandleListNotifications)
		r.Post("/api/notifications/mark-all-read", apiServer.HandleMarkAllNotificationsRead)
		r.Patch("/api/notifications/{id}", apiServer.HandleMarkNotificationRead)
		r.Delete("/api/notifications/{id}", apiServer.HandleDeleteNotification)
	})

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	slog.Info("Starting server", "port", port)

	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
