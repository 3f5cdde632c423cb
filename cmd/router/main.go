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

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/capability"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/embedding"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/encoder"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/httpapi"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm/providers"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/logging"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/memory"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/persistence/databases"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/recordsink"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/router"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("router")
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("ROUTER_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.LogPath, cfg.LogLevel)

	baseCtx := context.Background()

	shutdownTelemetry, err := telemetry.Setup(baseCtx, cfg.Telemetry)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry init failed, continuing without export")
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	pool, err := databases.Connect(baseCtx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	pgStore := databases.NewPostgresStore(pool)
	defer pgStore.Close()
	if err := pgStore.Init(baseCtx); err != nil {
		return fmt.Errorf("init postgres schema: %w", err)
	}

	vectors, err := databases.NewQdrantStore(baseCtx, cfg.Vector)
	if err != nil {
		return fmt.Errorf("connect qdrant: %w", err)
	}
	defer vectors.Close()

	engine, err := capability.New(baseCtx, pgStore)
	if err != nil {
		return fmt.Errorf("init capability engine: %w", err)
	}
	if cfg.Bootstrap.SeedDefaults {
		if err := seedDefaultModels(baseCtx, engine); err != nil {
			log.Warn().Err(err).Msg("seed default models failed")
		}
	}

	embedder := embedding.New(cfg.Embedding)
	if err := embedder.CheckReachability(baseCtx); err != nil {
		return fmt.Errorf("embedding endpoint unreachable: %w", err)
	}
	qEncoder := encoder.NewQEncoder(embedder, cfg.Encoder.CheckpointDir, cfg.Encoder.Seed)
	mEncoder := encoder.NewMEncoder(cfg.Encoder.CheckpointDir, cfg.Encoder.Seed)

	var checkpointLoader encoder.CheckpointLoader
	if cfg.S3.Bucket != "" {
		s3Store, err := databases.NewS3CheckpointStore(baseCtx, cfg.S3)
		if err != nil {
			log.Warn().Err(err).Msg("s3 checkpoint store init failed, using local/random weights")
		} else {
			checkpointLoader = s3Store
			qEncoder = encoder.NewQEncoderWithLoader(baseCtx, embedder, checkpointLoader, "q_encoder", cfg.Encoder.CheckpointDir, cfg.Encoder.Seed)
			mEncoder = encoder.NewMEncoderWithLoader(baseCtx, checkpointLoader, "m_encoder", cfg.Encoder.CheckpointDir, cfg.Encoder.Seed)
		}
	}

	provider, err := providers.Build(baseCtx, cfg.LLM, firstVendor(cfg), http.DefaultClient)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	sink := recordsink.New(pgStore, engine)
	if cfg.ClickHouse.DSN != "" {
		mirror, err := recordsink.NewClickHouseMirror(baseCtx, cfg.ClickHouse)
		if err != nil {
			log.Warn().Err(err).Msg("clickhouse mirror init failed, continuing without it")
		} else {
			defer mirror.Close()
			sink = sink.WithMirror(mirror)
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := recordsink.NewEventPublisher(cfg.Kafka)
		defer publisher.Close()
		sink = sink.WithPublisher(publisher)
	}
	sink = sink.WithLedger(recordsink.NewLedger())

	rt := router.New(engine, qEncoder, mEncoder, provider, sink, cfg.Encoder.Seed)

	mem := memory.New(pgStore, vectors, embedder, provider, cfg.Memory.WindowSize, cfg.Memory.TopKRetrieve, cfg.Memory.UtilityModel)
	if cfg.Redis.Addr != "" {
		cache, err := memory.NewRedisWindowCache(cfg.Redis, 24*time.Hour)
		if err != nil {
			log.Warn().Err(err).Msg("redis window cache init failed, continuing with process-local memory only")
		} else {
			defer cache.Close()
			mem = mem.WithCache(cache)
		}
	}

	metrics := telemetry.NewMetrics("router")
	tracer := otel.Tracer("router")

	server := httpapi.NewServer(engine, rt, mem, sink, metrics, tracer)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("router listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info().Msg("router stopped")
	return nil
}

// firstVendor picks the LLM vendor whose credentials are configured,
// preferring OpenAI, then Anthropic, then Google, matching the priority
// order config.LLMConfig's fields are declared in.
func firstVendor(cfg config.Config) string {
	switch {
	case cfg.LLM.OpenAI.APIKey != "":
		return "openai"
	case cfg.LLM.Anthropic.APIKey != "":
		return "anthropic"
	case cfg.LLM.Google.APIKey != "":
		return "google"
	default:
		return "openai"
	}
}

// seedDefaultModels registers three placeholder models when the
// capability table is empty, reviving the original source's dead
// default-seed branch (spec §9) behind an explicit opt-in flag.
func seedDefaultModels(ctx context.Context, engine *capability.Engine) error {
	if len(engine.ModelList()) > 0 {
		return nil
	}
	defaults := []struct {
		name  string
		ranks [capability.Skills]int
	}{
		{"gpt-4o-mini", [capability.Skills]int{10, 10, 10, 10, 10}},
		{"claude-3-5-sonnet", [capability.Skills]int{8, 8, 8, 8, 8}},
		{"gemini-1.5-pro", [capability.Skills]int{12, 12, 12, 12, 12}},
	}
	for _, d := range defaults {
		if _, err := engine.Register(ctx, d.name, d.ranks, 8192, 500, 0.005, 0); err != nil {
			return fmt.Errorf("seed %q: %w", d.name, err)
		}
	}
	return nil
}
