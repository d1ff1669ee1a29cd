package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/trihan96/FunPayServer/internal/biz/repo"
	"github.com/trihan96/FunPayServer/internal/biz/usecase"
	"github.com/trihan96/FunPayServer/internal/conf"
	"github.com/trihan96/FunPayServer/internal/data"
	"github.com/trihan96/FunPayServer/internal/service"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment variables")
	}

	cfg, err := conf.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.Debug {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	// Configuration store
	ruleStore, err := data.NewRuleStore(cfg.DBPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open rule store")
	}
	defer ruleStore.Close()

	// Marketplace transport
	ctx := context.Background()
	funpay := data.NewFunPayClient(cfg.GoldenKey, cfg.UserAgent, cfg.Watermark, cfg.ManualWatermark, log)
	if err := funpay.Setup(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to establish funpay session")
	}

	// Knowledge oracle (optional)
	var oracle repo.OracleRepo
	if cfg.OracleEnabled {
		oracle = data.NewOracleClient(cfg.OracleAPIKey, cfg.OracleBaseURL, cfg.OracleModel, ruleStore, log)
		log.Info().Str("model", cfg.OracleModel).Msg("knowledge oracle enabled")
	}

	// Dispatch engine
	matcher := usecase.NewMatcher(cfg.FuzzyThreshold, nil)
	dispatcher := usecase.NewDispatcher(
		cfg.ToDispatchConfig(),
		funpay,
		oracle,
		ruleStore,
		ruleStore,
		matcher,
		cfg.BufferDelay(),
		cfg.MaxBufferTime(),
		log,
	)

	poller := service.NewPoller(
		dispatcher,
		ruleStore,
		cfg.PollInterval(),
		time.Duration(cfg.RuleReloadMinutes)*time.Minute,
		log,
	)
	poller.Start(ctx)

	log.Info().
		Dur("buffer_delay", cfg.BufferDelay()).
		Dur("max_buffer_time", cfg.MaxBufferTime()).
		Msg("auto-response server started")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	poller.Stop()
}
