// Command server runs the line-item price optimization API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/carlosmorenolosa/corsam-pricing/internal/config"
	"github.com/carlosmorenolosa/corsam-pricing/internal/embedding"
	"github.com/carlosmorenolosa/corsam-pricing/internal/history"
	"github.com/carlosmorenolosa/corsam-pricing/internal/pricing"
	"github.com/carlosmorenolosa/corsam-pricing/internal/server"
	"github.com/carlosmorenolosa/corsam-pricing/internal/usage"
	"github.com/carlosmorenolosa/corsam-pricing/internal/vectorindex"
)

func main() {
	app := &cli.App{
		Name:  "corsam-pricing",
		Usage: "retrieval-augmented price optimizer for construction budgets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "path to a .env file with credentials",
				Value: ".env",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "HTTP listen port (overrides PORT)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(c *cli.Context) error {
	// Missing .env is fine; production reads the real environment.
	_ = godotenv.Load(c.String("env-file"))

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.Logger
	if cfg.Env == "development" {
		logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	embedder, err := embedding.NewGemini(embedding.GeminiConfig{
		BaseURL: cfg.GeminiBaseURL,
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.EmbedModel,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	index, err := vectorindex.NewPinecone(vectorindex.PineconeConfig{
		IndexURL: cfg.PineconeIndexURL,
		APIKey:   cfg.PineconeAPIKey,
		Timeout:  cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var counter usage.Counter
	switch cfg.UsageBackend {
	case "dynamodb":
		counter, err = usage.NewDynamoCounter(ctx, cfg.DynamoTable)
	case "postgres":
		counter, err = usage.NewPostgresCounter(cfg.PostgresDSN)
	default:
		logger.Warn().Msg("no usage backend configured, monthly quota disabled")
	}
	if err != nil {
		return fmt.Errorf("initializing usage counter: %w", err)
	}

	var auditLog *history.Store
	if cfg.ClickHouseAddr != "" {
		auditLog, err = history.NewStore(ctx, history.Config{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			return fmt.Errorf("initializing batch history: %w", err)
		}
		defer auditLog.Close()
	}

	estimator := pricing.NewEstimator(embedder, index, logger).
		WithThreshold(cfg.ScoreCutoff)

	srvCfg := server.DefaultConfig()
	srvCfg.Port = cfg.Port
	srvCfg.CORSOrigins = cfg.CORSOrigins
	srvCfg.DefaultTopK = cfg.DefaultTopK
	srvCfg.DefaultTargetRate = cfg.DefaultTargetRate
	srvCfg.DefaultMarginPct = cfg.DefaultMarginPct
	srvCfg.MaxMonthlyUses = cfg.MaxMonthlyUses

	srv := server.New(estimator, counter, auditLog, srvCfg, logger)
	return srv.Start(ctx)
}
