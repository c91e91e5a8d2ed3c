// observerd runs the bridge observer fleet: it tails configured bridge
// contracts, scores and correlates the resulting transfers and persists them
// to Postgres and Neo4j.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/bridgescope/backend/internal/api"
	"github.com/bridgescope/backend/internal/config"
	"github.com/bridgescope/backend/internal/correlator"
	"github.com/bridgescope/backend/internal/events"
	"github.com/bridgescope/backend/internal/pipeline"
	"github.com/bridgescope/backend/internal/risk"
	"github.com/bridgescope/backend/internal/store"
	"github.com/bridgescope/backend/internal/supervisor"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML configuration")
	flag.Parse()

	logger := log.New(log.Writer(), "[OBSERVERD] ", log.LstdFlags)

	if err := godotenv.Load(); err == nil {
		logger.Printf("loaded environment from .env")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("configuration: %v", err)
	}
	if cfg.Postgres.DSN == "" {
		logger.Fatalf("configuration: no Postgres DSN (set DATABASE_URL)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := store.OpenPostgres(cfg.Postgres.DSN, cfg.Concurrency.RelationalPool, cfg.Concurrency.DBTimeout)
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		logger.Fatalf("postgres schema: %v", err)
	}

	var graph *store.Graph
	if cfg.Graph.URI != "" {
		graph, err = store.OpenGraph(cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password,
			cfg.Concurrency.GraphPool, cfg.Concurrency.DBTimeout)
		if err != nil {
			logger.Fatalf("graph: %v", err)
		}
		defer graph.Close(context.Background())
	} else {
		logger.Printf("no graph store configured, wallet graph disabled")
	}

	var activity *risk.RedisActivity
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		activity = risk.NewRedisActivity(rdb, riskWindow(cfg))
	} else {
		logger.Printf("no Redis configured, frequency signal disabled")
	}

	engine := risk.NewEngine(pg, activityOrNil(activity), risk.Options{
		HighValueUnits: cfg.Risk.HighValueThreshold,
		FrequentCount:  cfg.Risk.FrequentBridgeCount,
		ActivityWindow: riskWindow(cfg),
	})

	var graphLinker correlator.GraphLinker
	var graphWriter pipeline.GraphWriter
	if graph != nil {
		graphLinker = graph
		graphWriter = graph
	}
	corr := correlator.New(pg, graphLinker, cfg.Sweeps.CorrelationWindow)

	bus := events.NewBus()
	pipe := pipeline.New(pg, graphWriter, engine, recorderOrNil(activity), corr, bus, pipeline.Options{
		Workers: cfg.Concurrency.PipelineWorkers,
	})
	pipe.Start(ctx)

	sup, err := supervisor.New(cfg, pipe)
	if err != nil {
		logger.Fatalf("supervisor: %v", err)
	}

	sweeper := supervisor.NewSweeper(pg, engine, corr, cfg.Sweeps)
	sweeper.Start(ctx)

	srv := api.NewServer(cfg.API.ListenAddr, pg, sup, bus)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Printf("api server stopped: %v", err)
		}
	}()

	report := sup.StartAll(ctx)
	for key, msg := range report.Errors {
		logger.Printf("observer %s failed to start: %s", key, msg)
	}
	if report.Running == 0 {
		logger.Printf("no observers running, shutting down")
		shutdown(ctx, cfg, sup, sweeper, pipe, srv, logger)
		os.Exit(1)
	}
	logger.Printf("🚀 observing %d bridge contracts", report.Running)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Printf("shutdown signal received")

	cancel()
	shutdown(context.Background(), cfg, sup, sweeper, pipe, srv, logger)
}

func shutdown(ctx context.Context, cfg *config.Config, sup *supervisor.Supervisor, sweeper *supervisor.Sweeper, pipe *pipeline.Pipeline, srv *api.Server, logger *log.Logger) {
	sup.StopAll()
	pipe.Stop()
	sweeper.Stop()

	shCtx, cancel := context.WithTimeout(ctx, cfg.Concurrency.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Printf("api shutdown: %v", err)
	}
	logger.Printf("shutdown complete")
}

func riskWindow(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Risk.ActivityWindowHours) * time.Hour
}

func activityOrNil(a *risk.RedisActivity) risk.ActivityLookup {
	if a == nil {
		return nil
	}
	return a
}

func recorderOrNil(a *risk.RedisActivity) pipeline.ActivityRecorder {
	if a == nil {
		return nil
	}
	return a
}
