package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"palisade/internal/admintoken"
	"palisade/internal/audit"
	"palisade/internal/coordinator"
	coordinatormetrics "palisade/internal/coordinator/metrics"
	"palisade/internal/gatekeeper"
	gatekeepermetrics "palisade/internal/gatekeeper/metrics"
	"palisade/internal/platform/config"
	"palisade/internal/platform/httpserver"
	"palisade/internal/platform/logger"
	platformredis "palisade/internal/platform/redis"
	"palisade/internal/query"
	"palisade/internal/ratelimit"
	"palisade/internal/registry"
	"palisade/internal/reputation"
	"palisade/internal/selector"
	httptransport "palisade/internal/transport/http"
	"palisade/internal/weights"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Malformed configuration is the one fatal condition.
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.Server.LogLevel, cfg.Server.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Registry: HTTP membership directory when configured, seed list otherwise.
	var membership registry.MembershipClient
	if cfg.Network.MembershipURL != "" {
		membership = registry.NewHTTPMembershipClient(cfg.Network.MembershipURL)
	} else {
		seed, err := registry.ParseSeed(cfg.Network.SeedParticipants)
		if err != nil {
			log.Error("invalid seed participants", "error", err)
			os.Exit(1)
		}
		membership = registry.NewStaticClient(seed)
		log.Info("no membership directory configured, using seed participants", "count", len(seed))
	}

	reg, err := registry.New(membership, registry.WithLogger(log))
	if err != nil {
		log.Error("registry init failed", "error", err)
		os.Exit(1)
	}
	go reg.Run(ctx, cfg.Coordinator.RegistryRefresh)

	// Rate limiter store: shared Redis windows when configured, in-process
	// windows otherwise.
	var windows ratelimit.WindowStore = ratelimit.NewInMemoryWindowStore()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		windows = ratelimit.NewRedisWindowStore(redisClient.Client)
		log.Info("rate limiter using redis window store")
	}

	gk, err := gatekeeper.New(reg, windows, gatekeeper.CompileConfig(cfg.Gatekeeper),
		gatekeeper.WithLogger(log),
		gatekeeper.WithMetrics(gatekeepermetrics.New()),
	)
	if err != nil {
		log.Error("gatekeeper init failed", "error", err)
		os.Exit(1)
	}

	ledger, err := reputation.New(cfg.Coordinator.Alpha, cfg.Coordinator.ExclusionResetFraction,
		reputation.WithLogger(log),
	)
	if err != nil {
		log.Error("ledger init failed", "error", err)
		os.Exit(1)
	}

	sel, err := selector.New(cfg.Coordinator.SelectionFraction)
	if err != nil {
		log.Error("selector init failed", "error", err)
		os.Exit(1)
	}

	var consensus weights.ConsensusClient = weights.NewLoggingConsensusClient(log)
	if cfg.Network.ConsensusURL != "" {
		consensus = weights.NewHTTPConsensusClient(cfg.Network.ConsensusURL)
	}
	publisher, err := weights.NewPublisher(consensus, cfg.Coordinator.WeightBudget, cfg.Coordinator.WeightCap,
		weights.WithLogger(log),
	)
	if err != nil {
		log.Error("weight publisher init failed", "error", err)
		os.Exit(1)
	}

	coordMetrics := coordinatormetrics.New()
	coord, err := coordinator.New(
		reg,
		ledger,
		sel,
		query.NewHTTPDispatcher(),
		query.DefaultReward,
		cfg.Coordinator.DispatchTimeout,
		coordinator.WithLogger(log),
		coordinator.WithMetrics(coordMetrics),
	)
	if err != nil {
		log.Error("coordinator init failed", "error", err)
		os.Exit(1)
	}

	// Score persistence is optional; without it the ledger starts from zero.
	var snapshots coordinator.SnapshotStore
	if cfg.Postgres.URL != "" {
		store, err := reputation.NewPostgresSnapshotStore(cfg.Postgres.URL)
		if err != nil {
			log.Error("postgres snapshot store init failed", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		snapshots = store
	}

	publishLoop := coordinator.NewPublishLoop(ledger, publisher, snapshots, log, coordMetrics)
	publishLoop.Restore(ctx)
	go publishLoop.Run(ctx, cfg.Coordinator.PublishInterval)

	// Admission audit trail: Kafka stream when configured, in-memory ring
	// otherwise.
	var sink audit.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka sink init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	} else {
		sink = audit.NewMemorySink(1024)
	}
	auditor := audit.NewPublisher(4096, log)
	go audit.NewWorker(sink, auditor.Inbox(), log).Run(ctx)

	tokens := admintoken.New(cfg.Server.AdminJWTKey, cfg.Server.AdminSecretBcrypt)
	reload := func(ctx context.Context) error {
		fresh, err := config.Load()
		if err != nil {
			return err
		}
		gk.UpdateConfig(gatekeeper.CompileConfig(fresh.Gatekeeper))
		return nil
	}

	handler := httptransport.NewHandler(gk, coord, auditor, log)
	admin := httptransport.NewAdminHandler(tokens, reload, log)
	router := httptransport.NewRouter(handler, admin)

	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting palisade", "addr", cfg.Server.Addr, "mode", cfg.Gatekeeper.Mode)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
