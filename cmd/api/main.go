package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"duxxan-platform/internal/audit"
	"duxxan-platform/internal/cache"
	"duxxan-platform/internal/chain"
	"duxxan-platform/internal/config"
	"duxxan-platform/internal/database"
	"duxxan-platform/internal/handlers"
	"duxxan-platform/internal/logger"
	"duxxan-platform/internal/metrics"
	"duxxan-platform/internal/middleware"
	"duxxan-platform/internal/payment"
	"duxxan-platform/internal/queue"
	"duxxan-platform/internal/repository"
	"duxxan-platform/internal/service"
	"duxxan-platform/internal/settlement"
	ws "duxxan-platform/internal/websocket"
)

func main() {
	configPath := flag.String("config", config.DefaultFile, "path to the env config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.App.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting DUXXAN platform server...",
		zap.String("environment", cfg.App.Environment),
		zap.Int("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("Successfully connected to the database!")

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, log); err != nil {
			return err
		}
	}

	store := repository.NewStore(db)
	m := metrics.New()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis connection failed", zap.Error(err))
		} else {
			defer redisClient.Close()
		}
	}
	var appCache cache.Cache
	if redisClient != nil {
		appCache = cache.FromClient(redisClient, log)
	} else {
		appCache = cache.FromClient(nil, log)
	}

	var backend queue.Backend = queue.NewMemoryBackend()
	if cfg.Queue.Backend == config.QueueBackendRedis {
		if redisClient != nil {
			backend = queue.NewRedisBackend(redisClient, cfg.Queue.RedisPrefix)
		} else {
			log.Warn("redis queue backend requested but redis is unavailable, using memory queue")
		}
	}
	defer backend.Close()

	runner := queue.NewRunner(backend, queue.RunnerConfig{
		PollInterval: cfg.Queue.PollInterval,
		Concurrency:  cfg.Queue.Concurrency,
		MaxRetries:   cfg.Queue.MaxRetries,
	}, log.Named("queue"))
	runner.Observe(m.ObserveJob)
	m.RegisterQueueDepth(func() float64 {
		n, err := runner.Pending(context.Background())
		if err != nil {
			return 0
		}
		return float64(n)
	})

	verifier, err := newVerifier(cfg.Chain, m, log)
	if err != nil {
		return err
	}

	sink := newAuditSink(cfg.Supabase, log)
	hub := ws.NewHub(log.Named("ws"))

	settler := settlement.NewService(settlement.Deps{
		Raffles: store.Raffles,
		Tickets: store.Tickets,
		Mail:    store.Mail,
		Queue:   runner,
		Hub:     hub,
		Cache:   appCache,
		Audit:   sink,
	}, settlement.Config{
		PollSpec:       cfg.Settlement.PollSpec,
		ForfeitureSpec: cfg.Settlement.ForfeitureSpec,
		ApprovalWindow: cfg.Settlement.ApprovalWindow,
	}, log)
	settler.Observe(m.ObserveSettlement)
	runner.Register(settlement.JobType, settler.HandleJob)
	runner.OnFailure(settler.HandleFailure)

	var gateway payment.Gateway
	if cfg.Midtrans.Enabled() {
		gateway = payment.NewMidtransGateway(cfg.Midtrans.ServerKey, payment.Environment(cfg.Midtrans.Environment), log)
	} else {
		log.Info("midtrans server key not set, card payments disabled")
	}

	users := service.NewUserService(store.Users, log)
	raffles := service.NewRaffleService(store.Raffles, store.Tickets, store.Transactions, verifier, settler, hub, appCache, sink,
		service.RaffleConfig{CreationFee: cfg.Chain.CreationFee, CacheTTL: cfg.Redis.CacheTTL}, log)
	tickets := service.NewTicketService(store.Raffles, store.Tickets, store.Transactions, verifier, hub, appCache, sink, log)
	donations := service.NewDonationService(store.Donations, store.Transactions, verifier, gateway, hub, appCache, sink,
		service.DonationConfig{
			CorporateCommission:  cfg.Donation.CorporateCommission,
			IndividualCommission: cfg.Donation.IndividualCommission,
			CorporateStartupFee:  cfg.Donation.CorporateStartupFee,
			IndividualStartupFee: cfg.Donation.IndividualStartupFee,
			IDRRate:              cfg.Midtrans.IDRRate,
			CacheTTL:             cfg.Redis.CacheTTL,
		}, log)
	channels := service.NewChannelService(store.Channels, appCache, cfg.Redis.CacheTTL, log)
	mail := service.NewMailService(store.Mail, store.Users, log)
	admin := service.NewAdminService(store.Admins, store.Raffles, runner, settler, sink, cfg.JWT.Secret, cfg.JWT.TTL, log)

	if err := admin.EnsureBootstrap(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, log)
	cleanupStop := make(chan struct{})
	limiter.StartCleanup(5*time.Minute, cleanupStop)

	router := handlers.NewRouter(handlers.RouterDeps{
		Log:            log,
		Production:     cfg.App.IsProduction(),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Raffles:        raffles,
		Tickets:        tickets,
		Donations:      donations,
		Channels:       channels,
		Mail:           mail,
		Users:          users,
		Admin:          admin,
		Hub:            hub,
		Metrics:        m,
		RateLimiter:    limiter,
	})

	go hub.Run()
	runner.Start(ctx)
	if err := settler.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}

	close(cleanupStop)
	settler.Stop()
	runner.Stop()
	hub.Stop()

	log.Info("Server stopped")
	return nil
}

// newVerifier talks to the chain when an RPC endpoint is configured and falls
// back to a static verifier otherwise.
func newVerifier(cfg config.ChainConfig, m *metrics.Metrics, log *zap.Logger) (chain.PaymentVerifier, error) {
	if cfg.RPCURL == "" {
		log.Warn("chain RPC URL not set, payments are checked by format only",
			zap.Bool("accept", cfg.StaticResult))
		return chain.Static(cfg.StaticResult), nil
	}

	client, err := chain.NewClient(chain.ClientConfig{RPCURL: cfg.RPCURL, Timeout: cfg.RPCTimeout})
	if err != nil {
		return nil, err
	}
	breaker := chain.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)
	return chain.NewVerifier(client, breaker, chain.VerifierConfig{
		ContractAddress: cfg.ContractAddress,
		TokenDecimals:   cfg.TokenDecimals,
		VerifySender:    cfg.VerifySender,
	}, log, m.ObserveVerification), nil
}

func newAuditSink(cfg config.SupabaseConfig, log *zap.Logger) audit.Sink {
	if !cfg.Enabled() {
		return audit.NewLogSink(log)
	}
	sink, err := audit.NewSupabaseSink(cfg.URL, cfg.Key, cfg.AuditTable, log)
	if err != nil {
		log.Warn("supabase audit sink unavailable, logging audit events", zap.Error(err))
		return audit.NewLogSink(log)
	}
	return sink
}
