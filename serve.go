package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/ticketdesk/orderbot/config"
	"github.com/ticketdesk/orderbot/db"
	"github.com/ticketdesk/orderbot/handlers"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/models/order"
	"github.com/ticketdesk/orderbot/pkg/clickup"
	"github.com/ticketdesk/orderbot/pkg/openai"
	"github.com/ticketdesk/orderbot/pkg/sheets"
	"github.com/ticketdesk/orderbot/router"
	"github.com/ticketdesk/orderbot/services"
	"golang.org/x/sync/errgroup"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// sessionGateway reports the Discord session as connected once READY was received.
type sessionGateway struct {
	session *discordgo.Session
}

func (g sessionGateway) Connected() bool {
	g.session.RLock()
	defer g.session.RUnlock()
	return g.session.DataReady
}

func runServe(ctx context.Context, cfg *config.Config, tables *config.RoutingTables) error {
	log := logger.GetLogger()

	required, err := cfg.Pipeline.RequiredFieldList()
	if err != nil {
		return err
	}
	metrics := services.NewPipelineMetrics(prometheus.DefaultRegisterer)

	store, err := sheets.NewStore(ctx, cfg.Sheets.CredentialsFile)
	if err != nil {
		return fmt.Errorf("failed to initialize sheets store: %w", err)
	}
	recognizer, err := services.NewRecognizer(ctx, cfg.OCR)
	if err != nil {
		return fmt.Errorf("failed to initialize OCR: %w", err)
	}
	fetcher, err := services.NewAttachmentService(cfg.OCR, cfg.Pipeline, &http.Client{})
	if err != nil {
		return fmt.Errorf("failed to initialize attachment downloads: %w", err)
	}
	llm := openai.NewClient(cfg.Extraction.APIKey, openai.WithBaseURL(cfg.Extraction.BaseURL))

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	notifier := handlers.NewDiscordNotifier(session)

	mapper := order.NewFieldMapper(tables, metrics)
	deps := order.Deps{
		Fetcher:       fetcher,
		Recognizer:    recognizer,
		Extractor:     services.NewExtractionService(llm, cfg.Extraction, required),
		Validator:     order.NewValidator(required, cfg.Pipeline.MaxMissing),
		Mapper:        mapper,
		Router:        order.NewRouter(store, mapper, metrics, order.WithStoreTimeout(seconds(cfg.Sheets.TimeoutSeconds))),
		Notifier:      notifier,
		Metrics:       metrics,
		NotifyTimeout: seconds(cfg.Pipeline.NotifyTimeoutSecs),
	}

	if cfg.ClickUp.Enabled {
		client := clickup.NewClient(cfg.ClickUp.APIToken, cfg.ClickUp.BaseURL, &http.Client{Timeout: seconds(cfg.ClickUp.TimeoutSeconds)})
		deps.Tasks = services.NewTaskService(client, cfg.ClickUp)
		log.Infow("ClickUp task creation enabled", "listId", cfg.ClickUp.ListID)
	}
	if cfg.Email.Enabled {
		deps.Alerter = services.NewAlertService(&cfg.Email)
		log.Infow("Routing failure alerts enabled", "recipients", len(cfg.Email.OpsRecipients))
	}

	var dbPinger services.Pinger
	if cfg.Database.Enabled {
		pool, err := openLedger(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		deps.Ledger = db.NewOutcomeStore(pool)
		dbPinger = pool
	}

	pipeline := order.NewPipeline(deps)

	workerPool := services.NewWorkerPool(cfg.WorkerPool)
	workerPool.Start()

	var handlerOpts []handlers.DiscordHandlerOption
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(config.ConfigureRedisOptions(&cfg.Redis))
		defer redisClient.Close()
		if err := config.WaitForRedis(ctx, redisClient, 3, 2*time.Second); err != nil {
			log.Warnw("Redis unreachable at startup, dedup and throttling will fail open", "error", err)
		}
		handlerOpts = append(handlerOpts,
			handlers.WithDedup(services.NewDedupService(redisClient, time.Duration(cfg.Redis.DedupTTLHours)*time.Hour)),
			handlers.WithThrottle(services.NewSubmissionThrottle(services.NewRateLimitService(redisClient), cfg.Redis.SubmissionsPerMinute)),
		)
	}

	handler := handlers.NewDiscordHandler(cfg.Discord, pipeline, workerPool, notifier, handlerOpts...)
	session.AddHandler(handler.OnMessageCreate)
	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Infow("Discord session ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})

	health := services.NewHealthService(dbPinger, redisClient, workerPool, cfg.WorkerPool.QueueSize, cfg.Server.Version)
	health.SetGateway(sessionGateway{session: session})

	srv := &http.Server{
		Addr: ":" + cfg.Server.MetricsPort,
		Handler: router.SetupRouter(router.Dependencies{
			Config:        cfg,
			HealthHandler: handlers.NewHealthHandler(health),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := session.Open(); err != nil {
		shutdownPool(workerPool, cfg.WorkerPool.ShutdownTimeoutSeconds)
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	log.Infow("Order bot started", "version", cfg.Server.Version, "prefix", cfg.Discord.CommandPrefix)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("Starting health and metrics server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down, no new submissions are accepted")

		if err := session.Close(); err != nil {
			log.Warnw("Failed to close discord session", "error", err)
		}
		shutdownPool(workerPool, cfg.WorkerPool.ShutdownTimeoutSeconds)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("Health server shutdown failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// openLedger migrates the outcome ledger and connects to it.
func openLedger(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if err := db.RunMigrations(cfg.URL); err != nil {
		return nil, fmt.Errorf("outcome ledger migrations failed: %w", err)
	}
	poolCfg, err := config.ConfigurePostgresPool(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to outcome ledger: %w", err)
	}
	logger.GetLogger().Infow("Outcome ledger connected", "database", logger.MaskConnectionString(cfg.URL))
	return pool, nil
}

func shutdownPool(pool *services.WorkerPool, timeoutSeconds int) {
	ctx, cancel := context.WithTimeout(context.Background(), seconds(timeoutSeconds))
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		logger.GetLogger().Warnw("Worker pool did not drain before the deadline", "error", err)
	}
}
