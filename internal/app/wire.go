package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/oddsmesh/crossarb/internal/blob/s3"
	"github.com/oddsmesh/crossarb/internal/breaker"
	"github.com/oddsmesh/crossarb/internal/cache/redis"
	"github.com/oddsmesh/crossarb/internal/config"
	"github.com/oddsmesh/crossarb/internal/crypto"
	"github.com/oddsmesh/crossarb/internal/domain"
	"github.com/oddsmesh/crossarb/internal/executor"
	"github.com/oddsmesh/crossarb/internal/feed"
	"github.com/oddsmesh/crossarb/internal/graph"
	"github.com/oddsmesh/crossarb/internal/notify"
	"github.com/oddsmesh/crossarb/internal/resolve"
	"github.com/oddsmesh/crossarb/internal/scan"
	"github.com/oddsmesh/crossarb/internal/semantic"
	"github.com/oddsmesh/crossarb/internal/server"
	"github.com/oddsmesh/crossarb/internal/server/handler"
	"github.com/oddsmesh/crossarb/internal/store/postgres"
	"github.com/oddsmesh/crossarb/internal/venue/betfair"
	"github.com/oddsmesh/crossarb/internal/venue/polymarket"
	"github.com/oddsmesh/crossarb/internal/venue/sxbet"
)

// Runner is a long-lived goroutine owned by a mode.
type Runner interface {
	Run(ctx context.Context) error
}

// Dependencies bundles everything the modes need. Wire constructs it and the
// returned cleanup function releases the underlying connections.
type Dependencies struct {
	// Stores
	Mappings     domain.MappingStore
	Suggestions  domain.SuggestionStore
	Executions   domain.ExecutionStore
	BreakerStore domain.BreakerStore

	// Redis
	Locks     domain.LockManager
	Cache     domain.SemanticCache
	Snapshots *redis.SnapshotCache

	// Market access
	Feeds       map[domain.Venue]domain.MarketFeed
	FeedRunners []Runner
	Gateways    map[domain.Venue]domain.OrderGateway
	Oracle      domain.BalanceOracle

	// Engine
	Breaker       *breaker.Breaker
	Coordinator   *executor.Coordinator
	Resolver      *resolve.Resolver
	Orchestrator  *scan.Orchestrator
	SuggestionSvc *scan.SuggestionService

	// Periphery
	Archiver *s3blob.Archiver
	Notifier *notify.Notifier
	Server   *server.Server
}

// Wire constructs every concrete dependency from the configuration. The
// cleanup function must be called on shutdown; it is safe to call even when
// Wire returns an error.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// PostgreSQL.
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Mappings = postgres.NewMappingStore(pool)
	deps.Suggestions = postgres.NewSuggestionStore(pool)
	deps.Executions = postgres.NewExecutionStore(pool)
	deps.BreakerStore = postgres.NewBreakerStore(pool)

	// Redis.
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Locks = redis.NewLockManager(redisClient)
	deps.Snapshots = redis.NewSnapshotCache(redisClient)
	// No embedding provider is wired by default; the cache degrades to its
	// exact-hash tier.
	deps.Cache = redis.NewSemanticCache(redisClient, nil, 0.90, logger)

	// Notifications.
	deps.Notifier = buildNotifier(cfg, logger)

	// Venue clients, feeds, and gateways.
	if err := wireVenues(cfg, deps, logger); err != nil {
		cleanup()
		return nil, nil, err
	}

	// Circuit breaker.
	brk, err := breaker.New(ctx, breaker.Config{
		InitialCapital: cfg.Breaker.InitialCapital,
		MaxDrawdownPct: cfg.Breaker.MaxDrawdownPct,
		MaxErrorRate:   cfg.Breaker.MaxErrorRate,
		MinSafeBalance: cfg.Breaker.MinSafeBalance,
		WarmupAttempts: cfg.Breaker.WarmupAttempts,
	}, deps.BreakerStore, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: breaker: %w", err)
	}
	deps.Breaker = brk

	// Execution coordinator.
	deps.Coordinator = executor.NewCoordinator(executor.Config{
		RollbackSlippage:  cfg.Executor.RollbackSlippage,
		EmergencySlippage: cfg.Executor.EmergencySlippage,
		LockTTL:           cfg.Executor.LockTTL.Duration,
	}, deps.Gateways, deps.Executions, deps.Locks, brk, deps.Notifier, logger)

	sourceVenue := domain.Venue(cfg.Scan.SourceVenue)

	// Resolution pipeline. The entity set is shared with the suggestion
	// service so aliases mined from promoted pairings reach the resolver,
	// and persisted mappings replay their titles at startup so the learned
	// vocabulary survives restarts.
	entities := resolve.NewEntitySet()
	for venue := range deps.Feeds {
		if venue == sourceVenue {
			continue
		}
		active, err := deps.Mappings.ListActive(ctx, domain.VenuePair(sourceVenue, venue))
		if err != nil {
			logger.Warn("wire: alias replay skipped",
				slog.String("venue", string(venue)), slog.Any("error", err))
			continue
		}
		for _, m := range active {
			entities.LearnFrom(m.SourceTitle, m.TargetTitle)
		}
	}

	matcher := semantic.NewKeywordMatcher(cfg.Resolver.DefaultMinConfidence*100, logger)
	deps.Resolver = resolve.NewResolver(entities, deps.Cache, matcher, resolve.Config{
		MinConfidence:        cfg.Resolver.MinConfidence,
		DefaultMinConfidence: cfg.Resolver.DefaultMinConfidence,
		MaxDivergence:        cfg.Resolver.MaxDivergence,
		MappingTTL:           cfg.Resolver.MappingTTL.Duration,
		NegativeTTL:          cfg.Resolver.NegativeTTL.Duration,
	}, logger)

	feeRates := make(map[domain.Venue]float64, len(cfg.Scan.FeeRates))
	for v, rate := range cfg.Scan.FeeRates {
		feeRates[domain.Venue(v)] = rate
	}

	deps.Orchestrator = scan.NewOrchestrator(scan.Config{
		SourceVenue:     sourceVenue,
		Concurrency:     int64(cfg.Scan.Concurrency),
		MinROIPct:       cfg.Scan.MinROIPct,
		MinLiquidityUSD: cfg.Scan.MinLiquidityUSD,
		MaxDivergence:   cfg.Resolver.MaxDivergence,
		FeeRates:        feeRates,
		CandidateWindow: cfg.Resolver.CandidateWindow.Duration,
		MaxFeedAge:      cfg.Scan.MaxFeedAge.Duration,
	}, deps.Feeds, deps.Resolver, deps.Mappings, deps.Coordinator, brk, deps.Notifier, logger)

	deps.SuggestionSvc = scan.NewSuggestionService(scan.SuggestionConfig{
		PromoteAfter: cfg.Suggestions.PromoteAfter,
		AutoPromote:  cfg.Suggestions.AutoPromote,
		MinScore:     cfg.Suggestions.MinScore,
	}, sourceVenue, graph.NewEngine(graph.DefaultConfig(), logger), deps.Suggestions, deps.Mappings, entities, logger)

	// Operator API.
	if cfg.Server.Enabled {
		deps.Server = server.NewServer(server.Config{Port: cfg.Server.Port}, server.Handlers{
			Health:      handler.NewHealthHandler(),
			Stats:       handler.NewStatsHandler(deps.Orchestrator, brk, deps.Coordinator),
			Suggestions: handler.NewSuggestionHandler(deps.Suggestions, deps.SuggestionSvc, logger),
			Breaker:     handler.NewBreakerHandler(brk, deps.Coordinator, logger),
			Markets:     handler.NewMarketHandler(deps.Snapshots, logger),
		}, logger)
	}

	// Audit archiver.
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Executions, logger)
	}

	return deps, cleanup, nil
}

// wireVenues builds the per-venue market feeds and order gateways. With
// DryRun set, gateways are replaced by paper simulations backed by a shared
// book; feeds always talk to the real venues.
func wireVenues(cfg *config.Config, deps *Dependencies, logger *slog.Logger) error {
	maxAge := cfg.Scan.MaxFeedAge.Duration

	var signer *crypto.Signer
	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fmt.Errorf("wire: wallet key: %w", err)
		}
		signer, err = crypto.NewSigner(key, cfg.SX.ChainID)
		if err != nil {
			return fmt.Errorf("wire: signer: %w", err)
		}
	}

	var pmAuth *crypto.HMACAuth
	if cfg.Polymarket.APIKey != "" {
		pmAuth = &crypto.HMACAuth{
			Key:        cfg.Polymarket.APIKey,
			Secret:     cfg.Polymarket.APISecret,
			Passphrase: cfg.Polymarket.APIPassphrase,
		}
	}
	walletAddr := ""
	if signer != nil {
		walletAddr = signer.Address().Hex()
	}
	pmClient := polymarket.NewClient(polymarket.Config{
		RestURL: cfg.Polymarket.RestURL,
		Address: walletAddr,
	}, pmAuth)

	bfClient := betfair.NewClient(betfair.Config{
		BaseURL:      cfg.Betfair.BaseURL,
		AppKey:       cfg.Betfair.AppKey,
		SessionToken: cfg.Betfair.SessionToken,
	})

	sxClient := sxbet.NewClient(sxbet.Config{
		RestURL:   cfg.SX.RestURL,
		BaseToken: cfg.SX.BaseToken,
		Executor:  cfg.SX.Executor,
	}, signer)

	// Feeds. Websocket venues fall back to polling when no stream endpoint
	// is configured.
	deps.Feeds = make(map[domain.Venue]domain.MarketFeed, 3)
	addFeed := func(venue domain.Venue, wsURL string, fetch feed.FetchFunc, pollCfg feed.PollerConfig) {
		if wsURL != "" {
			ws := feed.NewWSFeed(venue, wsURL, maxAge, deps.Snapshots, logger)
			deps.Feeds[venue] = ws
			deps.FeedRunners = append(deps.FeedRunners, ws)
			return
		}
		p := feed.NewPoller(venue, fetch, pollCfg, deps.Snapshots, logger)
		deps.Feeds[venue] = p
		deps.FeedRunners = append(deps.FeedRunners, p)
	}

	defaultPoll := feed.DefaultPollerConfig()
	defaultPoll.MaxAge = maxAge

	addFeed(domain.VenuePolymarket, cfg.Polymarket.WSURL, pmClient.FetchMarkets, defaultPoll)
	addFeed(domain.VenueBetfair, "", bfClient.FetchMarkets, feed.PollerConfig{
		Interval: cfg.Betfair.PollInterval.Duration,
		MaxAge:   maxAge,
		RPS:      cfg.Betfair.RPS,
		Burst:    1,
	})
	addFeed(domain.VenueSX, cfg.SX.WSURL, sxClient.FetchMarkets, defaultPoll)

	// Gateways and the balance oracle.
	if cfg.Executor.DryRun {
		book := executor.NewPaperBook(cfg.Breaker.InitialCapital)
		deps.Oracle = book
		deps.Gateways = map[domain.Venue]domain.OrderGateway{
			domain.VenuePolymarket: executor.NewPaperGateway(domain.VenuePolymarket, book, logger),
			domain.VenueBetfair:    executor.NewPaperGateway(domain.VenueBetfair, book, logger),
			domain.VenueSX:         executor.NewPaperGateway(domain.VenueSX, book, logger),
		}
		return nil
	}

	deps.Gateways = map[domain.Venue]domain.OrderGateway{
		domain.VenuePolymarket: pmClient,
		domain.VenueBetfair:    bfClient,
		domain.VenueSX:         sxClient,
	}
	if pmAuth != nil {
		deps.Oracle = pmClient
	}
	return nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}
