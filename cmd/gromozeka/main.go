// Command gromozeka runs the chat-moderation bot: Telegram long-poll
// ingress, the spam-detection pipeline, and the assistance handlers.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
	"github.com/NotA-Company/gromozeka-sub003/bayes"
	"github.com/NotA-Company/gromozeka-sub003/detector"
	"github.com/NotA-Company/gromozeka-sub003/frontend/telegram"
	"github.com/NotA-Company/gromozeka-sub003/internal/config"
	"github.com/NotA-Company/gromozeka-sub003/observer"
	"github.com/NotA-Company/gromozeka-sub003/provider/resolve"
	"github.com/NotA-Company/gromozeka-sub003/search"
	"github.com/NotA-Company/gromozeka-sub003/settings"
	"github.com/NotA-Company/gromozeka-sub003/store/postgres"
	"github.com/NotA-Company/gromozeka-sub003/store/sqlite"
	"github.com/NotA-Company/gromozeka-sub003/weather"
	"github.com/NotA-Company/gromozeka-sub003/webfetch"
)

// backend is the full storage surface the bot needs from either store.
type backend interface {
	gromozeka.BayesStore
	gromozeka.UserStore
	gromozeka.MessageStore
	gromozeka.SettingsStore
	Init(ctx context.Context) error
	Close() error
}

func main() {
	cfg := config.Load(os.Getenv("GROMOZEKA_CONFIG"))
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: postgres when configured, sqlite otherwise. The cache
	// factory hands out persistent namespaces from the same backend.
	var (
		store    backend
		newCache func(namespace string, maxSize int, ttl time.Duration) gromozeka.Cache
	)
	if cfg.Database.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		pg := postgres.New(pool)
		store = pg
		newCache = func(ns string, maxSize int, ttl time.Duration) gromozeka.Cache {
			return pg.Cache(ns, maxSize, ttl)
		}
	} else {
		sq := sqlite.New(cfg.Database.Path)
		store = sq
		newCache = func(ns string, maxSize int, ttl time.Duration) gromozeka.Cache {
			return sq.Cache(ns, maxSize, ttl)
		}
	}
	if err := store.Init(ctx); err != nil {
		log.Fatalf("store init: %v", err)
	}
	defer store.Close()

	var tracer gromozeka.Tracer
	if cfg.Observer.Enabled {
		tracer = observer.NewTracer()
		logger.Info("tracing enabled")
	}

	limiters := gromozeka.NewLimiters(cfg.LimitRules())
	resolver := settings.NewResolver(store, settings.WithLogger(logger))
	delay := gromozeka.NewDelayQueue(logger)

	classifier := bayes.New(store, bayes.Config{PerChatStats: true},
		bayes.WithLogger(logger))

	bot := telegram.NewBot(cfg.Telegram.Token,
		telegram.WithLogger(logger),
		telegram.WithPollTimeout(cfg.Telegram.PollTimeout))

	detOpts := []detector.Option{
		detector.WithLogger(logger),
		detector.WithDelayQueue(delay),
	}
	if tracer != nil {
		detOpts = append(detOpts, detector.WithTracer(tracer))
	}
	det := detector.New(store, store, classifier, bot, resolver, detOpts...)

	llm, err := resolve.Provider(resolve.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("llm provider: %v", err)
	}

	fetchOpts := []webfetch.Option{
		webfetch.WithProvider(llm),
		webfetch.WithSettings(resolver),
		webfetch.WithLimiters(limiters),
		webfetch.WithFallbackModel(cfg.Fetch.FallbackModel),
		webfetch.WithLogger(logger),
	}
	if cfg.Fetch.UserAgent != "" {
		fetchOpts = append(fetchOpts, webfetch.WithUserAgent(cfg.Fetch.UserAgent))
	}
	if tracer != nil {
		fetchOpts = append(fetchOpts, webfetch.WithTracer(tracer))
	}
	fetcher := webfetch.New(
		newCache("webfetch-condensed", 256, 24*time.Hour),
		newCache("webfetch-raw", 256, time.Hour),
		fetchOpts...)

	var searcher *search.Client
	if cfg.Search.Endpoint != "" {
		searcher = search.NewClient(cfg.Search.Endpoint, cfg.Search.APIKey,
			search.WithCache(newCache("search", 256, 30*time.Minute)),
			search.WithLimiters(limiters),
			search.WithLogger(logger))
	}

	var forecaster *weather.Client
	if cfg.Weather.GeocodeEndpoint != "" && cfg.Weather.WeatherEndpoint != "" {
		forecaster = weather.NewClient(
			cfg.Weather.GeocodeEndpoint, cfg.Weather.WeatherEndpoint, cfg.Weather.APIKey,
			weather.WithCaches(
				newCache("geocode", 512, 30*24*time.Hour),
				newCache("weather", 512, 30*time.Minute)),
			weather.WithLimiters(limiters),
			weather.WithLogger(logger))
	}

	pipeOpts := []gromozeka.PipelineOption{
		gromozeka.WithSpamChecker(det),
		gromozeka.WithLogger(logger),
		gromozeka.WithDelayQueue(delay),
	}
	if tracer != nil {
		pipeOpts = append(pipeOpts, gromozeka.WithTracer(tracer))
	}
	pipe := gromozeka.NewPipeline(resolver, pipeOpts...)

	registerHandlers(pipe, handlerDeps{
		platform:   bot,
		detector:   det,
		settings:   resolver,
		fetcher:    fetcher,
		searcher:   searcher,
		forecaster: forecaster,
		logger:     logger,
	})
	wiz := newWizard(bot, resolver, logger)

	go pipe.Run(ctx)
	defer pipe.Shutdown()

	events, err := bot.Poll(ctx)
	if err != nil {
		log.Fatalf("poll: %v", err)
	}
	logger.Info("gromozeka running")

	for ev := range events {
		switch {
		case ev.Message != nil:
			env := ev.Message
			if err := env.Validate(); err != nil {
				logger.Warn("dropping invalid message", "err", err)
				continue
			}
			ingest(ctx, store, store, env, logger)
			pipe.Enqueue(ctx, env)
		case ev.Callback != nil:
			wiz.Handle(ctx, ev.Callback)
		}
	}
}

// ingest records the sender and the message before classification; the
// detector's ceiling and duplicate heuristics read what is written here.
func ingest(ctx context.Context, users gromozeka.UserStore, messages gromozeka.MessageStore, env *gromozeka.Envelope, logger *slog.Logger) {
	if err := users.UpsertChatUser(ctx, env.User, env.Chat.ID); err != nil {
		logger.Warn("user upsert failed", "chat", env.Chat.ID, "err", err)
	}
	if env.Text == "" {
		return
	}
	err := messages.RecordMessage(ctx, gromozeka.StoredMessage{
		ChatID:    env.Chat.ID,
		UserID:    env.User.ID,
		MessageID: env.MessageID,
		Text:      env.Text,
		CreatedAt: env.Time.Unix(),
	})
	if err != nil {
		logger.Warn("message record failed", "chat", env.Chat.ID, "err", err)
	}
}
