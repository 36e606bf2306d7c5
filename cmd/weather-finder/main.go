package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/JonathanRys/weather-finder/internal/archive"
	"github.com/JonathanRys/weather-finder/internal/cache"
	"github.com/JonathanRys/weather-finder/internal/config"
	"github.com/JonathanRys/weather-finder/internal/fetch"
	"github.com/JonathanRys/weather-finder/internal/httpapi"
	"github.com/JonathanRys/weather-finder/internal/location"
	"github.com/JonathanRys/weather-finder/internal/mqtt"
	"github.com/JonathanRys/weather-finder/internal/nws"
	"github.com/JonathanRys/weather-finder/internal/observability"
	"github.com/JonathanRys/weather-finder/internal/poller"
)

const serviceName = "weather-finder"

func main() {
	configPath := flag.String("config", os.Getenv("WEATHER_FINDER_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownObs, promHandler, tracer, err := observability.SetupObservability(ctx, serviceName, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		slog.Error("observability setup failed", "error", err)
		os.Exit(1)
	}
	defer shutdownObs()

	opts := fetch.Options{
		Timeout:           cfg.HTTP.Timeout,
		RetryCount:        cfg.HTTP.RetryCount,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
		Logger:            slog.Default(),
	}
	if cfg.Location.APIKey == "" {
		slog.Warn("location api key not set; location lookups will be rejected upstream")
	}
	locClient := location.New(location.Config{
		BaseURL:  cfg.Location.BaseURL,
		APIKey:   cfg.Location.APIKey,
		Language: cfg.Location.Language,
	}, opts)
	wxClient := nws.New(nws.Config{
		BaseURL:          cfg.Weather.BaseURL,
		UserAgent:        cfg.Weather.UserAgent,
		Accept:           cfg.Weather.Accept,
		StationPageLimit: cfg.Weather.StationPageLimit,
		MaxStationPages:  cfg.Weather.MaxStationPages,
	}, opts)

	store := setupCache(ctx, cfg.Cache)

	var history httpapi.History
	var repo *archive.Repo
	if cfg.Archive.Enabled {
		db, err := archive.Open(cfg.Archive.Driver, cfg.Archive.DSN, archive.PostgresConfig{
			User:     cfg.Archive.Postgres.User,
			Password: cfg.Archive.Postgres.Password,
			DBName:   cfg.Archive.Postgres.DBName,
			Host:     cfg.Archive.Postgres.Host,
			Port:     cfg.Archive.Postgres.Port,
			SSLMode:  cfg.Archive.Postgres.SSLMode,
		})
		if err != nil {
			slog.Error("archive connect failed", "driver", cfg.Archive.Driver, "error", err)
			os.Exit(1)
		}
		repo, err = archive.New(db)
		if err != nil {
			slog.Error("archive migrate failed", "error", err)
			os.Exit(1)
		}
		history = repo
		slog.Info("observation archive enabled", "driver", cfg.Archive.Driver)
	}

	var publisher poller.Publisher
	if strings.TrimSpace(cfg.MQTT.BrokerURL) != "" {
		mq, err := mqtt.Connect(mqtt.Options{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			StatusTopic: cfg.MQTT.StatusTopic,
		})
		if err != nil {
			slog.Error("mqtt connect failed", "error", err)
			os.Exit(1)
		}
		defer mq.Close()
		publisher = mq
	}

	if len(cfg.Poller.Stations) > 0 {
		p := poller.New(wxClient, repo, poller.Options{
			Schedule:    cfg.Poller.Schedule,
			Stations:    cfg.Poller.Stations,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Publisher:   publisher,
		})
		if err := p.Start(ctx); err != nil {
			slog.Error("poller start failed", "error", err)
			os.Exit(1)
		}
		defer p.Stop()
	}

	srv := httpapi.NewServer(locClient, wxClient, store, history)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Trace-ID", "X-Cache"},
		MaxAge:         300,
	}))
	r.Use(observability.MetricsAndTracingMiddleware(tracer, serviceName))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promHandler)
	r.Route("/api", srv.RegisterRoutes)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.HTTP.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("weather-finder started", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// setupCache prefers Redis when an address is configured; otherwise responses are cached in
// process and expired entries pruned once per TTL.
func setupCache(ctx context.Context, cfg config.CacheConfig) cache.Store {
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis ping failed; continuing", "addr", cfg.RedisAddr, "error", err)
		}
		if cfg.TTL <= 0 {
			slog.Info("response cache disabled", "ttl", cfg.TTL)
		}
		rc := cache.NewRedis(rdb, cfg.TTL)
		if cfg.PurgeOnStart {
			n, err := rc.Purge(ctx)
			if err != nil {
				slog.Warn("cache purge failed", "error", err)
			} else {
				slog.Info("cache purged", "keys", n)
			}
		}
		return rc
	}

	if cfg.TTL <= 0 {
		slog.Info("response cache disabled", "ttl", cfg.TTL)
	}
	mc := cache.NewMemory(cfg.TTL)
	if cfg.TTL > 0 {
		go func() {
			t := time.NewTicker(cfg.TTL)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if n := mc.Prune(); n > 0 {
						slog.Debug("cache pruned", "entries", n, "remaining", mc.Len())
					}
				}
			}
		}()
	}
	return mc
}

func setupLogging(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}
