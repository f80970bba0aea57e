package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/fleet-rides/internal/config"
	"github.com/example/fleet-rides/internal/geo"
	"github.com/example/fleet-rides/internal/jobs"
	"github.com/example/fleet-rides/internal/logging"
	"github.com/example/fleet-rides/internal/observability"
	"github.com/example/fleet-rides/internal/storage"
)

func main() {
	var (
		metricsAddr    string
		group          string
		pricePerMinute float64
		currency       string
	)
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.StringVar(&group, "group", "fleet-actuator", "kafka consumer group")
	flag.Float64Var(&pricePerMinute, "price-per-minute", 0.25, "ride price charged per started minute")
	flag.StringVar(&currency, "currency", "USD", "currency code written on ride summaries")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	logger := logging.Component(logging.NewLogger(cfg.LogLevel), "actuator")
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if len(cfg.KafkaBrokers) == 0 || cfg.RedisAddr == "" || cfg.PGDSN == "" {
		logger.Error("KAFKA_BROKERS, REDIS_ADDR and PG_DSN are required")
		os.Exit(1)
	}

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	pg, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}

	a := &actuator{
		channels:       cfg.Channels,
		store:          pg,
		jobs:           jobs.NewRedisStore(rc, cfg.RedisJobPrefix, cfg.JobTTL, logger),
		index:          geo.NewRedisIndex(rc, cfg.SearchKeyPrefix, cfg.SearchPendingTTL, cfg.SearchResultTTL),
		pricePerMinute: pricePerMinute,
		currency:       currency,
		attempts:       3,
		delay:          200 * time.Millisecond,
		now:            time.Now,
		logger:         logger,
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			if err := pg.Ping(r.Context()); err != nil {
				http.Error(w, "postgres not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     group,
		GroupTopics: a.topics(),
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
		_ = pg.Close()
	}()

	logger.Info("actuator listening", "topics", a.topics(), "brokers", cfg.KafkaBrokers, "group", group)
	run(ctx, r, a)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// run consumes until ctx is done. Read errors back off up to 30s; handler
// errors are counted and the message is skipped.
func run(ctx context.Context, r messageReader, a *actuator) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				a.logger.Info("shutting down actuator")
				return
			}
			a.logger.Warn("kafka read error", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		if err := a.handle(ctx, m.Topic, m.Value); err != nil {
			result := "error"
			if errors.Is(err, errUnknownChannel) {
				result = "unknown"
			}
			observability.ActuatorMessages.WithLabelValues(m.Topic, result).Inc()
			a.logger.Error("message handling failed", "topic", m.Topic, "offset", m.Offset, "error", err)
			continue
		}
		observability.ActuatorMessages.WithLabelValues(m.Topic, "ok").Inc()
	}
}
