package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"priority-dispatch/dispatch"
	"priority-dispatch/dispatch/domain"
	"priority-dispatch/dispatch/infra"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.logFormat, cfg.logLevel)

	var stats domain.StatsStore
	var async *infra.AsyncStatsStore
	if cfg.statsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			log.Fatalf("redis stats ping error: %v", err)
		}

		redisStats := infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackLabels(cfg.statsTrackLabels),
		)
		async = infra.NewAsyncStatsStore(redisStats, int64(cfg.statsInflight),
			infra.WithErrorHandler(func(err error) { logger.Warn("redis stats write failed", "err", err) }),
		)
		stats = async
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if cfg.runTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, cfg.runTimeout)
		defer cancelTimeout()
	}

	d, err := dispatch.New(dispatch.Options{
		MaxConcurrency:   cfg.maxConcurrency,
		LatencyBound:     cfg.latencyBound,
		Seed:             cfg.seed,
		AdmissionTimeout: cfg.admissionTimeout,
		StartRPS:         cfg.startRPS,
		StartBurst:       cfg.startBurst,
		Stats:            stats,
		Logger:           logger,
	})
	if err != nil {
		log.Fatalf("dispatcher error: %v", err)
	}

	items := generateItems(cfg.items, cfg.maxWeight, d.Seed())

	log.Printf("dispatch: items=%d maxWeight=%d seed=%d", cfg.items, cfg.maxWeight, d.Seed())
	log.Printf("concurrency: max=%d latencyBound=%s admissionTimeout=%s", cfg.maxConcurrency, cfg.latencyBound, cfg.admissionTimeout)
	log.Printf("pacing: rps=%.3f burst=%d", cfg.startRPS, cfg.startBurst)
	log.Printf("stats: enabled=%v redisAddr=%q bucket=%q ttl=%s trackLabels=%v", cfg.statsEnabled, cfg.statsRedisAddr, cfg.statsBucket, cfg.statsTTL, cfg.statsTrackLabels)

	res, runErr := d.RunBatch(ctx, items, newHandler(logger, items, cfg.failEvery))
	if runErr != nil && res == nil {
		log.Fatalf("batch error: %v", runErr)
	}

	if async != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := async.Flush(flushCtx); err != nil {
			log.Printf("stats flush error: %v", err)
		}
		cancel()
		log.Printf("stats: dropped=%d failed=%d", async.Dropped(), async.Failed())
	}

	gs := d.GateStats()
	log.Printf("batch %s: completed=%d failed=%d duration=%s acquired=%d released=%d",
		res.ID, res.Completed(), res.Failed(), res.Duration.Round(time.Millisecond), gs.Acquired, gs.Released)

	if runErr != nil {
		log.Printf("batch error: %v", runErr)
		os.Exit(1)
	}
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

type config struct {
	items            int
	maxWeight        int
	maxConcurrency   int
	latencyBound     time.Duration
	admissionTimeout time.Duration
	startRPS         float64
	startBurst       int
	seed             uint64
	failEvery        int
	runTimeout       time.Duration
	logFormat        string
	logLevel         string

	statsEnabled       bool
	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackLabels   bool
	statsInflight      int
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.items = getenvIntDefault("ITEMS", 1000)
	cfg.maxWeight = getenvIntDefault("MAX_WEIGHT", 20)
	cfg.maxConcurrency = getenvIntDefault("MAX_CONCURRENCY", dispatch.DefaultMaxConcurrency)
	cfg.latencyBound = getenvDurationDefault("LATENCY_BOUND", dispatch.DefaultLatencyBound)
	cfg.admissionTimeout = getenvDurationDefault("ADMISSION_TIMEOUT", 0)
	cfg.startRPS = getenvFloatDefault("START_RPS", 0)
	cfg.startBurst = getenvIntDefault("START_BURST", 1)
	cfg.seed = getenvUint64Default("SEED", 0)
	cfg.failEvery = getenvIntDefault("FAIL_EVERY", 0)
	cfg.runTimeout = getenvDurationDefault("RUN_TIMEOUT", 0)
	cfg.logFormat = getenvDefault("LOG_FORMAT", "text")
	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")

	cfg.statsEnabled = getenvBoolDefault("STATS_ENABLED", false)
	cfg.statsRedisAddr = getenvDefault("STATS_REDIS_ADDR", "")
	cfg.statsRedisPassword = os.Getenv("STATS_REDIS_PASSWORD")
	cfg.statsRedisDB = getenvIntDefault("STATS_REDIS_DB", 0)
	cfg.statsPrefix = getenvDefault("STATS_PREFIX", "dispatch:stats")
	cfg.statsTTL = getenvDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("STATS_BUCKET", "minute")
	cfg.statsTrackLabels = getenvBoolDefault("STATS_TRACK_LABELS", false)
	cfg.statsInflight = getenvIntDefault("STATS_INFLIGHT", 32)

	if cfg.statsEnabled && strings.TrimSpace(cfg.statsRedisAddr) == "" {
		return config{}, errors.New("STATS_REDIS_ADDR is required when STATS_ENABLED=true")
	}

	if cfg.items < 0 {
		return config{}, errors.New("ITEMS must be >= 0")
	}
	if cfg.maxWeight <= 0 {
		return config{}, errors.New("MAX_WEIGHT must be > 0")
	}
	if cfg.maxConcurrency < 1 {
		return config{}, errors.New("MAX_CONCURRENCY must be >= 1")
	}
	if cfg.latencyBound < 0 {
		return config{}, errors.New("LATENCY_BOUND must be >= 0")
	}
	if cfg.startRPS < 0 {
		return config{}, errors.New("START_RPS must be >= 0")
	}
	if cfg.failEvery < 0 {
		return config{}, errors.New("FAIL_EVERY must be >= 0")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvUint64Default(k string, def uint64) uint64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return u
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
