// Command authcore-loadtest drives sign-in, access token validation and
// refresh rotation against a real engine and prints latency percentiles.
//
// Settings come from AUTHCORE_* environment variables (see config.go).
// Without AUTHCORE_REDIS_ADDR an in-process miniredis is used. With
// AUTHCORE_DATABASE_URL sessions and refresh chains are kept in Postgres.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore"
	otelexport "github.com/MrEthical07/authcore/metrics/export/otel"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/pgstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const loadPassword = "load-test-password"

type account struct {
	email string

	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.logLevel()}))

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("load test failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config, logger *slog.Logger) error {
	client, cleanup, err := dialRedis(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer cleanup()

	engineCfg, err := engineConfig(cfg)
	if err != nil {
		return err
	}

	users := newUserDirectory()
	builder := authcore.New().
		WithConfig(engineCfg).
		WithRedis(client).
		WithLogger(logger).
		WithEventSink(authcore.NewSlogSink(logger)).
		WithUserProvider(users).
		WithMailer(authcore.ResetTokenMailerFunc(func(context.Context, string, string, time.Time) error { return nil }))

	if cfg.DatabaseURL != "" {
		pool, err := pgstore.Open(ctx, pgstore.Config{URL: cfg.DatabaseURL, MaxConns: int32(cfg.Concurrency)})
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pgstore.Migrate(ctx, pool); err != nil {
			return err
		}
		builder = builder.
			WithSessionRepository(pgstore.NewSessionRepository(pool)).
			WithRefreshLedger(pgstore.NewRefreshLedger(pool))
		fmt.Println("using postgres for sessions and refresh tokens")
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	exporter, err := otelexport.New(provider.Meter("authcore-loadtest"), engine)
	if err != nil {
		return err
	}
	defer func() { _ = exporter.Close() }()

	accounts, err := seedAccounts(users, engineCfg, cfg.Users)
	if err != nil {
		return err
	}

	signIn := runPhase(cfg.Users, cfg.Concurrency, func(i int) error {
		acc := accounts[i]
		res, err := engine.SignIn(ctx, authcore.SignInRequest{
			Email:     acc.email,
			Password:  loadPassword,
			IPAddress: "127.0.0.1",
			UserAgent: "authcore-loadtest",
		})
		if err != nil {
			return err
		}
		acc.mu.Lock()
		acc.access, acc.refresh = res.AccessToken, res.RefreshToken
		acc.mu.Unlock()
		return nil
	})

	validate := runPhase(cfg.Ops, cfg.Concurrency, func(i int) error {
		acc := accounts[i%len(accounts)]
		acc.mu.Lock()
		token := acc.access
		acc.mu.Unlock()
		_, err := engine.ValidateAccessToken(ctx, token)
		return err
	})

	rotate := runPhase(cfg.Ops, cfg.Concurrency, func(i int) error {
		acc := accounts[i%len(accounts)]
		acc.mu.Lock()
		defer acc.mu.Unlock()
		pair, err := engine.RefreshToken(ctx, acc.refresh)
		if err != nil {
			return err
		}
		acc.access, acc.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("sign-in", signIn)
	printStats("validate", validate)
	printStats("refresh", rotate)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect otel metrics: %w", err)
	}
	fmt.Printf("otel: %d instruments collected\n", countInstruments(rm))

	if cfg.PrintMetrics {
		fmt.Println("---- prometheus ----")
		fmt.Print(promexport.New(engine).Render())
	}
	return nil
}

func dialRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func engineConfig(cfg *config) (authcore.Config, error) {
	key := []byte(cfg.SigningKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return authcore.Config{}, err
		}
	}

	out := authcore.DefaultConfig()
	out.JWT.SigningMethod = "hs256"
	out.JWT.PrivateKey = key
	out.Password.Memory = cfg.ArgonMemoryKB
	out.Password.Time = 1
	out.Password.Parallelism = 1
	out.Password.UpgradeOnSignIn = false
	out.Refresh.GracePeriod = cfg.GracePeriod
	out.Lockout.Threshold = 0
	out.Metrics.EnableLatencyHistograms = true
	return out, nil
}

func seedAccounts(users *userDirectory, cfg authcore.Config, n int) ([]*account, error) {
	argon, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinLength,
		MaxPasswordBytes: cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, err
	}
	hash, err := argon.Hash(loadPassword)
	if err != nil {
		return nil, err
	}

	accounts := make([]*account, n)
	for i := range accounts {
		email := fmt.Sprintf("user-%d@load.test", i)
		users.add(authcore.UserRecord{
			UserID:       uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
		})
		accounts[i] = &account{email: email}
	}
	return accounts, nil
}

func countInstruments(rm metricdata.ResourceMetrics) int {
	n := 0
	for _, sm := range rm.ScopeMetrics {
		n += len(sm.Metrics)
	}
	return n
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

// runPhase calls op for indexes 0..ops-1 from concurrency workers.
func runPhase(ops, concurrency int, op func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
