// Command authcore-loadtest seeds sessions through the real login path and
// then hammers the two hot operations, access validation and refresh, against
// Redis (or miniredis when no address is given). It reports throughput and
// latency percentiles per phase.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keikakun/authcore"
	"github.com/keikakun/authcore/password"
)

const seedPassword = "correct horse 1"

type sessionState struct {
	access  string
	refresh string
}

func main() {
	var (
		sessions    = flag.Int("sessions", 1000, "number of sessions to seed via login")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, directory, err := buildEngine(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]sessionState, *sessions)
	fmt.Printf("seeding %d sessions via login...\n", *sessions)
	startSeed := time.Now()
	for i := 0; i < *sessions; i++ {
		email := fmt.Sprintf("load-%d@example.com", i)
		directory.put(email)
		result, err := engine.Login(ctx, authcore.LoginInput{Email: email, Password: seedPassword})
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed login failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = sessionState{access: result.AccessToken, refresh: result.RefreshToken}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(ctx, states, *ops, *concurrency, func(ctx context.Context, s *sessionState) error {
		_, err := engine.ValidateAccess(ctx, s.access)
		return err
	})
	refreshStats := runPhase(ctx, states, *ops, *concurrency, func(ctx context.Context, s *sessionState) error {
		// No rotation: the same refresh token stays valid until revoked.
		_, err := engine.Refresh(ctx, s.refresh)
		return err
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
}

func buildEngine(client redis.UniversalClient) (*authcore.Engine, *loadDirectory, error) {
	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("loadtest-signing-key-32-bytes-!!")
	cfg.Security.MFAEncryptionKey = []byte("loadtest-mfa-key-32-bytes-long!!")
	cfg.Breach.Enabled = false
	// Cheap hashing: the seed phase logs in once per session and argon2id at
	// production cost would dominate the run.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	// The login attempt window would throttle the seed loop.
	cfg.Attempts.Policies[authcore.ActionLogin] = authcore.AttemptPolicy{
		Window:      time.Minute,
		MaxAttempts: 1 << 30,
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, nil, err
	}
	hash, err := hasher.Hash(seedPassword)
	if err != nil {
		return nil, nil, err
	}

	directory := &loadDirectory{
		sharedHash: hash,
		byEmail:    make(map[string]string),
		byID:       make(map[string]authcore.PrincipalRecord),
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(directory).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return engine, directory, nil
}

func runPhase(ctx context.Context, states []sessionState, ops, concurrency int, op func(context.Context, *sessionState) error) phaseStats {
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
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				t0 := time.Now()
				err := op(ctx, &states[idx])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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

// loadDirectory is the minimal read-mostly provider the login and refresh
// paths need. Every account shares one verified record shape and one
// password hash.
type loadDirectory struct {
	authcore.DirectoryProvider

	mu         sync.RWMutex
	sharedHash string
	byEmail    map[string]string
	byID       map[string]authcore.PrincipalRecord
	next       int
}

func (d *loadDirectory) put(email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	record := authcore.PrincipalRecord{
		ID:            fmt.Sprintf("load-%d", d.next),
		Email:         email,
		Name:          "Load Test",
		Role:          authcore.RoleEmployee,
		PasswordHash:  d.sharedHash,
		EmailVerified: true,
	}
	d.byEmail[email] = record.ID
	d.byID[record.ID] = record
}

func (d *loadDirectory) GetPrincipalByEmail(_ context.Context, email string) (authcore.PrincipalRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[email]
	if !ok {
		return authcore.PrincipalRecord{}, authcore.ErrPrincipalNotFound
	}
	return d.byID[id], nil
}

func (d *loadDirectory) GetPrincipalByID(_ context.Context, id string) (authcore.PrincipalRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	record, ok := d.byID[id]
	if !ok {
		return authcore.PrincipalRecord{}, authcore.ErrPrincipalNotFound
	}
	return record, nil
}

func (d *loadDirectory) RecordFailedPassword(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (d *loadDirectory) ResetFailedPassword(_ context.Context, _ string) error {
	return nil
}

func (d *loadDirectory) UpdatePasswordHash(_ context.Context, _ string, _ string) error {
	return nil
}

func (d *loadDirectory) SetLocked(_ context.Context, _ string, _ bool) error {
	return nil
}
