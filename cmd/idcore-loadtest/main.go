// Command idcore-loadtest seeds identities and drives concurrent login,
// validate, and refresh operations against a local engine, reporting
// throughput and latency percentiles. Useful for sizing argon2
// parameters and the rate-limit store.
package main

import (
	"context"
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	idcore "github.com/guildworks/idcore"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type memoryDirectory struct {
	mu      sync.RWMutex
	byID    map[string]*idcore.Identity
	byEmail map[string]string
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{
		byID:    make(map[string]*idcore.Identity),
		byEmail: make(map[string]string),
	}
}

func (d *memoryDirectory) FindByEmail(_ context.Context, email string) (*idcore.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[email]
	if !ok {
		return nil, idcore.ErrIdentityNotFound
	}
	out := *d.byID[id]
	return &out, nil
}

func (d *memoryDirectory) FindByID(_ context.Context, subjectID string) (*idcore.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	identity, ok := d.byID[subjectID]
	if !ok {
		return nil, idcore.ErrIdentityNotFound
	}
	out := *identity
	return &out, nil
}

func (d *memoryDirectory) Create(_ context.Context, input idcore.CreateIdentityInput) (*idcore.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byEmail[input.Email]; exists {
		return nil, idcore.ErrAccountExists
	}
	identity := &idcore.Identity{
		ID:           uuid.NewString(),
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		DisplayName:  input.DisplayName,
		Active:       true,
	}
	d.byID[identity.ID] = identity
	d.byEmail[identity.Email] = identity.ID
	out := *identity
	return &out, nil
}

func (d *memoryDirectory) UpdatePasswordHash(_ context.Context, subjectID, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[subjectID]
	if !ok {
		return idcore.ErrIdentityNotFound
	}
	identity.PasswordHash = hash
	return nil
}

func (d *memoryDirectory) SetPasswordHashIfUnset(_ context.Context, subjectID, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[subjectID]
	if !ok {
		return idcore.ErrIdentityNotFound
	}
	if identity.PasswordHash != "" {
		return idcore.ErrCredentialAlreadySet
	}
	identity.PasswordHash = hash
	return nil
}

func (d *memoryDirectory) FlagsFor(_ context.Context, subjectID string) (idcore.FlagSet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.byID[subjectID]; !ok {
		return nil, idcore.ErrIdentityNotFound
	}
	return idcore.FlagSet{"content_editor": true}, nil
}

func (d *memoryDirectory) TouchLastLogin(_ context.Context, subjectID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if identity, ok := d.byID[subjectID]; ok {
		identity.LastLoginAt = at
	}
	return nil
}

func (d *memoryDirectory) DeleteCascade(_ context.Context, subjectID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[subjectID]
	if !ok {
		return idcore.ErrIdentityNotFound
	}
	delete(d.byEmail, identity.Email)
	delete(d.byID, subjectID)
	return nil
}

func main() {
	var (
		accounts    = flag.Int("accounts", 500, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 32, "number of concurrent workers")
		ops         = flag.Int("ops", 5000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
	}
	if cleanup != nil {
		defer cleanup()
	}

	client := redis.NewClient(&redis.Options{Addr: addr, PoolSize: *concurrency * 2})
	defer client.Close()

	_, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen failed: %v\n", err)
		os.Exit(1)
	}

	cfg := idcore.DefaultConfig()
	cfg.Token.PrivateKey = priv
	cfg.Password.Pepper = []byte("loadtest-pepper-at-least-16-bytes")
	// Lighter hashing so the run measures engine overhead, not argon2.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	// High limiter budget: every op here is a successful login.
	cfg.Login.MaxAttempts = 1 << 20

	directory := newMemoryDirectory()
	engine, err := idcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(directory).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	const passwordFixture = "loadtest-password"

	fmt.Printf("seeding %d accounts...\n", *accounts)
	emails := make([]string, *accounts)
	seedStart := time.Now()
	for i := range emails {
		emails[i] = fmt.Sprintf("member%06d@example.com", i)
		if _, err := engine.CreateAccount(ctx, idcore.CreateAccountRequest{
			Email:       emails[i],
			Password:    passwordFixture,
			DisplayName: fmt.Sprintf("Member %d", i),
		}); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed at %d: %v\n", i, err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(seedStart).Round(time.Millisecond))

	// Phase 1: logins. Collect tokens for phases 2 and 3.
	tokens := make([]string, *ops)
	refreshTokens := make([]string, *ops)
	loginLat := runPhase("login", *ops, *concurrency, func(i int, rng *rand.Rand) error {
		email := emails[rng.Intn(len(emails))]
		res, err := engine.Login(ctx, email, passwordFixture)
		if err != nil {
			return err
		}
		tokens[i] = res.AccessToken
		refreshTokens[i] = res.RefreshToken
		return nil
	})

	validateLat := runPhase("validate", *ops, *concurrency, func(i int, _ *rand.Rand) error {
		_, err := engine.Validate(ctx, tokens[i])
		return err
	})

	refreshLat := runPhase("refresh", *ops, *concurrency, func(i int, _ *rand.Rand) error {
		_, err := engine.Refresh(ctx, refreshTokens[i])
		return err
	})

	report("login", loginLat)
	report("validate", validateLat)
	report("refresh", refreshLat)

	snapshot := engine.MetricsSnapshot()
	fmt.Printf("\ncounters: login_success=%d refresh_success=%d\n",
		snapshot.Counters[idcore.MetricLoginSuccess],
		snapshot.Counters[idcore.MetricRefreshSuccess],
	)
}

func runPhase(name string, ops, concurrency int, fn func(i int, rng *rand.Rand) error) []time.Duration {
	fmt.Printf("phase %s: %d ops, %d workers\n", name, ops, concurrency)

	latencies := make([]time.Duration, ops)
	var next atomic.Int64
	var failures atomic.Int64
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				i := int(next.Add(1)) - 1
				if i >= ops {
					return
				}
				opStart := time.Now()
				if err := fn(i, rng); err != nil {
					failures.Add(1)
				}
				latencies[i] = time.Since(opStart)
			}
		}(int64(w) + 1)
	}
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("phase %s: %s, %.0f ops/s, %d failures\n",
		name, elapsed.Round(time.Millisecond),
		float64(ops)/elapsed.Seconds(), failures.Load())

	return latencies
}

func report(name string, latencies []time.Duration) {
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	pct := func(p float64) time.Duration {
		if len(sorted) == 0 {
			return 0
		}
		idx := int(float64(len(sorted)-1) * p)
		return sorted[idx]
	}

	fmt.Printf("%-9s p50=%-10s p95=%-10s p99=%-10s max=%s\n",
		name,
		pct(0.50).Round(time.Microsecond),
		pct(0.95).Round(time.Microsecond),
		pct(0.99).Round(time.Microsecond),
		sorted[len(sorted)-1].Round(time.Microsecond),
	)
}
