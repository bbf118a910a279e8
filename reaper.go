package bulwark

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultSweepInterval is the pause between reaper sweeps.
const DefaultSweepInterval = 5 * time.Minute

// SweepFunc removes expired state and returns how many records went away.
type SweepFunc func(ctx context.Context) (int, error)

// SweepResult reports one sweep.
type SweepResult struct {
	Removed map[string]int
	Err     error
}

// Reaper periodically removes expired magic codes, single use tokens,
// retired pair tombstones and signing key generations past retention.
type Reaper struct {
	interval time.Duration
	logger   Logger

	mu       sync.Mutex
	names    []string
	sweepers map[string]SweepFunc
}

func NewReaper() *Reaper {
	return &Reaper{
		interval: DefaultSweepInterval,
		logger:   defLogger{},
		sweepers: map[string]SweepFunc{},
	}
}

func (r *Reaper) WithInterval(d time.Duration) *Reaper {
	if d > 0 {
		r.interval = d
	}
	return r
}

func (r *Reaper) WithLogger(l Logger) *Reaper {
	r.logger = normalizeLogger(l)
	return r
}

// WithSweeper registers fn under name. Sweepers run in registration order.
func (r *Reaper) WithSweeper(name string, fn SweepFunc) *Reaper {
	if fn == nil {
		return r
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sweepers[name]; !ok {
		r.names = append(r.names, name)
	}
	r.sweepers[name] = fn
	return r
}

// SweepOnce runs every sweeper. A failing sweeper does not stop the others.
func (r *Reaper) SweepOnce(ctx context.Context) SweepResult {
	r.mu.Lock()
	names := append([]string(nil), r.names...)
	sweepers := make(map[string]SweepFunc, len(r.sweepers))
	for k, v := range r.sweepers {
		sweepers[k] = v
	}
	r.mu.Unlock()

	result := SweepResult{Removed: make(map[string]int, len(names))}
	var errs []error
	for _, name := range names {
		n, err := sweepers[name](ctx)
		result.Removed[name] = n
		if err != nil {
			r.logger.Error("sweeper %s failed: %v", name, err)
			errs = append(errs, err)
			continue
		}
		if n > 0 {
			r.logger.Debug("sweeper %s removed %d records", name, n)
		}
	}
	result.Err = errors.Join(errs...)
	return result
}

// Run sweeps immediately and then on every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	r.SweepOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// Sweepers returned by the lifecycle components, for wiring a Reaper.
const (
	SweepMagicCodes    = "magic_codes"
	SweepAccountTokens = "account_tokens"
	SweepRetiredPairs  = "retired_pairs"
	SweepSigningKeys   = "signing_keys"
)

// RetiredPairSweeper adapts TokenRepository.PurgeRetired.
func RetiredPairSweeper(store TokenRepository, clock Clock) SweepFunc {
	clock = normalizeClock(clock)
	return func(ctx context.Context) (int, error) {
		return store.PurgeRetired(ctx, clock().UTC())
	}
}
