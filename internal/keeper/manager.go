package keeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/pkg/errors"
	"github.com/vammperp/backend/internal/pkg/metrics"
)

// Applier submits intents. The engine service satisfies it.
type Applier interface {
	Apply(ctx context.Context, intent engine.Intent) (*engine.Receipt, error)
}

// Keeper is a background crank that runs until its context is cancelled.
type Keeper interface {
	Name() string
	Start(ctx context.Context)
	GetMetrics() map[string]interface{}
}

// Manager coordinates all keeper services
type Manager struct {
	logger  *zap.Logger
	keepers []Keeper
}

func NewManager(logger *zap.Logger, keepers ...Keeper) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger, keepers: keepers}
}

// Add registers k. It must be called before Run.
func (m *Manager) Add(k Keeper) {
	m.keepers = append(m.keepers, k)
}

// Run starts every keeper and blocks until ctx is cancelled and all of them
// have returned.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("Starting keeper services", zap.Int("count", len(m.keepers)))

	g, gctx := errgroup.WithContext(ctx)
	for _, k := range m.keepers {
		k := k
		g.Go(func() error {
			k.Start(gctx)
			return nil
		})
	}
	err := g.Wait()

	m.logger.Info("All keeper services stopped")
	return err
}

// Metrics returns the counters of every keeper by name.
func (m *Manager) Metrics() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(m.keepers))
	for _, k := range m.keepers {
		out[k.Name()] = k.GetMetrics()
	}
	return out
}

// stats are the run counters shared by all keepers.
type stats struct {
	mu            sync.Mutex
	executed      uint64
	failed        uint64
	lastCheckTime time.Time
}

func (s *stats) checked(now time.Time) {
	s.mu.Lock()
	s.lastCheckTime = now
	s.mu.Unlock()
}

func (s *stats) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed++
		return
	}
	s.executed++
}

func (s *stats) snapshot(executedKey, failedKey string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		executedKey:       s.executed,
		failedKey:         s.failed,
		"last_check_time": s.lastCheckTime,
	}
}

// loop calls tick every interval until ctx is done.
func loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// submit applies intent on behalf of a keeper and records the outcome.
// Errors in benign are expected races and count as neither success nor
// failure.
func submit(ctx context.Context, svc Applier, m *metrics.Metrics, name string, st *stats, intent engine.Intent, benign ...error) error {
	_, err := svc.Apply(ctx, intent)
	for _, b := range benign {
		if errors.Is(err, b) {
			return err
		}
	}
	st.record(err)
	m.RecordKeeperRun(name, err)
	if err == nil {
		m.RecordKeeperAction(name)
	}
	return err
}
