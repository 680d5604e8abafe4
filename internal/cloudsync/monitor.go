package cloudsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/practice-records/internal/observability/metrics"
	"github.com/wolfman30/practice-records/pkg/logging"
)

// ErrOffline is returned by SyncNow while the remote store is unreachable.
var ErrOffline = errors.New("cloudsync: remote store offline")

// State is the connectivity state of the remote store.
type State int

const (
	StateUnknown State = iota
	StateChecking
	StateOnline
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Pinger probes remote reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor tracks connectivity and reconciles on each transition into Online.
type Monitor struct {
	pinger     Pinger
	reconciler *Reconciler
	metrics    *metrics.SyncMetrics
	logger     *logging.Logger

	interval time.Duration
	tick     <-chan time.Time
	stop     func()

	mu         sync.Mutex
	state      State
	settled    State
	lastResult Result
	lastErr    error
	lastSync   time.Time
	now        func() time.Time
}

// MonitorConfig configures a Monitor. Tick and Stop override the ticker
// Run builds from Interval.
type MonitorConfig struct {
	Pinger     Pinger
	Reconciler *Reconciler
	Metrics    *metrics.SyncMetrics
	Logger     *logging.Logger

	Interval time.Duration
	Tick     <-chan time.Time
	Stop     func()
}

// NewMonitor builds a monitor in the Unknown state.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Pinger == nil {
		return nil, errors.New("cloudsync: monitor requires pinger")
	}
	if cfg.Reconciler == nil {
		return nil, errors.New("cloudsync: monitor requires reconciler")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		pinger:     cfg.Pinger,
		reconciler: cfg.Reconciler,
		metrics:    cfg.Metrics,
		logger:     logger,
		interval:   interval,
		tick:       cfg.Tick,
		stop:       cfg.Stop,
		state:      StateUnknown,
		settled:    StateUnknown,
		now:        time.Now,
	}, nil
}

// State returns the current connectivity state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Online reports whether the last check reached the remote store.
func (m *Monitor) Online() bool {
	return m.State() == StateOnline
}

// LastSync returns the outcome of the most recent reconciliation.
func (m *Monitor) LastSync() (Result, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastResult, m.lastSync, m.lastErr
}

// Check probes the remote store and applies the resulting transition.
func (m *Monitor) Check(ctx context.Context) State {
	m.mu.Lock()
	m.state = StateChecking
	m.mu.Unlock()

	err := m.pinger.Ping(ctx)
	if err != nil {
		m.logger.Debug("remote store unreachable", "error", err)
	}
	m.SetOnline(ctx, err == nil)
	return m.State()
}

// SetOnline records a connectivity observation. Moving into Online from any
// other settled state triggers one reconciliation pass.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	next := StateOffline
	if online {
		next = StateOnline
	}
	m.mu.Lock()
	prev := m.settled
	m.state, m.settled = next, next
	m.mu.Unlock()

	m.metrics.SetOnline(online)
	if next == prev {
		return
	}
	m.logger.Info("connectivity changed", "from", prev.String(), "to", next.String())
	if next == StateOnline {
		_, _ = m.sync(ctx)
	}
}

// SyncNow reconciles immediately if online.
func (m *Monitor) SyncNow(ctx context.Context) (Result, error) {
	if !m.Online() {
		return Result{}, ErrOffline
	}
	return m.sync(ctx)
}

func (m *Monitor) sync(ctx context.Context) (Result, error) {
	result, err := m.reconciler.Reconcile(ctx)
	if err != nil {
		m.logger.Warn("reconciliation failed", "error", err)
	}
	m.mu.Lock()
	m.lastResult, m.lastErr, m.lastSync = result, err, m.now()
	m.mu.Unlock()
	return result, err
}

// Run checks immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	tick, stop := m.tick, m.stop
	if tick == nil {
		ticker := time.NewTicker(m.interval)
		tick, stop = ticker.C, ticker.Stop
	}
	if stop != nil {
		defer stop()
	}

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			m.Check(ctx)
		}
	}
}
