package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/reliefops/fieldsync/internal/sync"
	"go.uber.org/zap"
)

var (
	errMissingSyncer  = errors.New("syncer is required")
	errMissingSignal  = errors.New("connectivity signal is required")
	errMissingSurveys = errors.New("survey counter is required")
	noOpLogger        = zap.NewNop()
)

const defaultSyncInterval = 30 * time.Second

// Syncer is the subset of the sync engine the monitor drives.
type Syncer interface {
	Run(ctx context.Context) (sync.Summary, error)
	InFlight() bool
}

// SurveyCounter reports how many local records still await a push.
type SurveyCounter interface {
	CountUnsynced(ctx context.Context) (int64, error)
}

// QueueCounter reports how many queued requests still await replay.
type QueueCounter interface {
	Count(ctx context.Context) (int64, error)
}

// MonitorConfig describes the dependencies of the connectivity monitor.
type MonitorConfig struct {
	Syncer  Syncer
	Surveys SurveyCounter
	Outbox  QueueCounter
	Signal  <-chan bool
	// Interval is the periodic sync cadence while online. Defaults to 30s.
	Interval time.Duration
	Logger   *zap.Logger
}

// Monitor consumes connectivity transitions and drives the sync engine: it
// fires one cycle the moment connectivity is restored and keeps a periodic
// cadence for as long as the device stays online. A cycle that is already in
// flight is skipped, never queued.
type Monitor struct {
	syncer   Syncer
	surveys  SurveyCounter
	outbox   QueueCounter
	signal   <-chan bool
	interval time.Duration
	logger   *zap.Logger

	online atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor constructs the connectivity monitor.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Syncer == nil {
		return nil, errMissingSyncer
	}
	if cfg.Signal == nil {
		return nil, errMissingSignal
	}
	if cfg.Surveys == nil {
		return nil, errMissingSurveys
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Monitor{
		syncer:   cfg.Syncer,
		surveys:  cfg.Surveys,
		outbox:   cfg.Outbox,
		signal:   cfg.Signal,
		interval: interval,
		logger:   logger,
	}, nil
}

// Start launches the monitor loop in the background. Stop shuts it down.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx)
}

// Stop terminates the monitor loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Syncing reports whether a sync cycle is currently running.
func (m *Monitor) Syncing() bool {
	return m.syncer.InFlight()
}

// PendingCount returns the number of items still awaiting network work:
// unsynced survey records plus queued requests.
func (m *Monitor) PendingCount(ctx context.Context) (int64, error) {
	pending, err := m.surveys.CountUnsynced(ctx)
	if err != nil {
		return 0, err
	}
	if m.outbox != nil {
		queued, err := m.outbox.Count(ctx)
		if err != nil {
			return 0, err
		}
		pending += queued
	}
	return pending, nil
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-m.signal:
			if !ok {
				return
			}
			wasOnline := m.online.Swap(online)
			if online && !wasOnline {
				m.logger.Info("connectivity restored, starting sync cycle")
				m.runCycle(ctx)
				ticker.Reset(m.interval)
			}
			if !online && wasOnline {
				m.logger.Info("connectivity lost")
			}
		case <-ticker.C:
			if m.online.Load() {
				m.runCycle(ctx)
			}
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	summary, err := m.syncer.Run(ctx)
	if errors.Is(err, sync.ErrSyncInFlight) {
		m.logger.Debug("sync cycle already in flight, skipping")
		return
	}
	if err != nil {
		m.logger.Warn("sync cycle failed", zap.Error(err))
		return
	}
	if summary.Synced > 0 || summary.Failed > 0 {
		m.logger.Info("sync cycle finished",
			zap.Int("synced", summary.Synced), zap.Int("failed", summary.Failed))
	}
}
