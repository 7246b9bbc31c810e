package admission

import (
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/puzpuzpuz/xsync/v2"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/xevent-aggregator/defs"
)

// RateGateConfig defines the per-source rate limiting section in config file
type RateGateConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Window        time.Duration `yaml:"window"`
	MaxEvents     int           `yaml:"maxEvents"`
	ExemptSources []string      `yaml:"exemptSources"`
}

// VerifyConfig checks configuration
func (cfg *RateGateConfig) VerifyConfig() error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Window <= 0 {
		return fmt.Errorf(".window is unspecified")
	}
	if cfg.MaxEvents <= 0 {
		return fmt.Errorf(".maxEvents is unspecified")
	}
	for i, pattern := range cfg.ExemptSources {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf(".exemptSources[%d]: %w", i, err)
		}
	}
	return nil
}

// sourceState is the rolling event count of one source address within the current window
//
// Each entry carries its own lock so unrelated sources never serialize on each other
type sourceState struct {
	mutex       sync.Mutex
	windowStart time.Time
	count       int
}

// RateGate admits or rejects events per source address with a fixed window counter
//
// Entries are reset lazily on access when their window has expired; a background sweep
// evicts entries of sources that stopped sending, keeping total memory bounded
type RateGate struct {
	logger      logger.Logger
	enabled     bool
	window      time.Duration
	maxEvents   int
	exempt      []glob.Glob
	sources     *xsync.MapOf[string, *sourceState]
	metrics     gateMetrics
	stopRequest channels.Awaitable
	stopped     *channels.SignalAwaitable
}

// NewRateGate creates a RateGate from verified configuration
func NewRateGate(parentLogger logger.Logger, cfg RateGateConfig, metricCreator promreg.MetricCreator,
	stopRequest channels.Awaitable) *RateGate {

	exempt := make([]glob.Glob, len(cfg.ExemptSources))
	for i, pattern := range cfg.ExemptSources {
		exempt[i] = glob.MustCompile(pattern) // verified in config parsing
	}

	return &RateGate{
		logger:      parentLogger.WithField(defs.LabelComponent, "RateGate"),
		enabled:     cfg.Enabled,
		window:      cfg.Window,
		maxEvents:   cfg.MaxEvents,
		exempt:      exempt,
		sources:     xsync.NewMapOf[*sourceState](),
		metrics:     newGateMetrics(metricCreator),
		stopRequest: stopRequest,
		stopped:     channels.NewSignalAwaitable(),
	}
}

// Start launches the background sweep of stale source entries
func (gate *RateGate) Start() {
	go gate.runSweep()
}

// Stopped returns an Awaitable which is signaled when the sweep has ended
func (gate *RateGate) Stopped() channels.Awaitable {
	return gate.stopped
}

// Admit checks and counts one event from the given source address
//
// A false return means the event must be discarded without appending and the violation
// is recorded; exempt sources and a disabled gate always admit
func (gate *RateGate) Admit(source string) bool {
	if !gate.enabled || gate.isExempt(source) {
		gate.metrics.admittedEventsTotal.Inc()
		return true
	}

	state := gate.getOrCreate(source)
	state.mutex.Lock()
	gate.rollWindow(state)
	if state.count >= gate.maxEvents {
		state.mutex.Unlock()
		gate.metrics.limitedEventsTotal.Inc()
		return false
	}
	state.count++
	state.mutex.Unlock()

	gate.metrics.admittedEventsTotal.Inc()
	return true
}

// Check peeks whether the given source address is currently under its limit, without
// counting an event; used at connection accept before any data is read
func (gate *RateGate) Check(source string) bool {
	if !gate.enabled || gate.isExempt(source) {
		return true
	}

	state, found := gate.sources.Load(source)
	if !found {
		return true
	}
	state.mutex.Lock()
	gate.rollWindow(state)
	ok := state.count < gate.maxEvents
	state.mutex.Unlock()
	return ok
}

func (gate *RateGate) isExempt(source string) bool {
	for _, pattern := range gate.exempt {
		if pattern.Match(source) {
			return true
		}
	}
	return false
}

func (gate *RateGate) getOrCreate(source string) *sourceState {
	state, loaded := gate.sources.LoadOrCompute(source, func() *sourceState {
		return &sourceState{windowStart: time.Now()}
	})
	if !loaded {
		gate.metrics.trackedSources.Inc()
	}
	return state
}

// rollWindow resets the counter if the current window has expired; caller must hold the entry lock
func (gate *RateGate) rollWindow(state *sourceState) {
	now := time.Now()
	if now.Sub(state.windowStart) >= gate.window {
		state.windowStart = now
		state.count = 0
	}
}

func (gate *RateGate) runSweep() {
	defer gate.stopped.Signal()

	if !gate.enabled {
		gate.stopRequest.WaitForever()
		return
	}

	for {
		if gate.stopRequest.Wait(defs.RateGateSweepInterval) {
			gate.logger.Info("stop sweep")
			return
		}
		gate.sweepOnce()
	}
}

// sweepOnce evicts entries whose window expired long ago; a source still sending would
// recreate its entry on the next event
func (gate *RateGate) sweepOnce() {
	deadline := time.Now().Add(-2 * gate.window)
	numEvicted := 0
	gate.sources.Range(func(source string, state *sourceState) bool {
		state.mutex.Lock()
		stale := state.windowStart.Before(deadline)
		state.mutex.Unlock()
		if stale {
			gate.sources.Delete(source)
			gate.metrics.trackedSources.Dec()
			numEvicted++
		}
		return true
	})
	if numEvicted > 0 {
		gate.logger.Debugf("evicted %d stale source entries", numEvicted)
	}
}
