package location

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/notify"
)

// State is the acquisition state.
type State int

const (
	StateIdle State = iota
	StateAwaitingHighAccuracy
	StateAwaitingStandard
	StateUsingDefault
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateAwaitingHighAccuracy:
		return "awaiting_high_accuracy"
	case StateAwaitingStandard:
		return "awaiting_standard"
	case StateUsingDefault:
		return "using_default"
	case StateResolved:
		return "resolved"
	default:
		return "idle"
	}
}

// Acquirer drives the initial fix: high-accuracy watch first, standard tier
// after StandardAfter, the default position after DefaultAfter. Both timers
// start together and race the watch; the first real fix cancels them.
//
//	Idle -> AwaitingHighAccuracy      Start
//	AwaitingHighAccuracy -> AwaitingStandard   StandardAfter elapsed / high tier failed
//	Awaiting* -> UsingDefault         DefaultAfter elapsed / permission denied
//	Awaiting*, UsingDefault -> Resolved        real fix
//	any -> Idle                       Stop
type Acquirer struct {
	cfg     Config
	watcher *Watcher

	mu       sync.Mutex
	state    State
	running  bool
	epoch    uint64
	stdTimer *time.Timer
	defTimer *time.Timer

	onPosition func(geo.Position)
	onState    func(from, to State)
	notifier   notify.Notifier
	logger     *slog.Logger
}

// AcquirerOption configures an Acquirer.
type AcquirerOption func(*Acquirer)

// WithPositionHandler sets the downstream consumer of fixes (usually
// Debouncer.Submit).
func WithPositionHandler(fn func(geo.Position)) AcquirerOption {
	return func(a *Acquirer) { a.onPosition = fn }
}

// WithStateHandler sets a callback run after each state change.
func WithStateHandler(fn func(from, to State)) AcquirerOption {
	return func(a *Acquirer) { a.onState = fn }
}

// WithNotifier sets the sink for user-visible notices.
func WithNotifier(n notify.Notifier) AcquirerOption {
	return func(a *Acquirer) { a.notifier = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) AcquirerOption {
	return func(a *Acquirer) { a.logger = l }
}

// NewAcquirer creates an idle acquirer over platform (nil allowed).
func NewAcquirer(platform Platform, cfg Config, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "location.acquirer")
	a.watcher = NewWatcher(platform, cfg, a.handlePosition, a.handleError, a.logger)
	return a
}

// Watcher exposes the underlying watcher.
func (a *Acquirer) Watcher() *Watcher {
	return a.watcher
}

// State returns the current state.
func (a *Acquirer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Start begins acquisition. Calling Start while running is a no-op.
func (a *Acquirer) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.epoch++
	epoch := a.epoch
	from := a.setStateLocked(StateAwaitingHighAccuracy)
	a.stdTimer = time.AfterFunc(a.cfg.StandardAfter, func() { a.standardTimeout(epoch) })
	a.defTimer = time.AfterFunc(a.cfg.DefaultAfter, func() { a.defaultTimeout(epoch) })
	a.mu.Unlock()

	a.stateChanged(from, StateAwaitingHighAccuracy)

	if err := a.watcher.StartHighAccuracyWatch(); err != nil {
		a.handleError(TierHighAccuracy, err)
	}
}

// Stop cancels timers and the watch. Callbacks arriving afterwards are
// ignored.
func (a *Acquirer) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.epoch++
	a.stopTimersLocked()
	from := a.setStateLocked(StateIdle)
	a.mu.Unlock()

	a.watcher.StopWatch()
	a.stateChanged(from, StateIdle)
}

func (a *Acquirer) stopTimersLocked() {
	if a.stdTimer != nil {
		a.stdTimer.Stop()
		a.stdTimer = nil
	}
	if a.defTimer != nil {
		a.defTimer.Stop()
		a.defTimer = nil
	}
}

// setStateLocked stores the new state and returns the old one.
func (a *Acquirer) setStateLocked(to State) State {
	from := a.state
	a.state = to
	return from
}

func (a *Acquirer) stateChanged(from, to State) {
	if from == to {
		return
	}
	a.logger.Info("location state", "from", from, "to", to)
	if a.onState != nil {
		a.onState(from, to)
	}
}

func (a *Acquirer) handlePosition(pos geo.Position) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	from := a.state
	if from != StateResolved {
		a.stopTimersLocked()
		a.setStateLocked(StateResolved)
	}
	cb := a.onPosition
	a.mu.Unlock()

	a.stateChanged(from, StateResolved)
	if cb != nil {
		cb(pos)
	}
}

func (a *Acquirer) handleError(tier Tier, err error) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	epoch := a.epoch
	state := a.state
	a.mu.Unlock()

	if IsFatal(err) {
		a.watcher.StopWatch()
		a.useDefault(epoch, notify.Notice{
			Title: notify.TitleLocationIssue,
			Body:  fmt.Sprintf("Location access unavailable (%v). Using a default location.", err),
			Level: notify.LevelWarning,
		})
		return
	}

	if tier == TierHighAccuracy && state == StateAwaitingHighAccuracy {
		a.mu.Lock()
		var from State
		changed := a.running && a.epoch == epoch && a.state == StateAwaitingHighAccuracy
		if changed {
			from = a.setStateLocked(StateAwaitingStandard)
		}
		a.mu.Unlock()
		if changed {
			a.stateChanged(from, StateAwaitingStandard)
		}
	}
}

func (a *Acquirer) standardTimeout(epoch uint64) {
	a.mu.Lock()
	if !a.running || a.epoch != epoch || a.state != StateAwaitingHighAccuracy {
		a.mu.Unlock()
		return
	}
	from := a.setStateLocked(StateAwaitingStandard)
	a.mu.Unlock()

	a.stateChanged(from, StateAwaitingStandard)
	if a.watcher.Tier() != TierStandard {
		if err := a.watcher.StartStandardWatch(); err != nil {
			a.handleError(TierStandard, err)
		}
	}
}

func (a *Acquirer) defaultTimeout(epoch uint64) {
	a.useDefault(epoch, notify.Notice{
		Title: notify.TitleUsingDefaultLocation,
		Body:  "Could not determine your location in time. Showing a default area until a fix arrives.",
		Level: notify.LevelWarning,
	})
}

// useDefault emits the default position unless a real fix already won.
func (a *Acquirer) useDefault(epoch uint64, notice notify.Notice) {
	a.mu.Lock()
	if !a.running || a.epoch != epoch {
		a.mu.Unlock()
		return
	}
	switch a.state {
	case StateAwaitingHighAccuracy, StateAwaitingStandard:
	default:
		a.mu.Unlock()
		return
	}
	a.stopTimersLocked()
	from := a.setStateLocked(StateUsingDefault)
	cb := a.onPosition
	a.mu.Unlock()

	a.stateChanged(from, StateUsingDefault)
	notify.Send(context.Background(), a.notifier, a.logger, notice)

	if cb != nil {
		cb(geo.Position{
			Lat:       a.cfg.DefaultPosition.Lat,
			Lng:       a.cfg.DefaultPosition.Lng,
			Timestamp: time.Now(),
			Default:   true,
		})
	}
}
