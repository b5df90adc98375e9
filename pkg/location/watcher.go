package location

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/go-guardian/pkg/geo"
)

// Tier is the accuracy tier of the active watch.
type Tier int

const (
	TierNone Tier = iota
	TierHighAccuracy
	TierStandard
)

func (t Tier) String() string {
	switch t {
	case TierHighAccuracy:
		return "high_accuracy"
	case TierStandard:
		return "standard"
	default:
		return "none"
	}
}

// Watcher owns the single platform watch subscription.
//
// Starting any tier clears the previous subscription first, so at most one
// subscription is ever live. Callbacks from a cleared subscription are
// dropped. A failing high-accuracy watch falls back to the standard tier on
// its own; the failure is reported through onError, never returned.
type Watcher struct {
	platform Platform
	cfg      Config

	mu   sync.Mutex
	id   WatchID
	live bool
	tier Tier
	gen  uint64

	onPosition func(geo.Position)
	onError    func(Tier, error)

	logger *slog.Logger
}

// NewWatcher creates a watcher. platform may be nil, in which case every
// start returns ErrUnsupported.
func NewWatcher(platform Platform, cfg Config, onPosition func(geo.Position), onError func(Tier, error), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		platform:   platform,
		cfg:        cfg,
		onPosition: onPosition,
		onError:    onError,
		logger:     logger.With("component", "location.watcher"),
	}
}

// StartHighAccuracyWatch subscribes with high-accuracy options.
func (w *Watcher) StartHighAccuracyWatch() error {
	return w.start(TierHighAccuracy)
}

// StartStandardWatch subscribes with standard options.
func (w *Watcher) StartStandardWatch() error {
	return w.start(TierStandard)
}

// StopWatch clears the active subscription, if any.
func (w *Watcher) StopWatch() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.clearLocked()
	w.gen++
	w.tier = TierNone
}

// Tier returns the tier of the current subscription.
func (w *Watcher) Tier() Tier {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tier
}

// Active reports whether a subscription is live.
func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.live
}

func (w *Watcher) start(tier Tier) error {
	if w.platform == nil {
		return ErrUnsupported
	}

	opts := w.cfg.Standard
	if tier == TierHighAccuracy {
		opts = w.cfg.HighAccuracy
	}

	w.mu.Lock()
	w.clearLocked()
	w.gen++
	gen := w.gen
	w.tier = tier
	w.mu.Unlock()

	// The platform may call back synchronously, so it is invoked without
	// holding w.mu; the generation check sorts out interleavings.
	id, err := w.platform.Watch(opts,
		func(pos geo.Position) { w.handlePosition(gen, pos) },
		func(err error) { w.handleError(gen, tier, err) },
	)

	w.mu.Lock()
	if gen != w.gen {
		// Superseded while subscribing: drop the new subscription.
		w.mu.Unlock()
		if err == nil {
			w.platform.ClearWatch(id)
		}
		return nil
	}
	if err != nil {
		w.tier = TierNone
		w.mu.Unlock()
		w.handleError(gen, tier, err)
		if tier == TierStandard {
			return err
		}
		return nil
	}
	w.id = id
	w.live = true
	w.mu.Unlock()

	w.logger.Debug("watch started", "tier", tier, "id", id)
	return nil
}

// clearLocked clears the platform subscription. Caller holds w.mu.
func (w *Watcher) clearLocked() {
	if w.live {
		w.platform.ClearWatch(w.id)
		w.logger.Debug("watch cleared", "id", w.id)
	}
	w.live = false
	w.id = 0
}

func (w *Watcher) current(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return gen == w.gen
}

func (w *Watcher) handlePosition(gen uint64, pos geo.Position) {
	if !w.current(gen) {
		return
	}
	if w.onPosition != nil {
		w.onPosition(pos)
	}
}

func (w *Watcher) handleError(gen uint64, tier Tier, err error) {
	if !w.current(gen) {
		return
	}
	w.logger.Warn("watch error", "tier", tier, "error", err)
	if w.onError != nil {
		w.onError(tier, err)
	}

	// The error callback may have stopped or restarted the watch.
	if tier == TierHighAccuracy && w.current(gen) {
		w.logger.Info("falling back to standard accuracy")
		if err := w.StartStandardWatch(); err != nil {
			w.logger.Warn("standard watch failed", "error", err)
		}
	}
}
