package location

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/notify"
)

// Debouncer filters jitter out of the raw fix stream and applies what is
// left after a trailing delay.
//
// A fix is dropped when it lies within MinDisplacement of the last
// propagated fix and its accuracy did not improve by AccuracyImprovement.
// Accepted fixes wait DebounceDelay; every Submit restarts the wait and the
// newest accepted fix wins.
type Debouncer struct {
	cfg      Config
	bus      *events.Bus
	notifier notify.Notifier
	logger   *slog.Logger

	mu           sync.Mutex
	last         geo.Position
	hasLast      bool
	pending      *geo.Position
	timer        *time.Timer
	gen          uint64
	highAccuracy bool
	stopped      bool

	announcedFirst bool
	announcedHigh  bool

	onUpdate func(geo.Position)

	submitted  uint64
	discarded  uint64
	propagated uint64
}

// DebouncerStats counts fixes through the debouncer.
type DebouncerStats struct {
	Submitted  uint64 `json:"submitted"`
	Discarded  uint64 `json:"discarded"`
	Propagated uint64 `json:"propagated"`
}

// NewDebouncer creates a debouncer publishing to bus (nil allowed) and
// sending notices to notifier (nil allowed).
func NewDebouncer(cfg Config, bus *events.Bus, notifier notify.Notifier) *Debouncer {
	return &Debouncer{
		cfg:          cfg,
		bus:          bus,
		notifier:     notifier,
		logger:       slog.Default().With("component", "location.debouncer"),
		highAccuracy: true,
	}
}

// SetLogger replaces the logger.
func (d *Debouncer) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	d.logger = l.With("component", "location.debouncer")
	d.mu.Unlock()
}

// SetHighAccuracy tells the debouncer which tier the fixes come from.
func (d *Debouncer) SetHighAccuracy(on bool) {
	d.mu.Lock()
	d.highAccuracy = on
	d.mu.Unlock()
}

// OnUpdate sets a callback run for every propagated fix.
func (d *Debouncer) OnUpdate(fn func(geo.Position)) {
	d.mu.Lock()
	d.onUpdate = fn
	d.mu.Unlock()
}

// Last returns the last propagated fix.
func (d *Debouncer) Last() (geo.Position, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.hasLast
}

// Stats returns fix counters.
func (d *Debouncer) Stats() DebouncerStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DebouncerStats{
		Submitted:  d.submitted,
		Discarded:  d.discarded,
		Propagated: d.propagated,
	}
}

// Submit offers a raw fix. It reports whether the fix was accepted.
func (d *Debouncer) Submit(pos geo.Position) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}
	d.submitted++

	accepted := !d.suppressLocked(pos)
	if accepted {
		p := pos
		d.pending = &p
	} else {
		d.discarded++
		// Back at the propagated fix: whatever was pending is stale.
		if d.pending != nil {
			d.pending = nil
			if d.timer != nil {
				d.timer.Stop()
				d.timer = nil
			}
			d.gen++
		}
	}

	// Any raw input restarts the window while something is pending.
	if d.pending != nil {
		if d.timer != nil {
			d.timer.Stop()
		}
		d.gen++
		gen := d.gen
		d.timer = time.AfterFunc(d.cfg.DebounceDelay, func() { d.apply(gen) })
	}
	return accepted
}

// suppressLocked decides whether pos is jitter relative to the last
// propagated fix.
func (d *Debouncer) suppressLocked(pos geo.Position) bool {
	if !d.hasLast || d.last.Default || pos.Default {
		return false
	}
	moved := geo.PlanarMeters(d.last.Point(), pos.Point())
	if moved >= d.cfg.MinDisplacement {
		return false
	}
	return !d.improvedLocked(pos)
}

func (d *Debouncer) improvedLocked(pos geo.Position) bool {
	if d.last.Accuracy <= 0 || pos.Accuracy <= 0 {
		return false
	}
	return pos.Accuracy <= d.last.Accuracy*(1-d.cfg.AccuracyImprovement)
}

func (d *Debouncer) apply(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	pos := *d.pending
	d.pending = nil
	d.timer = nil

	prev, hadPrev := d.last, d.hasLast
	d.last = pos
	d.hasLast = true
	d.propagated++

	var notices []notify.Notice
	if !pos.Default {
		if !d.announcedFirst {
			d.announcedFirst = true
			notices = append(notices, notify.New(notify.LevelSuccess, notify.TitleLocationDetected,
				fmt.Sprintf("Located at %.5f, %.5f (±%.0f m)", pos.Lat, pos.Lng, pos.Accuracy)))
		} else if d.highAccuracy && !d.announcedHigh &&
			hadPrev && !prev.Default && prev.Accuracy >= d.cfg.HighAccuracyNoticeBelow &&
			pos.Accuracy > 0 && pos.Accuracy < d.cfg.HighAccuracyNoticeBelow {
			d.announcedHigh = true
			notices = append(notices, notify.New(notify.LevelSuccess, notify.TitleHighAccuracy,
				fmt.Sprintf("Accuracy improved to ±%.0f m", pos.Accuracy)))
		}
	}
	cb := d.onUpdate
	logger := d.logger
	d.mu.Unlock()

	logger.Debug("location propagated", "lat", pos.Lat, "lng", pos.Lng, "accuracy", pos.Accuracy, "default", pos.Default)

	if d.bus != nil {
		d.bus.Publish(events.LocationUpdated{Position: pos})
	}
	if cb != nil {
		cb(pos)
	}
	for _, n := range notices {
		notify.Send(context.Background(), d.notifier, logger, n)
	}
}

// Stop cancels any pending apply. Later submits are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.pending = nil
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
