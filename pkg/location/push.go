package location

import (
	"sync"
	"time"

	"github.com/teslashibe/go-guardian/pkg/geo"
)

// PushPlatform is a Platform fed by fixes pushed from client devices, e.g.
// a phone posting browser geolocation readings to the API.
type PushPlatform struct {
	mu      sync.Mutex
	watches map[WatchID]*pushWatch
	nextID  WatchID

	last    geo.Position
	hasLast bool

	now func() time.Time
}

type pushWatch struct {
	opts      WatchOptions
	onSuccess func(geo.Position)
	onError   func(error)
	timer     *time.Timer
}

// NewPushPlatform creates an empty push platform.
func NewPushPlatform() *PushPlatform {
	return &PushPlatform{
		watches: make(map[WatchID]*pushWatch),
		now:     time.Now,
	}
}

// Watch registers a subscription. When a pushed fix younger than
// opts.MaximumAge is on hand it is delivered right away.
func (p *PushPlatform) Watch(opts WatchOptions, onSuccess func(geo.Position), onError func(error)) (WatchID, error) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	w := &pushWatch{opts: opts, onSuccess: onSuccess, onError: onError}
	p.watches[id] = w
	p.armTimeout(id, w)

	var cached *geo.Position
	if p.hasLast && opts.MaximumAge > 0 && p.now().Sub(p.last.Timestamp) <= opts.MaximumAge {
		pos := p.last
		cached = &pos
	}
	p.mu.Unlock()

	if cached != nil && onSuccess != nil {
		onSuccess(*cached)
	}
	return id, nil
}

// ClearWatch removes a subscription and stops its timeout.
func (p *PushPlatform) ClearWatch(id WatchID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.watches[id]; ok {
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(p.watches, id)
	}
}

// armTimeout (re)starts the no-fix timer. Caller holds p.mu.
func (p *PushPlatform) armTimeout(id WatchID, w *pushWatch) {
	if w.opts.Timeout <= 0 {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Timeout, func() {
		p.mu.Lock()
		current, ok := p.watches[id]
		p.mu.Unlock()
		if ok && current == w && w.onError != nil {
			w.onError(ErrTimeout)
		}
	})
}

// Push delivers a fix to every active watch.
func (p *PushPlatform) Push(pos geo.Position) {
	if pos.Timestamp.IsZero() {
		pos.Timestamp = p.now()
	}

	p.mu.Lock()
	p.last = pos
	p.hasLast = true
	targets := make([]func(geo.Position), 0, len(p.watches))
	for id, w := range p.watches {
		p.armTimeout(id, w)
		if w.onSuccess != nil {
			targets = append(targets, w.onSuccess)
		}
	}
	p.mu.Unlock()

	for _, fn := range targets {
		fn(pos)
	}
}

// Fail delivers err to every active watch (e.g. the client reported that
// the user denied permission).
func (p *PushPlatform) Fail(err error) {
	p.mu.Lock()
	targets := make([]func(error), 0, len(p.watches))
	for _, w := range p.watches {
		if w.onError != nil {
			targets = append(targets, w.onError)
		}
	}
	p.mu.Unlock()

	for _, fn := range targets {
		fn(err)
	}
}

// Last returns the most recent pushed fix.
func (p *PushPlatform) Last() (geo.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// ActiveWatches returns the number of live subscriptions.
func (p *PushPlatform) ActiveWatches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watches)
}

var _ Platform = (*PushPlatform)(nil)
