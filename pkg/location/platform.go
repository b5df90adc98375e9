package location

import (
	"time"

	"github.com/teslashibe/go-guardian/pkg/geo"
)

// WatchID identifies a platform watch subscription.
type WatchID uint64

// WatchOptions mirrors the options of a platform position watch.
type WatchOptions struct {
	EnableHighAccuracy bool          `json:"enable_high_accuracy"`
	Timeout            time.Duration `json:"timeout"`     // max wait for a fix, 0 = none
	MaximumAge         time.Duration `json:"maximum_age"` // accept cached fixes this old
}

// Platform is the device geolocation API.
//
// Watch starts a continuous subscription. onSuccess and onError may be called
// from any goroutine until ClearWatch returns. ClearWatch on an unknown or
// already cleared ID is a no-op.
type Platform interface {
	Watch(opts WatchOptions, onSuccess func(geo.Position), onError func(error)) (WatchID, error)
	ClearWatch(id WatchID)
}
