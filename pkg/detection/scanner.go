package detection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/geo"
)

// Config holds weapon scanner settings.
type Config struct {
	Interval      time.Duration // Time between frames
	MinConfidence float64       // Detections below this are ignored
	Cooldown      time.Duration // Minimum gap between events for one class
	WeaponClasses []string      // COCO classes treated as weapons
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Second,
		MinConfidence: 0.6,
		Cooldown:      30 * time.Second,
		WeaponClasses: DefaultWeaponClasses,
	}
}

// ScannerStats reports scanner activity.
type ScannerStats struct {
	Frames      int64 `json:"frames"`
	FrameErrors int64 `json:"frame_errors"`
	Detections  int64 `json:"detections"`
	Published   int64 `json:"published"`
	Suppressed  int64 `json:"suppressed"`
}

// ScannerOption configures a WeaponScanner.
type ScannerOption func(*WeaponScanner)

// WithConfig replaces the scanner configuration.
func WithConfig(cfg Config) ScannerOption {
	return func(s *WeaponScanner) { s.config = cfg }
}

// WithLogger sets the scanner logger.
func WithLogger(logger *slog.Logger) ScannerOption {
	return func(s *WeaponScanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLocation supplies the user's position attached to detections.
func WithLocation(fn func() *geo.Point) ScannerOption {
	return func(s *WeaponScanner) { s.location = fn }
}

// WeaponScanner polls a frame source, runs the detector and publishes
// WeaponDetected events.
type WeaponScanner struct {
	detector Detector
	source   FrameSource
	bus      *events.Bus
	config   Config
	logger   *slog.Logger
	location func() *geo.Point

	mu       sync.Mutex
	weapons  map[string]bool
	lastSent map[string]time.Time
	stats    ScannerStats
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewWeaponScanner creates a scanner.
func NewWeaponScanner(detector Detector, source FrameSource, bus *events.Bus, opts ...ScannerOption) *WeaponScanner {
	s := &WeaponScanner{
		detector: detector,
		source:   source,
		bus:      bus,
		config:   DefaultConfig(),
		logger:   slog.Default(),
		lastSent: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "detection")

	s.weapons = make(map[string]bool, len(s.config.WeaponClasses))
	for _, c := range s.config.WeaponClasses {
		s.weapons[strings.ToLower(c)] = true
	}
	return s
}

// IsWeapon reports whether className is configured as a weapon.
func (s *WeaponScanner) IsWeapon(className string) bool {
	return s.weapons[strings.ToLower(className)]
}

// Start begins scanning in the background. Calling Start while running is a
// no-op.
func (s *WeaponScanner) Start(ctx context.Context) error {
	if s.detector == nil {
		return ErrNoDetector
	}
	if s.source == nil {
		return ErrNoSource
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	interval := s.config.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.ScanOnce(ctx); err != nil && ctx.Err() == nil {
					s.logger.Debug("scan failed", "error", err)
				}
			}
		}
	}()

	s.logger.Info("weapon scanner started", "interval", interval, "classes", s.config.WeaponClasses)
	return nil
}

// Stop halts scanning and waits for the loop to exit.
func (s *WeaponScanner) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// ScanOnce processes a single frame and returns the number of events
// published.
func (s *WeaponScanner) ScanOnce(ctx context.Context) (int, error) {
	frame, err := s.source.Frame(ctx)
	if err != nil {
		s.mu.Lock()
		s.stats.FrameErrors++
		s.mu.Unlock()
		return 0, fmt.Errorf("get frame: %w", err)
	}

	dets, err := s.detector.Detect(frame)
	s.mu.Lock()
	s.stats.Frames++
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("detect: %w", err)
	}

	// One event per class per frame: keep the most confident box.
	best := make(map[string]ObjectDetection)
	for _, d := range dets {
		if !s.IsWeapon(d.ClassName) || d.Confidence < s.config.MinConfidence {
			continue
		}
		key := strings.ToLower(d.ClassName)
		if cur, ok := best[key]; !ok || d.Confidence > cur.Confidence {
			best[key] = d
		}
	}

	published := 0
	now := time.Now()
	for class, d := range best {
		s.mu.Lock()
		s.stats.Detections++
		last, seen := s.lastSent[class]
		if seen && now.Sub(last) < s.config.Cooldown {
			s.stats.Suppressed++
			s.mu.Unlock()
			continue
		}
		s.lastSent[class] = now
		s.stats.Published++
		s.mu.Unlock()

		ev := events.WeaponDetected{
			Subtype:     SubtypeWeapon,
			Confidence:  d.Confidence,
			Title:       "Weapon Detected",
			Description: fmt.Sprintf("Camera detected a %s (%.0f%% confidence)", class, d.Confidence*100),
			At:          now,
		}
		if s.location != nil {
			ev.Location = s.location()
		}

		s.logger.Warn("weapon detected", "class", class, "confidence", d.Confidence)
		if s.bus != nil {
			s.bus.Publish(ev)
		}
		published++
	}
	return published, nil
}

// Stats returns a snapshot of scanner counters.
func (s *WeaponScanner) Stats() ScannerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
