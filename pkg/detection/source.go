package detection

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/teslashibe/go-guardian/internal/httpc"
)

// maxFrameBytes caps snapshot downloads.
const maxFrameBytes = 8 << 20

// FrameBuffer holds the latest frame pushed by a capture device.
type FrameBuffer struct {
	mu     sync.RWMutex
	frame  []byte
	at     time.Time
	maxAge time.Duration
	now    func() time.Time
}

// NewFrameBuffer creates a buffer. Frames older than maxAge are rejected;
// zero disables the check.
func NewFrameBuffer(maxAge time.Duration) *FrameBuffer {
	return &FrameBuffer{maxAge: maxAge, now: time.Now}
}

// Put stores a copy of jpeg as the newest frame.
func (b *FrameBuffer) Put(jpeg []byte) {
	buf := make([]byte, len(jpeg))
	copy(buf, jpeg)

	b.mu.Lock()
	b.frame = buf
	b.at = b.now()
	b.mu.Unlock()
}

// Frame returns the newest frame.
func (b *FrameBuffer) Frame(ctx context.Context) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.frame == nil {
		return nil, ErrNoFrame
	}
	if b.maxAge > 0 && b.now().Sub(b.at) > b.maxAge {
		return nil, ErrStaleFrame
	}
	return b.frame, nil
}

// UpdatedAt returns when the last frame arrived.
func (b *FrameBuffer) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.at
}

// SnapshotSource fetches JPEG snapshots from an IP camera URL.
type SnapshotSource struct {
	url        string
	httpClient *http.Client
}

// NewSnapshotSource creates a source polling url. A zero timeout uses the
// shared client defaults.
func NewSnapshotSource(url string, timeout time.Duration) *SnapshotSource {
	client := httpc.Client
	if timeout > 0 {
		client = httpc.NewClient(timeout)
	}
	return &SnapshotSource{url: url, httpClient: client}
}

// Frame downloads one snapshot.
func (s *SnapshotSource) Frame(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoFrame
	}
	return data, nil
}
