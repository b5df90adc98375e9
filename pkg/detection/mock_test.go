package detection

import (
	"context"
	"sync"
)

type mockDetector struct {
	mu         sync.Mutex
	DetectFunc func(jpeg []byte) ([]ObjectDetection, error)
	calls      int
	closed     bool
}

func (m *mockDetector) Detect(jpeg []byte) ([]ObjectDetection, error) {
	m.mu.Lock()
	m.calls++
	fn := m.DetectFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(jpeg)
	}
	return nil, nil
}

func (m *mockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type staticSource struct {
	frame []byte
	err   error
}

func (s staticSource) Frame(ctx context.Context) ([]byte, error) {
	return s.frame, s.err
}

func objects(dets ...ObjectDetection) func([]byte) ([]ObjectDetection, error) {
	return func([]byte) ([]ObjectDetection, error) { return dets, nil }
}

func obj(class string, conf float64) ObjectDetection {
	return ObjectDetection{
		Detection: Detection{X: 0.1, Y: 0.1, W: 0.2, H: 0.2, Confidence: conf},
		ClassName: class,
	}
}
