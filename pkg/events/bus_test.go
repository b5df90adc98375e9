package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPublishMatchesKind(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var sirens, all atomic.Int32
	bus.Subscribe(KindActivateSiren, func(e Event) { sirens.Add(1) })
	bus.SubscribeAll(func(e Event) { all.Add(1) })

	bus.Publish(ActivateSiren{Duration: time.Second})
	bus.Publish(MakeCall{Number: "911", Simulated: true})

	if sirens.Load() != 1 {
		t.Errorf("siren handler called %d times, want 1", sirens.Load())
	}
	if all.Load() != 2 {
		t.Errorf("catch-all handler called %d times, want 2", all.Load())
	}
}

func TestTypedPayload(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var got EmergencyActivated
	bus.Subscribe(KindEmergencyActivated, func(e Event) {
		got = e.(EmergencyActivated)
	})

	bus.Publish(EmergencyActivated{Source: SourceBLE})

	if got.Source != SourceBLE {
		t.Errorf("Source = %s, want ble", got.Source)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var calls atomic.Int32
	sub := bus.Subscribe(KindBLETrigger, func(e Event) { calls.Add(1) })

	bus.Publish(BLETrigger{DeviceID: "a"})
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
	bus.Publish(BLETrigger{DeviceID: "a"})

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if bus.Len() != 0 {
		t.Errorf("Len = %d, want 0", bus.Len())
	}
}

func TestAddDuringDispatchSeesNextEventOnly(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var late atomic.Int32
	var once sync.Once
	bus.SubscribeAll(func(e Event) {
		once.Do(func() {
			bus.SubscribeAll(func(e Event) { late.Add(1) })
		})
	})

	bus.Publish(SendSMS{Message: "first"})
	if late.Load() != 0 {
		t.Fatalf("handler added during dispatch ran for the in-flight event")
	}

	bus.Publish(SendSMS{Message: "second"})
	if late.Load() != 1 {
		t.Errorf("late handler calls = %d, want 1", late.Load())
	}
}

func TestRemoveDuringDispatchNeitherSkipsNorDoubles(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	counts := make([]int, 3)
	var subs [3]*Subscription

	// The first handler removes itself and the next one mid-dispatch.
	subs[0] = bus.SubscribeAll(func(e Event) {
		counts[0]++
		subs[0].Unsubscribe()
		subs[1].Unsubscribe()
	})
	subs[1] = bus.SubscribeAll(func(e Event) { counts[1]++ })
	subs[2] = bus.SubscribeAll(func(e Event) { counts[2]++ })

	bus.Publish(StartRecording{Source: SourceManual})

	for i, c := range counts {
		if c != 1 {
			t.Errorf("handler %d called %d times in first dispatch, want 1", i, c)
		}
	}

	bus.Publish(StartRecording{Source: SourceManual})
	if counts[0] != 1 || counts[1] != 1 || counts[2] != 2 {
		t.Errorf("counts after second dispatch = %v, want [1 1 2]", counts)
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var after atomic.Int32
	bus.SubscribeAll(func(e Event) { panic("boom") })
	bus.SubscribeAll(func(e Event) { after.Add(1) })

	bus.Publish(ActivateSiren{})

	if after.Load() != 1 {
		t.Error("handler after a panicking one should still run")
	}
	if bus.GetStats().Panics != 1 {
		t.Errorf("Panics = %d, want 1", bus.GetStats().Panics)
	}
}

func TestListen(t *testing.T) {
	bus := NewBus(nil)

	ch, cancel := bus.Listen(4)
	bus.Publish(BroadcastAlert{Title: "hi"})

	select {
	case e := <-ch:
		if e.Kind() != KindBroadcastAlert {
			t.Errorf("Kind = %s, want broadcast", e.Kind())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	bus.Close()
}

func TestListenDropsWhenFull(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	_, cancel := bus.Listen(1)
	defer cancel()

	bus.Publish(ActivateSiren{})
	bus.Publish(ActivateSiren{})
	bus.Publish(ActivateSiren{})

	if d := bus.GetStats().Dropped; d != 2 {
		t.Errorf("Dropped = %d, want 2", d)
	}
}

// levelCounter counts log records per level.
type levelCounter struct {
	mu     sync.Mutex
	counts map[slog.Level]int
}

func (c *levelCounter) Enabled(context.Context, slog.Level) bool { return true }
func (c *levelCounter) WithAttrs([]slog.Attr) slog.Handler      { return c }
func (c *levelCounter) WithGroup(string) slog.Handler           { return c }

func (c *levelCounter) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	c.counts[r.Level]++
	c.mu.Unlock()
	return nil
}

func TestListenDropsLogQuietly(t *testing.T) {
	counter := &levelCounter{counts: make(map[slog.Level]int)}
	bus := NewBus(slog.New(counter))
	defer bus.Close()

	_, cancel := bus.Listen(1)
	defer cancel()

	for i := 0; i < 251; i++ {
		bus.Publish(LocationUpdated{})
	}

	if d := bus.GetStats().Dropped; d != 250 {
		t.Fatalf("Dropped = %d, want 250", d)
	}
	counter.mu.Lock()
	defer counter.mu.Unlock()
	if w := counter.counts[slog.LevelWarn]; w != 3 {
		t.Errorf("warn lines = %d, want 3 for 250 drops", w)
	}
}

func TestCloseClosesListeners(t *testing.T) {
	bus := NewBus(nil)
	ch, _ := bus.Listen(1)

	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("listener channel should be closed by bus.Close")
	}

	var calls atomic.Int32
	bus.SubscribeAll(func(e Event) { calls.Add(1) })
	bus.Publish(ActivateSiren{})
	if calls.Load() != 0 {
		t.Error("publish on closed bus should not deliver")
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var calls atomic.Int64
	for i := 0; i < 4; i++ {
		bus.Subscribe(KindLocationUpdated, func(e Event) { calls.Add(1) })
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(LocationUpdated{})
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 8*50*4 {
		t.Errorf("calls = %d, want %d", got, 8*50*4)
	}
}
