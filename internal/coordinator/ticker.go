package coordinator

import (
	"sync"
	"time"
)

// cyclicTicker advances a machine's progress while inference runs. The
// recognizer reports no percentage, so the indicator only shows liveness.
type cyclicTicker struct {
	machine  *Machine
	interval time.Duration

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    chan struct{}
}

func newCyclicTicker(m *Machine, interval time.Duration) *cyclicTicker {
	return &cyclicTicker{machine: m, interval: interval}
}

// start is a no-op when the ticker is already running.
func (t *cyclicTicker) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.quit = make(chan struct{})
	t.done = make(chan struct{})
	go t.loop(t.quit, t.done)
}

// stop halts the ticker and waits for its last tick to land.
func (t *cyclicTicker) stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	quit, done := t.quit, t.done
	t.mu.Unlock()
	close(quit)
	<-done
}

func (t *cyclicTicker) loop(quit, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			t.machine.advance()
		}
	}
}
