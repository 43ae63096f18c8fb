package relay

import (
	"sync"
	"time"

	"github.com/avtomon/wsChat/pkg/protocol"
)

// activity is a fixed-size ring of recent routing outcomes for the admin API.
type activity struct {
	mu     sync.Mutex
	events []protocol.RecentEvent
	next   int
	full   bool
}

func newActivity(size int) *activity {
	if size <= 0 {
		size = 50
	}
	return &activity{events: make([]protocol.RecentEvent, size)}
}

func (a *activity) add(ev protocol.RecentEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events[a.next] = ev
	a.next = (a.next + 1) % len(a.events)
	if a.next == 0 {
		a.full = true
	}
}

// list returns events newest first.
func (a *activity) list() []protocol.RecentEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.next
	if a.full {
		n = len(a.events)
	}
	out := make([]protocol.RecentEvent, 0, n)
	for i := 1; i <= n; i++ {
		idx := (a.next - i + len(a.events)) % len(a.events)
		out = append(out, a.events[idx])
	}
	return out
}
