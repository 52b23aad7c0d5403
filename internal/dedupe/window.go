// ABOUTME: Time-bounded record of webhook delivery IDs already processed
// ABOUTME: Keeps remote redeliveries from emitting the same note change twice

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type delivery struct {
	id     string
	seenAt time.Time
}

// Window remembers delivery IDs for ttl, holding at most capacity of them.
// When full, the oldest ID is forgotten first.
type Window struct {
	mu       sync.Mutex
	index    map[string]*list.Element
	order    *list.List // oldest at front
	ttl      time.Duration
	capacity int
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewWindow creates a window and starts a goroutine that sweeps expired IDs
// every sweepEvery. A zero sweepEvery disables the sweeper; expired IDs are
// still ignored on lookup.
func NewWindow(ttl time.Duration, capacity int, sweepEvery time.Duration) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	w := &Window{
		index:    make(map[string]*list.Element),
		order:    list.New(),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if sweepEvery > 0 {
		go w.sweepLoop(sweepEvery)
	}
	return w
}

// Seen reports whether id was already recorded within the ttl, and records
// it when it was not. The check and the record happen under one lock.
// An empty id is never a duplicate and is not recorded.
func (w *Window) Seen(id string) bool {
	if id == "" {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if el, ok := w.index[id]; ok {
		d := el.Value.(*delivery)
		if now.Sub(d.seenAt) < w.ttl {
			return true
		}
		w.order.Remove(el)
		delete(w.index, id)
	}

	for w.order.Len() >= w.capacity {
		w.dropOldest()
	}
	w.index[id] = w.order.PushBack(&delivery{id: id, seenAt: now})
	return false
}

// Len returns the number of IDs currently held, expired ones included
// until the next sweep.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}

// dropOldest must be called with mu held.
func (w *Window) dropOldest() {
	front := w.order.Front()
	if front == nil {
		return
	}
	w.order.Remove(front)
	delete(w.index, front.Value.(*delivery).id)
}

func (w *Window) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Sweep()
		case <-w.stop:
			return
		}
	}
}

// Sweep forgets every expired ID. Entries are in seen order, so it stops at
// the first one still inside the ttl.
func (w *Window) Sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for el := w.order.Front(); el != nil; el = w.order.Front() {
		d := el.Value.(*delivery)
		if now.Sub(d.seenAt) < w.ttl {
			return
		}
		w.order.Remove(el)
		delete(w.index, d.id)
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (w *Window) Close() {
	w.stopOnce.Do(func() { close(w.stop) })
}
