package monitor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// SemaphoreMonitor implements SessionMonitor with a weighted semaphore.
type SemaphoreMonitor struct {
	sem       *semaphore.Weighted
	capacity  int64
	activeCnt atomic.Int64

	mu      sync.Mutex
	session string
	subs    map[chan struct{}]struct{}
}

var _ SessionMonitor = (*SemaphoreMonitor)(nil)

// NewSemaphoreMonitor creates a monitor allowing capacity concurrent
// sessions. Values below one are raised to one.
func NewSemaphoreMonitor(capacity int64) *SemaphoreMonitor {
	if capacity < 1 {
		capacity = 1
	}
	return &SemaphoreMonitor{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
		subs:     make(map[chan struct{}]struct{}),
	}
}

func (m *SemaphoreMonitor) Metrics() Metrics {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	return Metrics{
		Active:   m.activeCnt.Load(),
		Capacity: m.capacity,
		Session:  session,
	}
}

func (m *SemaphoreMonitor) IsHealthy() bool {
	return m.activeCnt.Load() == 0
}

func (m *SemaphoreMonitor) TryAcquire(session string) bool {
	if !m.sem.TryAcquire(1) {
		return false
	}
	m.activeCnt.Add(1)
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	m.notify()
	return true
}

func (m *SemaphoreMonitor) Release() {
	if m.activeCnt.Add(-1) == 0 {
		m.mu.Lock()
		m.session = ""
		m.mu.Unlock()
	}
	m.sem.Release(1)
	m.notify()
}

func (m *SemaphoreMonitor) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, ch)
			m.mu.Unlock()
		})
	}
}

// notify wakes every subscriber without blocking; a subscriber that has
// not drained its previous signal keeps that one.
func (m *SemaphoreMonitor) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
