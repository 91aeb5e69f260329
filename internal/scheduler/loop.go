package scheduler

import (
	"sync"
	"time"
)

// loop fires tick every interval, first after one full interval. Each tick
// runs in its own goroutine so a slow tick never delays the next one. Ticks
// are counted on the owner's WaitGroup.
type loop struct {
	interval time.Duration
	ticks    *sync.WaitGroup
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once

	mu   sync.Mutex
	next time.Time
}

func newLoop(interval time.Duration, ticks *sync.WaitGroup) *loop {
	return &loop{
		interval: interval,
		ticks:    ticks,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (l *loop) start(tick func()) {
	l.mu.Lock()
	l.next = time.Now().Add(l.interval)
	l.mu.Unlock()
	go l.run(tick)
}

func (l *loop) run(tick func()) {
	defer close(l.done)

	t := time.NewTicker(l.interval)
	defer t.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
		}
		// A tick and Stop can be ready together; Stop wins.
		select {
		case <-l.stop:
			return
		default:
		}

		l.mu.Lock()
		l.next = time.Now().Add(l.interval)
		l.mu.Unlock()

		l.ticks.Add(1)
		go func() {
			defer l.ticks.Done()
			tick()
		}()
	}
}

// Stop ends the loop and waits for it to exit. No tick starts after Stop
// returns. Safe to call more than once and from within a tick.
func (l *loop) Stop() {
	l.once.Do(func() { close(l.stop) })
	<-l.done
}

// Next returns when the next tick is due.
func (l *loop) Next() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}
