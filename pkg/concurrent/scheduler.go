package concurrent

import (
	"sync"

	"go.uber.org/atomic"
	"moff.io/moff-wallet/pkg/log"
)

// Scheduler defers work to a later tick.
type Scheduler interface {
	Post(fn func())
}

// Loop runs posted tasks one at a time, in posting order, on its own goroutine.
// Post never blocks. A task posted from inside another task runs after the
// current task returns.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

// NewLoop starts a loop; capacity only sizes the initial queue.
func NewLoop(capacity int) *Loop {
	if capacity <= 0 {
		capacity = 16
	}
	l := &Loop{
		queue: make([]func(), 0, capacity),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) Post(fn func()) {
	if fn == nil || l.stopped.Load() {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Stop discards pending tasks and waits for the running one to finish.
func (l *Loop) Stop() {
	l.once.Do(func() {
		l.stopped.Store(true)
		close(l.stop)
	})
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case <-l.wake:
		}
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			select {
			case <-l.stop:
				return
			default:
			}
			l.exec(fn)
		}
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("scheduled task panicked: %v", r)
		}
	}()
	fn()
}
