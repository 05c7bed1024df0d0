package execution

import (
	"container/heap"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jag2430/fix-executor/internal/metrics"
)

// Scheduler runs fill callbacks at requested times on a fixed worker pool.
// It is an explicit timer queue: callbacks that want to continue a sequence
// enqueue their successor instead of recursing, and a panic inside one
// callback is recovered and logged without taking the pool down.
type Scheduler struct {
	mu     sync.Mutex
	queue  taskQueue
	closed bool

	wake  chan struct{}
	quit  chan struct{}
	tasks chan func()
	wg    sync.WaitGroup

	log zerolog.Logger
}

type task struct {
	at time.Time
	fn func()
}

type taskQueue []*task

func (q taskQueue) Len() int            { return len(q) }
func (q taskQueue) Less(i, j int) bool  { return q[i].at.Before(q[j].at) }
func (q taskQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *taskQueue) Push(x interface{}) { *q = append(*q, x.(*task)) }
func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}

// NewScheduler starts the dispatcher and the given number of workers.
func NewScheduler(workers int, log zerolog.Logger) *Scheduler {
	s := &Scheduler{
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		tasks: make(chan func()),
		log:   log.With().Str("component", "scheduler").Logger(),
	}
	s.wg.Add(1)
	go s.dispatch()
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Schedule enqueues fn to run after delay. Scheduling after Stop is a no-op.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	heap.Push(&s.queue, &task{at: time.Now().Add(delay), fn: fn})
	s.mu.Unlock()

	metrics.ScheduledTasks.Inc()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of callbacks waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stop drains nothing: queued callbacks that have not fired are dropped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.quit)
	s.wg.Wait()
}

func (s *Scheduler) dispatch() {
	defer s.wg.Done()
	defer close(s.tasks)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		var wait time.Duration
		if len(s.queue) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.queue[0].at)
		}
		s.mu.Unlock()

		if wait <= 0 {
			if fn, ok := s.popDue(); ok {
				select {
				case s.tasks <- fn:
					metrics.ScheduledTasks.Dec()
				case <-s.quit:
					return
				}
			}
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
		case <-s.wake:
		case <-s.quit:
			return
		}
	}
}

func (s *Scheduler) popDue() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 || s.queue[0].at.After(time.Now()) {
		return nil, false
	}
	t := heap.Pop(&s.queue).(*task)
	return t.fn, true
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for fn := range s.tasks {
		s.run(fn)
	}
}

func (s *Scheduler) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CallbackPanics.Inc()
			s.log.Error().Interface("panic", r).Msg("scheduled callback panicked")
		}
	}()
	fn()
}
