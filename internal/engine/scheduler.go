package engine

import (
	"context"
	"sync"

	"magnet-playlets/internal/metrics"
)

// RunFunc executes the full pipeline of one task. It is called on its own
// goroutine while the task holds an execution slot.
type RunFunc func(ctx context.Context, taskID string)

// Scheduler admits queued task ids in FIFO order into a bounded pool of
// execution slots. A limit of 0 means unlimited.
type Scheduler struct {
	mu      sync.Mutex
	queue   []string
	queued  map[string]struct{}
	active  int
	limit   int
	stopped bool

	ctx context.Context
	run RunFunc
	wg  sync.WaitGroup
}

// NewScheduler returns a scheduler admitting at most limit tasks at once.
// A limit of zero means unlimited.
func NewScheduler(ctx context.Context, limit int, run RunFunc) *Scheduler {
	if limit < 0 {
		limit = 0
	}
	return &Scheduler{
		queued: make(map[string]struct{}),
		limit:  limit,
		ctx:    ctx,
		run:    run,
	}
}

// Enqueue appends id unless it is already queued and admits as many queued
// tasks as the limit allows.
func (s *Scheduler) Enqueue(id string) {
	s.mu.Lock()
	if _, ok := s.queued[id]; !ok && !s.stopped {
		s.queued[id] = struct{}{}
		s.queue = append(s.queue, id)
	}
	s.mu.Unlock()
	s.drain()
}

// Forget drops id from the queue if it has not been admitted yet.
func (s *Scheduler) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queued[id]; !ok {
		return
	}
	delete(s.queued, id)
	for i, q := range s.queue {
		if q == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	metrics.QueueDepth.Set(float64(len(s.queue)))
}

// SetLimit changes the slot count. Raising it admits queued tasks right
// away; lowering it never interrupts running tasks.
func (s *Scheduler) SetLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	s.mu.Lock()
	s.limit = limit
	s.mu.Unlock()
	s.drain()
}

// Limit returns the current concurrency limit.
func (s *Scheduler) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Active returns the number of occupied slots.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Queued returns the ids waiting for a slot, front first.
func (s *Scheduler) Queued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queue...)
}

// Stop stops admitting new tasks and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.stopped && len(s.queue) > 0 && (s.limit == 0 || s.active < s.limit) {
		id := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, id)
		s.active++

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			s.run(s.ctx, id)
		}()
	}
	metrics.QueueDepth.Set(float64(len(s.queue)))
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	s.drain()
}
