// Package perkey provides a scheduler that serializes work per key
// while allowing work for different keys to execute concurrently.
//
// The projector uses it to run at most one read-model transaction per entity
// at a time. Workers exit after an idle period so a scheduler keyed by entity
// id does not keep one goroutine per entity forever.
package perkey

import (
	"context"
	"sync"
	"time"
)

// Option configures a Scheduler.
type Option func(*config)

type config struct {
	bufferSize  int
	idleTimeout time.Duration
}

// WithBufferSize sets the task buffer size per worker (default: 64).
func WithBufferSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// WithIdleTimeout sets how long a worker waits for new tasks before it exits
// (default: 30s). Zero keeps workers until Close.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) { c.idleTimeout = d }
}

// Scheduler runs tasks (functions) such that for any given key K,
// tasks are executed sequentially, in submission order.
// Tasks for *different* keys can proceed in parallel.
type Scheduler[K comparable] struct {
	mu          sync.Mutex
	workers     map[K]*worker
	closed      bool
	wg          sync.WaitGroup // tracks in-flight Do operations
	bufferSize  int
	idleTimeout time.Duration
}

type worker struct {
	tasks   chan *task
	pending int // tasks submitted but not yet finished, guarded by Scheduler.mu
}

type task struct {
	fn   func() error
	done chan error
}

// New creates a new Scheduler.
func New[K comparable](opts ...Option) *Scheduler[K] {
	cfg := &config{bufferSize: 64, idleTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Scheduler[K]{
		workers:     make(map[K]*worker),
		bufferSize:  cfg.bufferSize,
		idleTimeout: cfg.idleTimeout,
	}
}

// Do schedules fn to run for the given key.
// It blocks until fn finishes and returns its error.
func (s *Scheduler[K]) Do(key K, fn func() error) error {
	return s.DoContext(context.Background(), key, fn)
}

// DoContext is like Do but respects context cancellation.
// If the context is cancelled while waiting to enqueue or waiting for
// completion, it returns the context error. A task that was already enqueued
// still executes.
func (s *Scheduler[K]) DoContext(ctx context.Context, key K, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.wg.Add(1)
	w := s.getOrCreateWorkerLocked(key)
	w.pending++
	s.mu.Unlock()

	t := &task{
		fn:   fn,
		done: make(chan error, 1),
	}

	select {
	case w.tasks <- t:
	case <-ctx.Done():
		s.mu.Lock()
		w.pending--
		s.mu.Unlock()
		s.wg.Done()
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		s.wg.Done()
		return err
	case <-ctx.Done():
		s.wg.Done()
		return ctx.Err()
	}
}

// Workers returns the number of live workers.
func (s *Scheduler[K]) Workers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Close stops accepting new tasks and shuts down all workers.
// It waits for in-flight Do operations to finish enqueueing before
// closing worker channels. Queued tasks are still processed.
func (s *Scheduler[K]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	for _, w := range s.workers {
		close(w.tasks)
	}
	s.workers = nil
	s.mu.Unlock()
}

func (s *Scheduler[K]) getOrCreateWorkerLocked(key K) *worker {
	w, ok := s.workers[key]
	if ok {
		return w
	}

	w = &worker{
		tasks: make(chan *task, s.bufferSize),
	}
	s.workers[key] = w
	go s.runWorker(key, w)

	return w
}

// runWorker processes tasks sequentially for a single key.
func (s *Scheduler[K]) runWorker(key K, w *worker) {
	var idle <-chan time.Time
	var timer *time.Timer
	if s.idleTimeout > 0 {
		timer = time.NewTimer(s.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case t, ok := <-w.tasks:
			if !ok {
				return
			}
			t.done <- t.fn()
			s.mu.Lock()
			w.pending--
			s.mu.Unlock()
			if timer != nil {
				timer.Reset(s.idleTimeout)
			}
		case <-idle:
			s.mu.Lock()
			if w.pending == 0 && !s.closed && s.workers[key] == w {
				delete(s.workers, key)
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			timer.Reset(s.idleTimeout)
		}
	}
}

// ----- Errors -----

// ErrSchedulerClosed is returned when Do is called on a closed scheduler.
var ErrSchedulerClosed = &SchedulerError{"scheduler is closed"}

// SchedulerError is a simple error implementation.
type SchedulerError struct {
	msg string
}

func (e *SchedulerError) Error() string { return e.msg }
