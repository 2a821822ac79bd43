// Package workerpool runs zamad's background tasks on a fixed set of
// goroutines and drains them on shutdown.
package workerpool

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/zama-app/zamad/internal/logging"
)

var log = logging.L("workerpool")

// Task is a unit of work. ctx is cancelled when a Shutdown deadline expires.
type Task func(ctx context.Context)

type namedTask struct {
	name string
	run  Task
}

// Pool is a bounded goroutine pool with a fixed-size task queue.
type Pool struct {
	maxWorkers int
	queue      chan namedTask
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopChan   chan struct{}

	// mu orders Submit's send against StopAccepting and the queue close.
	mu        sync.Mutex
	accepting bool
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a pool with maxWorkers goroutines and a task queue of queueSize.
func New(maxWorkers, queueSize int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		maxWorkers: maxWorkers,
		queue:      make(chan namedTask, queueSize),
		stopChan:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	p.accepting = true

	for i := 0; i < maxWorkers; i++ {
		go p.worker()
	}

	log.Debug("worker pool started", "workers", maxWorkers, "queueSize", queueSize)
	return p
}

// Context is the context handed to every task.
func (p *Pool) Context() context.Context {
	return p.ctx
}

// Submit enqueues a task. It returns false if the pool is stopped or the
// queue is full. Results are not retained; tasks report through logs.
func (p *Pool) Submit(name string, task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.accepting {
		return false
	}

	// Add before enqueue so Drain cannot miss the task.
	p.wg.Add(1)
	select {
	case p.queue <- namedTask{name: name, run: task}:
		return true
	default:
		p.wg.Done()
		log.Warn("worker pool queue full, task rejected", "task", name)
		return false
	}
}

// StopAccepting prevents new tasks from being submitted.
func (p *Pool) StopAccepting() {
	p.mu.Lock()
	p.accepting = false
	p.mu.Unlock()
}

// Drain stops accepting tasks and waits for in-flight and queued tasks,
// up to the ctx deadline. It reports whether every task finished. Worker
// goroutines exit afterwards.
func (p *Pool) Drain(ctx context.Context) bool {
	p.StopAccepting()
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	finished := false
	select {
	case <-done:
		finished = true
		log.Debug("worker pool drained")
	case <-ctx.Done():
		log.Warn("worker pool drain timed out")
	}

	p.mu.Lock()
	if !p.closed {
		close(p.queue)
		p.closed = true
	}
	p.mu.Unlock()
	return finished
}

// Shutdown drains the pool and then cancels the task context, so tasks
// still running past the deadline are told to stop.
func (p *Pool) Shutdown(ctx context.Context) bool {
	finished := p.Drain(ctx)
	p.cancel()
	return finished
}

func (p *Pool) worker() {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.runTask(t)
		case <-p.stopChan:
			for {
				select {
				case t, ok := <-p.queue:
					if !ok {
						return
					}
					p.runTask(t)
				default:
					return
				}
			}
		}
	}
}

// runTask executes one task with panic recovery. wg.Done matches the
// wg.Add in Submit.
func (p *Pool) runTask(t namedTask) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", "task", t.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	t.run(p.ctx)
	log.Debug("task finished", "task", t.name, logging.KeyDurationMs, time.Since(start).Milliseconds())
}
