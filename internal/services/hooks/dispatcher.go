// Package hooks runs post-request work (budget checks, anomaly scans) off
// the proxy's hot path on a small bounded worker pool.
package hooks

import (
	"sync"

	"github.com/llmlab/llmlab/internal/logger"
	"go.uber.org/zap"
)

type Dispatcher struct {
	queue chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

func NewDispatcher(workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	d := &Dispatcher{queue: make(chan func(), queueSize)}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		job()
	}
}

// Enqueue schedules a job without blocking. When the queue is full the job
// is dropped; hooks are advisory, the request has already been served.
func (d *Dispatcher) Enqueue(job func()) {
	select {
	case d.queue <- job:
	default:
		logger.Warn("hook queue full, dropping job",
			zap.Int("queue_size", cap(d.queue)))
	}
}

// Close stops accepting work and waits for in-flight jobs to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}
