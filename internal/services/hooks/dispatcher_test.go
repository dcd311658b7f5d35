package hooks

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(2, 16)
	defer d.Close()

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		d.Enqueue(func() {
			count.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	assert.Equal(t, int64(10), count.Load())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, 1)
	defer d.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	d.Enqueue(func() {
		close(started)
		<-block
	})
	<-started

	// Queue holds one; everything beyond is dropped without blocking.
	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		d.Enqueue(func() { ran.Add(1) })
	}
	close(block)

	d.Close()
	assert.LessOrEqual(t, ran.Load(), int64(1))
}

func TestDispatcherCloseWaitsForInFlight(t *testing.T) {
	d := NewDispatcher(4, 16)

	var done atomic.Bool
	d.Enqueue(func() {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
	})

	d.Close()
	assert.True(t, done.Load())
}
