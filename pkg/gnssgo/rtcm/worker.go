package rtcm

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// WorkerPool decodes raw RTCM frames concurrently: NumWorkers goroutines
// pull from a bounded job queue and push decoded messages (or nothing,
// on a decode error) onto a shared results channel. One pool backs one
// mountpoint's frame stream in cmd/ntripcorr.
type WorkerPool struct {
	numWorkers int
	jobQueue   chan *RTCMMessage
	results    chan interface{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	log        *logrus.Entry
	dropped    uint64
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(numWorkers int, queueSize int) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &WorkerPool{
		numWorkers: numWorkers,
		jobQueue:   make(chan *RTCMMessage, queueSize),
		results:    make(chan interface{}, queueSize),
		ctx:        ctx,
		cancel:     cancel,
		log:        logrus.StandardLogger().WithField("component", "rtcm.worker"),
	}

	// Start workers
	pool.Start()

	return pool
}

// Start starts the worker pool
func (p *WorkerPool) Start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops the worker pool
func (p *WorkerPool) Stop() {
	p.cancel()
	close(p.jobQueue)
	p.wg.Wait()
	close(p.results)
}

// Submit submits a message for processing
func (p *WorkerPool) Submit(msg *RTCMMessage) {
	select {
	case p.jobQueue <- msg:
		// Message submitted successfully
	case <-p.ctx.Done():
		// Worker pool is shutting down
	}
}

// Results returns the results channel
func (p *WorkerPool) Results() <-chan interface{} {
	return p.results
}

// worker processes messages from the job queue
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	
	for {
		select {
		case msg, ok := <-p.jobQueue:
			if !ok {
				// Job queue is closed
				return
			}
			
			// Process message
			result, err := DecodeRTCMMessage(msg)
			if err != nil {
				if n := atomic.AddUint64(&p.dropped, 1); n%100 == 1 {
					p.log.WithError(err).WithField("worker", id).Warn("dropping undecodable RTCM message")
				}
				continue
			}
			select {
			case p.results <- result:
				// Result sent successfully
			case <-p.ctx.Done():
				// Worker pool is shutting down
				return
			}

		case <-p.ctx.Done():
			// Worker pool is shutting down
			return
		}
	}
}

// Dropped reports the number of frames that failed to decode and were
// discarded rather than published, for callers wiring up a metrics endpoint.
func (p *WorkerPool) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}
