package worker

import (
	"runtime"
	"sync"
)

// Pool bounds how many field images are analyzed concurrently
type Pool struct {
	workers   int
	jobQueue  chan func()
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewPool creates a pool with the specified number of workers
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start launches the workers once
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			go p.worker()
		}
	})
}

// worker processes jobs from the job queue
func (p *Pool) worker() {
	for job := range p.jobQueue {
		job()
	}
}

// Submit queues a job, blocking while the queue is full
func (p *Pool) Submit(job func()) {
	p.wg.Add(1)
	p.jobQueue <- func() {
		defer p.wg.Done()
		job()
	}
}

// Wait blocks until every submitted job has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting jobs and lets the workers drain the queue
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobQueue)
	})
}
