package server

import (
	"errors"
	"fmt"
	"sync"
)

var errWorkerStopped = errors.New("workspace worker stopped")

// workRequest is a unit of work to run on the worker goroutine.
type workRequest struct {
	fn   func(*Workspace) any
	done chan workResult
}

type workResult struct {
	value any
	err   error
}

// Worker serializes all workspace access through a single goroutine.
// LSP notifications and requests arrive concurrently; documents and their
// analyses are only touched from here.
type Worker struct {
	ws       *Workspace
	requests chan workRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(ws *Workspace) *Worker {
	w := &Worker{
		ws:       ws,
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn on the workspace, recovering from panics.
func (w *Worker) execute(fn func(*Workspace) any) (result workResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("workspace panic: %v", r)
			result.err = fmt.Errorf("%v", r)
		}
	}()
	result.value = fn(w.ws)
	return result
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes. A panic in fn is returned as an error.
func (w *Worker) Do(fn func(*Workspace) any) (any, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, errWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, errWorkerStopped
	}
}

// Stop shuts down the worker goroutine. Calling Stop twice is safe.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
