// Package flow is the in-process message bus connecting data sources to the
// estimation pipeline. Publishers push typed payloads onto named topics and
// a fixed pool of workers delivers them to subscribers.
package flow

import (
	"errors"
	"runtime"
	"sync"

	"github.com/banshee-data/vionav/internal/monitoring"
)

// ErrShutDown is returned by Publish once intake has been stopped.
var ErrShutDown = errors.New("flow: shut down")

// Handler consumes one payload published on a topic. Handlers run on the
// worker pool and must not block indefinitely.
type Handler func(payload interface{})

type message struct {
	topic   string
	payload interface{}
}

// Flow is the message bus. Delivery order within a topic follows publish
// order per publisher, but handlers run concurrently across workers.
type Flow struct {
	queue chan message

	mu       sync.RWMutex
	subs     map[string][]Handler
	shutDown bool

	workers sync.WaitGroup
	pending sync.WaitGroup
}

// New creates a flow with the given queue depth and starts its workers. A
// non-positive worker count defaults to the number of CPUs.
func New(workers, queueDepth int) *Flow {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueDepth <= 0 {
		queueDepth = 1024
	}

	f := &Flow{
		queue: make(chan message, queueDepth),
		subs:  make(map[string][]Handler),
	}
	for i := 0; i < workers; i++ {
		f.workers.Add(1)
		go f.worker()
	}
	return f
}

func (f *Flow) worker() {
	defer f.workers.Done()
	for msg := range f.queue {
		f.mu.RLock()
		handlers := f.subs[msg.topic]
		f.mu.RUnlock()

		for _, h := range handlers {
			h(msg.payload)
		}
		f.pending.Done()
	}
}

// Subscribe registers a handler for a topic. Multiple handlers on one topic
// each receive every payload.
func (f *Flow) Subscribe(topic string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = append(f.subs[topic], h)
}

// Publish enqueues a payload for delivery. After Shutdown the payload is
// dropped and ErrShutDown is returned.
func (f *Flow) Publish(topic string, payload interface{}) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.shutDown {
		return ErrShutDown
	}
	f.pending.Add(1)
	f.queue <- message{topic: topic, payload: payload}
	return nil
}

// Shutdown stops intake. Messages already queued are still delivered; use
// WaitUntilIdle to wait for them. Calling Shutdown twice is safe.
func (f *Flow) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.shutDown {
		return
	}
	f.shutDown = true
	close(f.queue)
	monitoring.Logf("flow: intake stopped")
}

// WaitUntilIdle blocks until every published message has been delivered. It
// may be called at any time, before or after Shutdown.
func (f *Flow) WaitUntilIdle() {
	f.pending.Wait()
}

// Close shuts the flow down and waits for the workers to drain the queue.
func (f *Flow) Close() {
	f.Shutdown()
	f.workers.Wait()
}
