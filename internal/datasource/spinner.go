package datasource

import (
	"context"
	"sync"

	"github.com/banshee-data/vionav/internal/monitoring"
)

// Spinner runs a set of sources concurrently and reports when all of them
// have finished. Live sources finish only on cancellation; replay sources
// finish when their input is exhausted.
type Spinner struct {
	sources []Source

	mu      sync.Mutex
	started bool

	done chan struct{}
}

// NewSpinner creates a spinner over the given sources.
func NewSpinner(sources ...Source) *Spinner {
	return &Spinner{
		sources: sources,
		done:    make(chan struct{}),
	}
}

// Start launches every source. Source errors are logged, not fatal to the
// other sources. Start may be called once.
func (sp *Spinner) Start(ctx context.Context, sink Sink) {
	sp.mu.Lock()
	if sp.started {
		sp.mu.Unlock()
		return
	}
	sp.started = true
	sp.mu.Unlock()

	var wg sync.WaitGroup
	for _, src := range sp.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			if err := src.Run(ctx, sink); err != nil {
				monitoring.Warnf("datasource %s failed: %v", src.Name(), err)
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(sp.done)
	}()
}

// Done is closed once every source has returned.
func (sp *Spinner) Done() <-chan struct{} {
	return sp.done
}
