// Package vionode couples data sources, the message flow and the estimator
// into one runnable node.
package vionode

import (
	"context"
	"sync/atomic"

	"github.com/banshee-data/vionav/internal/datasource"
	"github.com/banshee-data/vionav/internal/flow"
	"github.com/banshee-data/vionav/internal/monitoring"
	"github.com/banshee-data/vionav/internal/vimap"
)

// Node runs the sensor sources and routes their output through the flow to
// the estimator. Once every source is exhausted the node requests exit; the
// host polls ShouldExit and drives shutdown.
type Node struct {
	flow         *flow.Flow
	spinner      *datasource.Spinner
	estimator    Estimator
	localization *vimap.SummaryMap

	cancel  context.CancelFunc
	started atomic.Bool
	exit    atomic.Bool
	stopped chan struct{}
}

// New wires a node. The localization map may be nil for mapping-only runs.
func New(f *flow.Flow, estimator Estimator, localization *vimap.SummaryMap, sources ...datasource.Source) *Node {
	n := &Node{
		flow:         f,
		spinner:      datasource.NewSpinner(sources...),
		estimator:    estimator,
		localization: localization,
		stopped:      make(chan struct{}),
	}

	f.Subscribe(datasource.TopicImuSamples, func(payload interface{}) {
		if sample, ok := payload.(*datasource.ImuSample); ok {
			n.estimator.ProcessImu(sample)
		}
	})
	f.Subscribe(datasource.TopicCameraFrames, func(payload interface{}) {
		if frame, ok := payload.(*datasource.CameraFrame); ok {
			n.estimator.ProcessFrame(frame)
		}
	})
	return n
}

// Localization returns the provisioned localization map, nil if none.
func (n *Node) Localization() *vimap.SummaryMap { return n.localization }

// Start launches the data sources. Calling Start twice is a no-op.
func (n *Node) Start(ctx context.Context) {
	if !n.started.CompareAndSwap(false, true) {
		return
	}
	ctx, n.cancel = context.WithCancel(ctx)

	if n.localization != nil {
		monitoring.Logf("node: localizing against %d landmarks", n.localization.LandmarkCount())
	} else {
		monitoring.Logf("node: running without a localization map")
	}

	n.spinner.Start(ctx, n.flow)
	go func() {
		<-n.spinner.Done()
		if n.exit.CompareAndSwap(false, true) {
			monitoring.Logf("node: all data sources finished, requesting exit")
		}
		close(n.stopped)
	}()
}

// ShouldExit reports whether the node has run out of data.
func (n *Node) ShouldExit() bool {
	return n.exit.Load()
}

// Shutdown stops the data sources and waits for them to finish. It is safe
// to call more than once and before Start.
func (n *Node) Shutdown() {
	if !n.started.Load() {
		return
	}
	n.cancel()
	<-n.stopped
}
