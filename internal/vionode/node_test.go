package vionode

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/banshee-data/vionav/internal/datasource"
	"github.com/banshee-data/vionav/internal/flow"
)

// countingEstimator tallies what reaches the estimator.
type countingEstimator struct {
	imu    atomic.Int64
	frames atomic.Int64
}

func (e *countingEstimator) ProcessImu(*datasource.ImuSample) { e.imu.Add(1) }
func (e *countingEstimator) ProcessFrame(*datasource.CameraFrame) { e.frames.Add(1) }

// finiteSource publishes a fixed batch of samples and frames, then returns.
type finiteSource struct{ n int }

func (s *finiteSource) Name() string { return "finite" }

func (s *finiteSource) Run(ctx context.Context, sink datasource.Sink) error {
	for i := 0; i < s.n; i++ {
		sink.Publish(datasource.TopicImuSamples, &datasource.ImuSample{TimestampNanos: int64(i + 1)})
		sink.Publish(datasource.TopicCameraFrames, &datasource.CameraFrame{TimestampNanos: int64(i + 1)})
	}
	return nil
}

// blockingSource runs until cancelled, like a live sensor.
type blockingSource struct{}

func (s *blockingSource) Name() string { return "blocking" }

func (s *blockingSource) Run(ctx context.Context, sink datasource.Sink) error {
	<-ctx.Done()
	return nil
}

func waitForExit(t *testing.T, n *Node) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !n.ShouldExit() {
		if time.Now().After(deadline) {
			t.Fatal("node never requested exit")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNodeRequestsExitWhenSourcesFinish(t *testing.T) {
	f := flow.New(2, 64)
	est := &countingEstimator{}
	n := New(f, est, nil, &finiteSource{n: 10})

	n.Start(context.Background())
	waitForExit(t, n)

	n.Shutdown()
	f.Shutdown()
	f.WaitUntilIdle()

	if est.imu.Load() != 10 || est.frames.Load() != 10 {
		t.Errorf("estimator saw %d imu / %d frames, want 10 / 10",
			est.imu.Load(), est.frames.Load())
	}
	f.Close()
}

func TestNodeLiveSourceStopsOnShutdown(t *testing.T) {
	f := flow.New(1, 16)
	n := New(f, &countingEstimator{}, nil, &blockingSource{})

	n.Start(context.Background())
	if n.ShouldExit() {
		t.Error("live node requested exit while source still running")
	}

	done := make(chan struct{})
	go func() {
		n.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	f.Close()
}

func TestNodeShutdownBeforeStartIsSafe(t *testing.T) {
	f := flow.New(1, 4)
	n := New(f, &countingEstimator{}, nil)
	n.Shutdown()
	n.Shutdown()
	f.Close()
}

func TestNodeStartIsIdempotent(t *testing.T) {
	f := flow.New(1, 16)
	n := New(f, &countingEstimator{}, nil, &finiteSource{n: 1})

	n.Start(context.Background())
	n.Start(context.Background())
	waitForExit(t, n)
	n.Shutdown()
	f.Close()
}
