package flow

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	f := New(2, 16)
	defer f.Close()

	var a, b atomic.Int64
	f.Subscribe("imu", func(payload interface{}) { a.Add(payload.(int64)) })
	f.Subscribe("imu", func(payload interface{}) { b.Add(payload.(int64)) })

	for i := int64(1); i <= 10; i++ {
		if err := f.Publish("imu", i); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	f.WaitUntilIdle()

	if a.Load() != 55 || b.Load() != 55 {
		t.Errorf("subscriber sums = %d, %d; want 55, 55", a.Load(), b.Load())
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	f := New(1, 16)
	defer f.Close()

	var camera atomic.Int64
	f.Subscribe("camera", func(interface{}) { camera.Add(1) })

	f.Publish("imu", 1)
	f.Publish("camera", 1)
	f.WaitUntilIdle()

	if camera.Load() != 1 {
		t.Errorf("camera handler ran %d times, want 1", camera.Load())
	}
}

func TestPublishAfterShutdownIsRejected(t *testing.T) {
	f := New(1, 4)
	f.Shutdown()

	if err := f.Publish("imu", 1); err != ErrShutDown {
		t.Errorf("Publish after Shutdown = %v, want ErrShutDown", err)
	}
	f.Close()
}

func TestShutdownIsIdempotent(t *testing.T) {
	f := New(1, 4)
	f.Shutdown()
	f.Shutdown()
	f.Close()
}

func TestQueuedMessagesDrainAfterShutdown(t *testing.T) {
	f := New(4, 256)

	var delivered atomic.Int64
	f.Subscribe("frames", func(interface{}) { delivered.Add(1) })

	const n = 200
	for i := 0; i < n; i++ {
		if err := f.Publish("frames", i); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}

	f.Shutdown()
	f.WaitUntilIdle()

	if delivered.Load() != n {
		t.Errorf("delivered %d of %d messages queued before shutdown", delivered.Load(), n)
	}
	f.Close()
}

func TestConcurrentPublishers(t *testing.T) {
	f := New(0, 1024) // worker count defaults to NumCPU
	defer f.Close()

	var delivered atomic.Int64
	f.Subscribe("imu", func(interface{}) { delivered.Add(1) })

	var wg sync.WaitGroup
	const publishers, each = 8, 50
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				f.Publish("imu", i)
			}
		}()
	}
	wg.Wait()
	f.WaitUntilIdle()

	if delivered.Load() != publishers*each {
		t.Errorf("delivered %d, want %d", delivered.Load(), publishers*each)
	}
}
