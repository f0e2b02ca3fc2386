package datasource

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// collectSink records published payloads for assertions.
type collectSink struct {
	mu       sync.Mutex
	payloads map[string][]interface{}
}

func newCollectSink() *collectSink {
	return &collectSink{payloads: make(map[string][]interface{})}
}

func (s *collectSink) Publish(topic string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[topic] = append(s.payloads[topic], payload)
	return nil
}

func (s *collectSink) count(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads[topic])
}

func TestCameraUDPSource(t *testing.T) {
	// Pick a free port first.
	probe, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	port := probe.LocalAddr().(*net.UDPAddr).Port
	probe.Close()

	src := &CameraUDPSource{Port: port}
	sink := newCollectSink()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(ctx, sink) }()

	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	frame := []byte(`{"ts_unix_nanos": 1700000000000000000, "camera_index": 0, "width": 8, "height": 8, "data": "AAEC"}`)
	deadline := time.Now().Add(5 * time.Second)
	for sink.count(TopicCameraFrames) == 0 && time.Now().Before(deadline) {
		// The listener may not be bound yet on the first sends.
		if _, err := conn.Write(frame); err != nil {
			t.Fatal(err)
		}
		// Garbage datagrams are skipped without killing the source.
		conn.Write([]byte("junk"))
		time.Sleep(20 * time.Millisecond)
	}
	if sink.count(TopicCameraFrames) == 0 {
		t.Fatal("no camera frames received")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v after cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("source did not stop after cancellation")
	}
}

func TestSerialImuSource_FromStream(t *testing.T) {
	lines := strings.Join([]string{
		"1700000000000000000,0.1,0.2,9.8,0,0,0",
		"bad line",
		"1700000000010000000,0.1,0.2,9.8,0,0,0",
		"",
	}, "\n")

	src := &SerialImuSource{
		PortPath: "fake",
		OpenPort: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(lines)), nil
		},
	}
	sink := newCollectSink()

	if err := src.Run(context.Background(), sink); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := sink.count(TopicImuSamples); got != 2 {
		t.Errorf("published %d samples, want 2 (bad line skipped)", got)
	}
}

func TestSerialImuSource_OpenFailure(t *testing.T) {
	src := &SerialImuSource{
		PortPath: "fake",
		OpenPort: func() (io.ReadCloser, error) {
			return nil, fmt.Errorf("no such port")
		},
	}
	if err := src.Run(context.Background(), newCollectSink()); err == nil {
		t.Error("expected error when port cannot be opened")
	}
}

// stubSource finishes after publishing a fixed number of payloads.
type stubSource struct {
	name string
	n    int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Run(ctx context.Context, sink Sink) error {
	for i := 0; i < s.n; i++ {
		if err := sink.Publish(TopicImuSamples, i); err != nil {
			return nil
		}
	}
	return nil
}

func TestSpinnerSignalsExhaustion(t *testing.T) {
	sink := newCollectSink()
	sp := NewSpinner(&stubSource{name: "a", n: 3}, &stubSource{name: "b", n: 2})

	sp.Start(context.Background(), sink)

	select {
	case <-sp.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("spinner never signalled exhaustion")
	}
	if got := sink.count(TopicImuSamples); got != 5 {
		t.Errorf("published %d payloads, want 5", got)
	}
}

func TestSpinnerStartIsIdempotent(t *testing.T) {
	sp := NewSpinner(&stubSource{name: "a", n: 1})
	sink := newCollectSink()
	sp.Start(context.Background(), sink)
	sp.Start(context.Background(), sink)
	<-sp.Done()
}
