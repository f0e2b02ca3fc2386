package datasource

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/vionav/internal/monitoring"
)

// CameraUDPSource receives camera frames on a UDP port. Each datagram
// carries one JSON-encoded frame.
type CameraUDPSource struct {
	Port   int
	RcvBuf int
}

// Name identifies the source in logs.
func (s *CameraUDPSource) Name() string {
	return fmt.Sprintf("camera-udp:%d", s.Port)
}

// Run listens until the context is cancelled. Malformed datagrams are
// logged and skipped.
func (s *CameraUDPSource) Run(ctx context.Context, sink Sink) error {
	addr := &net.UDPAddr{Port: s.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP port %d: %w", s.Port, err)
	}
	defer conn.Close()

	if s.RcvBuf > 0 {
		if err := conn.SetReadBuffer(s.RcvBuf); err != nil {
			monitoring.Warnf("%s: failed to set receive buffer to %d: %v", s.Name(), s.RcvBuf, err)
		}
	}
	monitoring.Logf("%s: listening", s.Name())

	buffer := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("%s: stopping", s.Name())
			return nil
		default:
			// Short read deadline so context cancellation is noticed.
			if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
				monitoring.Warnf("%s: failed to set read deadline: %v", s.Name(), err)
			}

			n, from, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				monitoring.Warnf("%s: read error: %v", s.Name(), err)
				continue
			}

			frame, err := ParseCameraFrame(buffer[:n])
			if err != nil {
				monitoring.Warnf("%s: bad frame from %v: %v", s.Name(), from, err)
				continue
			}
			if err := sink.Publish(TopicCameraFrames, frame); err != nil {
				return nil
			}
		}
	}
}
