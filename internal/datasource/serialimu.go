package datasource

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/banshee-data/vionav/internal/monitoring"
)

// SerialImuSource reads IMU samples from a serial port, one CSV line per
// sample. OpenPort can be overridden in tests to avoid real hardware.
type SerialImuSource struct {
	PortPath string
	BaudRate int

	// OpenPort opens the underlying byte stream. Defaults to opening the
	// real serial port at PortPath.
	OpenPort func() (io.ReadCloser, error)
}

// Name identifies the source in logs.
func (s *SerialImuSource) Name() string {
	return fmt.Sprintf("imu-serial:%s", s.PortPath)
}

func (s *SerialImuSource) open() (io.ReadCloser, error) {
	if s.OpenPort != nil {
		return s.OpenPort()
	}
	baud := s.BaudRate
	if baud == 0 {
		baud = 115200
	}
	return serial.Open(s.PortPath, &serial.Mode{BaudRate: baud})
}

// Run reads lines until the context is cancelled or the port closes.
// Unparsable lines are logged and skipped.
func (s *SerialImuSource) Run(ctx context.Context, sink Sink) error {
	port, err := s.open()
	if err != nil {
		return fmt.Errorf("failed to open IMU port %s: %w", s.PortPath, err)
	}

	// Closing the port unblocks the reader when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			port.Close()
		case <-done:
			port.Close()
		}
	}()

	monitoring.Logf("%s: reading", s.Name())

	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		sample, err := ParseImuLine(line)
		if err != nil {
			monitoring.Warnf("%s: bad line: %v", s.Name(), err)
			continue
		}
		if err := sink.Publish(TopicImuSamples, sample); err != nil {
			return nil
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("IMU port read failed: %w", err)
	}
	return nil
}
