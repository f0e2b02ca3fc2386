package datasource

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/vionav/internal/monitoring"
	"github.com/banshee-data/vionav/internal/timeutil"
)

// ReplaySource replays a recorded packet capture, pacing packets by their
// capture timestamps. Datagrams addressed to CameraPort are decoded as
// camera frames, everything else as IMU CSV lines. Run returns nil once the
// capture is exhausted.
type ReplaySource struct {
	Path       string
	CameraPort int
	// SpeedMultiplier scales replay pacing. 1.0 is real time; values <= 0
	// default to 1.0.
	SpeedMultiplier float64
	// Clock paces the replay; nil uses the real clock.
	Clock timeutil.Clock
}

// Name identifies the source in logs.
func (s *ReplaySource) Name() string {
	return fmt.Sprintf("replay:%s", s.Path)
}

// Run replays the capture to the sink.
func (s *ReplaySource) Run(ctx context.Context, sink Sink) error {
	speed := s.SpeedMultiplier
	if speed <= 0 {
		speed = 1.0
	}
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("failed to open replay file: %w", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read capture %s: %w", s.Path, err)
	}

	monitoring.Logf("%s: replay started (speed %.1fx)", s.Name(), speed)

	var lastCapture time.Time
	packets, frames, samples := 0, 0, 0
	for {
		if ctx.Err() != nil {
			monitoring.Logf("%s: replay cancelled after %d packets", s.Name(), packets)
			return nil
		}

		data, ci, err := r.ReadPacketData()
		if err == io.EOF {
			monitoring.Logf("%s: replay complete (%d packets, %d frames, %d imu samples)",
				s.Name(), packets, frames, samples)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read capture packet: %w", err)
		}
		packets++

		// Pace to capture timing.
		if !lastCapture.IsZero() {
			delay := time.Duration(float64(ci.Timestamp.Sub(lastCapture)) / speed)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-clock.After(delay):
				}
			}
		}
		lastCapture = ci.Timestamp

		packet := gopacket.NewPacket(data, r.LinkType(), gopacket.NoCopy)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}

		if int(udp.DstPort) == s.CameraPort {
			frame, err := ParseCameraFrame(udp.Payload)
			if err != nil {
				monitoring.Warnf("%s: bad camera frame in packet %d: %v", s.Name(), packets, err)
				continue
			}
			if err := sink.Publish(TopicCameraFrames, frame); err != nil {
				return nil
			}
			frames++
		} else {
			sample, err := ParseImuLine(string(udp.Payload))
			if err != nil {
				monitoring.Warnf("%s: bad imu line in packet %d: %v", s.Name(), packets, err)
				continue
			}
			if err := sink.Publish(TopicImuSamples, sample); err != nil {
				return nil
			}
			samples++
		}
	}
}
