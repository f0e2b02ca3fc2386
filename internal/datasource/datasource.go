// Package datasource feeds sensor data into the message flow. Live sources
// read from the camera UDP socket and the IMU serial port; the replay source
// reads a packet capture and replays it with original timing.
package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Topic names used on the message flow.
const (
	TopicCameraFrames = "camera_frames"
	TopicImuSamples   = "imu_samples"
)

// Sink receives decoded sensor payloads. The message flow satisfies it.
type Sink interface {
	Publish(topic string, payload interface{}) error
}

// Source is a stream of sensor data. Run blocks until the source is
// exhausted or the context is cancelled. Live sources never exhaust on
// their own; replay sources return nil at end of input.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}

// FeatureTrack is one tracked image feature, extracted and matched by the
// camera front end. The bearing is the ray to the feature in the body frame;
// Depth is the triangulated distance in meters, 0 when unknown.
type FeatureTrack struct {
	ID       string  `json:"id"`
	BearingX float64 `json:"bx"`
	BearingY float64 `json:"by"`
	BearingZ float64 `json:"bz"`
	Depth    float64 `json:"depth,omitempty"`
}

// CameraFrame is one camera image with its capture metadata. Data holds the
// raw encoded image bytes as sent on the wire; Tracks carries the front
// end's feature tracks for this frame.
type CameraFrame struct {
	TimestampNanos int64          `json:"ts_unix_nanos"`
	CameraIndex    int            `json:"camera_index"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	Data           []byte         `json:"data,omitempty"`
	Tracks         []FeatureTrack `json:"tracks,omitempty"`
}

// ImuSample is one accelerometer/gyroscope reading.
type ImuSample struct {
	TimestampNanos         int64
	AccelX, AccelY, AccelZ float64
	GyroX, GyroY, GyroZ    float64
}

// ParseCameraFrame decodes a camera frame wire payload. Frames are JSON.
func ParseCameraFrame(payload []byte) (*CameraFrame, error) {
	f := &CameraFrame{}
	if err := json.Unmarshal(payload, f); err != nil {
		return nil, fmt.Errorf("failed to parse camera frame: %w", err)
	}
	if f.TimestampNanos <= 0 {
		return nil, fmt.Errorf("camera frame has invalid timestamp %d", f.TimestampNanos)
	}
	return f, nil
}

// ParseImuLine decodes one IMU CSV line of the form
// ts_nanos,ax,ay,az,gx,gy,gz.
func ParseImuLine(line string) (*ImuSample, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 7 {
		return nil, fmt.Errorf("imu line has %d fields, want 7", len(fields))
	}

	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || ts <= 0 {
		return nil, fmt.Errorf("imu line has invalid timestamp %q", fields[0])
	}

	vals := make([]float64, 6)
	for i, field := range fields[1:] {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("imu line field %d invalid: %q", i+1, field)
		}
		vals[i] = v
	}

	return &ImuSample{
		TimestampNanos: ts,
		AccelX:         vals[0],
		AccelY:         vals[1],
		AccelZ:         vals[2],
		GyroX:          vals[3],
		GyroY:          vals[4],
		GyroZ:          vals[5],
	}, nil
}
