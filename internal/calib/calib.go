// Package calib loads camera-rig and IMU calibration files.
//
// Calibration files are JSON. Loading is strict: a file that cannot be read
// or fails validation is an error, because running the estimator against a
// wrong calibration silently produces garbage.
package calib

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Camera describes a single camera in the rig.
type Camera struct {
	Label      string    `json:"label"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Intrinsics []float64 `json:"intrinsics"` // fx, fy, cx, cy
	Distortion []float64 `json:"distortion,omitempty"`
	// TBC is the 4x4 row-major camera-to-body transform.
	TBC []float64 `json:"T_B_C,omitempty"`
}

// NCamera is the calibrated camera rig handed to the estimator.
type NCamera struct {
	Label   string   `json:"label"`
	Cameras []Camera `json:"cameras"`
}

// Validate checks the rig for structural sanity.
func (nc *NCamera) Validate() error {
	if len(nc.Cameras) == 0 {
		return fmt.Errorf("camera rig %q has no cameras", nc.Label)
	}
	for i, cam := range nc.Cameras {
		if cam.Width <= 0 || cam.Height <= 0 {
			return fmt.Errorf("camera %d (%s): invalid resolution %dx%d",
				i, cam.Label, cam.Width, cam.Height)
		}
		if len(cam.Intrinsics) != 4 {
			return fmt.Errorf("camera %d (%s): expected 4 intrinsics, got %d",
				i, cam.Label, len(cam.Intrinsics))
		}
		if cam.Intrinsics[0] <= 0 || cam.Intrinsics[1] <= 0 {
			return fmt.Errorf("camera %d (%s): focal lengths must be positive",
				i, cam.Label)
		}
		if len(cam.TBC) != 0 && len(cam.TBC) != 16 {
			return fmt.Errorf("camera %d (%s): T_B_C must have 16 entries, got %d",
				i, cam.Label, len(cam.TBC))
		}
	}
	return nil
}

// LoadNCamera loads and validates a camera rig calibration file.
func LoadNCamera(path string) (*NCamera, error) {
	nc := &NCamera{}
	if err := loadJSON(path, nc); err != nil {
		return nil, err
	}
	if err := nc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid camera calibration %s: %w", path, err)
	}
	return nc, nil
}

// ImuSigmas holds the IMU noise model.
type ImuSigmas struct {
	GyroNoiseDensity    float64 `json:"gyro_noise_density"`
	GyroBiasRandomWalk  float64 `json:"gyro_bias_random_walk"`
	AccelNoiseDensity   float64 `json:"accel_noise_density"`
	AccelBiasRandomWalk float64 `json:"accel_bias_random_walk"`
}

// Valid reports whether every sigma is strictly positive.
func (s ImuSigmas) Valid() bool {
	return s.GyroNoiseDensity > 0 && s.GyroBiasRandomWalk > 0 &&
		s.AccelNoiseDensity > 0 && s.AccelBiasRandomWalk > 0
}

// ImuParameters is the full IMU description consumed by the mapping side.
type ImuParameters struct {
	Label              string    `json:"label"`
	Sigmas             ImuSigmas `json:"sigmas"`
	SaturationAccelMax float64   `json:"saturation_accel_max,omitempty"`
	SaturationGyroMax  float64   `json:"saturation_gyro_max,omitempty"`
	GravityMagnitude   float64   `json:"gravity_magnitude,omitempty"`
}

// Validate checks the parameters for usability.
func (p *ImuParameters) Validate() error {
	if !p.Sigmas.Valid() {
		return fmt.Errorf("IMU %q: sigmas must all be positive: %+v", p.Label, p.Sigmas)
	}
	if p.GravityMagnitude != 0 && (p.GravityMagnitude < 9.0 || p.GravityMagnitude > 10.0) {
		return fmt.Errorf("IMU %q: implausible gravity magnitude %.3f", p.Label, p.GravityMagnitude)
	}
	return nil
}

// LoadImuParameters loads and validates the primary IMU parameter file.
func LoadImuParameters(path string) (*ImuParameters, error) {
	p := &ImuParameters{}
	if err := loadJSON(path, p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid IMU parameters %s: %w", path, err)
	}
	return p, nil
}

// LoadImuSigmas loads a sigma-only override file, as used for the
// estimator-specific noise model.
func LoadImuSigmas(path string) (ImuSigmas, error) {
	var s ImuSigmas
	if err := loadJSON(path, &s); err != nil {
		return ImuSigmas{}, err
	}
	if !s.Valid() {
		return ImuSigmas{}, fmt.Errorf("invalid IMU sigmas %s: all values must be positive", path)
	}
	return s, nil
}

func loadJSON(path string, v interface{}) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("calibration file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read calibration file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse calibration JSON %s: %w", cleanPath, err)
	}
	return nil
}
