// Package config resolves the immutable runtime configuration from defaults
// and an ordered list of override providers.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SourceType selects where sensor data is acquired from.
type SourceType string

const (
	// SourceLive acquires camera frames over UDP and IMU samples over a
	// serial port.
	SourceLive SourceType = "live"
	// SourceReplay replays a recorded sensor capture from a pcap file.
	SourceReplay SourceType = "replay"
)

// Config is the resolved runtime configuration. It is produced once by
// Resolve and never mutated afterwards; re-resolution builds a new value.
type Config struct {
	// LocalizationMapFolder points at a summary or full map used to
	// bootstrap localization. Empty means run without a prior map.
	LocalizationMapFolder string

	// CameraCalibration is the path to the camera rig calibration file.
	CameraCalibration string

	// ImuParameters is the path to the primary IMU parameter file.
	ImuParameters string

	// EstimatorImuParameters optionally overrides the IMU sigmas handed to
	// the estimator. Empty means the primary values are reused.
	EstimatorImuParameters string

	// SaveMapFolder is the requested map output folder. Empty disables
	// saving entirely.
	SaveMapFolder string

	OverwriteExistingMap  bool
	OptimizeMapOnSave     bool
	SaveMapOnShutdown     bool
	PersistFrameResources bool

	SourceType SourceType
	ReplayPath string

	HTTPListenAddr string
	GRPCListenAddr string
	CameraUDPPort  int
	ImuSerialPort  string
}

// Defaults returns the built-in configuration used when no provider
// overrides an option.
func Defaults() Config {
	return Config{
		CameraCalibration: "ncamera.json",
		ImuParameters:     "imu.json",
		SaveMapOnShutdown: true,
		SourceType:        SourceLive,
		HTTPListenAddr:    ":8080",
		GRPCListenAddr:    "localhost:50051",
		CameraUDPPort:     2468,
		ImuSerialPort:     "/dev/ttySC1",
	}
}

// Overrides carries optional values from a single override provider. A nil
// field means the provider did not set that option. Partial overrides are
// safe: unset fields fall through to later providers and then the defaults.
type Overrides struct {
	LocalizationMapFolder  *string `json:"localization_map_folder,omitempty"`
	CameraCalibration      *string `json:"camera_calibration,omitempty"`
	ImuParameters          *string `json:"imu_parameters,omitempty"`
	EstimatorImuParameters *string `json:"estimator_imu_parameters,omitempty"`
	SaveMapFolder          *string `json:"save_map_folder,omitempty"`
	OverwriteExistingMap   *bool   `json:"overwrite_existing_map,omitempty"`
	OptimizeMapOnSave      *bool   `json:"optimize_map_on_save,omitempty"`
	SaveMapOnShutdown      *bool   `json:"save_map_on_shutdown,omitempty"`
	PersistFrameResources  *bool   `json:"persist_frame_resources,omitempty"`
	SourceType             *string `json:"source_type,omitempty"`
	ReplayPath             *string `json:"replay_path,omitempty"`
	HTTPListenAddr         *string `json:"http_listen_addr,omitempty"`
	GRPCListenAddr         *string `json:"grpc_listen_addr,omitempty"`
	CameraUDPPort          *int    `json:"camera_udp_port,omitempty"`
	ImuSerialPort          *string `json:"imu_serial_port,omitempty"`
}

// Validate checks that the override values are usable.
func (o *Overrides) Validate() error {
	if o.SourceType != nil {
		switch SourceType(*o.SourceType) {
		case SourceLive, SourceReplay:
		default:
			return fmt.Errorf("source_type must be %q or %q, got %q",
				SourceLive, SourceReplay, *o.SourceType)
		}
	}
	if o.CameraUDPPort != nil && (*o.CameraUDPPort < 1 || *o.CameraUDPPort > 65535) {
		return fmt.Errorf("camera_udp_port out of range: %d", *o.CameraUDPPort)
	}
	return nil
}

// LoadOverrides loads an Overrides set from a JSON params file. Fields
// omitted from the file stay unset.
func LoadOverrides(path string) (*Overrides, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("params file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat params file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("params file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}

	o := &Overrides{}
	if err := json.Unmarshal(data, o); err != nil {
		return nil, fmt.Errorf("failed to parse params JSON: %w", err)
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params file: %w", err)
	}
	return o, nil
}

// Resolve merges the defaults with the given providers. Providers are
// consulted in order: for each option the first provider that sets it wins;
// options nobody sets keep their default. The data-source selection is then
// disambiguated by resolveSource.
func Resolve(defaults Config, providers ...*Overrides) Config {
	cfg := defaults

	// sourceForcedLive records whether any provider explicitly asked for
	// the live source; a bare replay path must not override that.
	sourceSet := false

	pickString := func(dst *string, get func(*Overrides) *string) {
		for _, p := range providers {
			if p == nil {
				continue
			}
			if v := get(p); v != nil {
				*dst = *v
				return
			}
		}
	}
	pickBool := func(dst *bool, get func(*Overrides) *bool) {
		for _, p := range providers {
			if p == nil {
				continue
			}
			if v := get(p); v != nil {
				*dst = *v
				return
			}
		}
	}
	pickInt := func(dst *int, get func(*Overrides) *int) {
		for _, p := range providers {
			if p == nil {
				continue
			}
			if v := get(p); v != nil {
				*dst = *v
				return
			}
		}
	}

	pickString(&cfg.LocalizationMapFolder, func(o *Overrides) *string { return o.LocalizationMapFolder })
	pickString(&cfg.CameraCalibration, func(o *Overrides) *string { return o.CameraCalibration })
	pickString(&cfg.ImuParameters, func(o *Overrides) *string { return o.ImuParameters })
	pickString(&cfg.EstimatorImuParameters, func(o *Overrides) *string { return o.EstimatorImuParameters })
	pickString(&cfg.SaveMapFolder, func(o *Overrides) *string { return o.SaveMapFolder })
	pickBool(&cfg.OverwriteExistingMap, func(o *Overrides) *bool { return o.OverwriteExistingMap })
	pickBool(&cfg.OptimizeMapOnSave, func(o *Overrides) *bool { return o.OptimizeMapOnSave })
	pickBool(&cfg.SaveMapOnShutdown, func(o *Overrides) *bool { return o.SaveMapOnShutdown })
	pickBool(&cfg.PersistFrameResources, func(o *Overrides) *bool { return o.PersistFrameResources })
	pickString(&cfg.ReplayPath, func(o *Overrides) *string { return o.ReplayPath })
	pickString(&cfg.HTTPListenAddr, func(o *Overrides) *string { return o.HTTPListenAddr })
	pickString(&cfg.GRPCListenAddr, func(o *Overrides) *string { return o.GRPCListenAddr })
	pickInt(&cfg.CameraUDPPort, func(o *Overrides) *int { return o.CameraUDPPort })
	pickString(&cfg.ImuSerialPort, func(o *Overrides) *string { return o.ImuSerialPort })

	for _, p := range providers {
		if p == nil || p.SourceType == nil {
			continue
		}
		cfg.SourceType = SourceType(*p.SourceType)
		sourceSet = true
		break
	}

	return resolveSource(cfg, sourceSet)
}

// resolveSource disambiguates the data-source selection. A supplied replay
// path selects the replay source unless the live source was explicitly
// forced; a replay source with no path to replay falls back to live.
func resolveSource(cfg Config, sourceSet bool) Config {
	explicitLive := sourceSet && cfg.SourceType == SourceLive

	switch {
	case cfg.ReplayPath != "" && !explicitLive:
		cfg.SourceType = SourceReplay
	case cfg.SourceType == SourceReplay && cfg.ReplayPath == "":
		cfg.SourceType = SourceLive
	case cfg.SourceType == SourceLive:
		// A replay path supplied alongside an explicit live selection is
		// ignored.
		cfg.ReplayPath = ""
	}
	return cfg
}
