// Package app owns the lifecycle of a vionav run: initialization, the run
// loop, map saving and orderly shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/banshee-data/vionav/internal/calib"
	"github.com/banshee-data/vionav/internal/config"
	"github.com/banshee-data/vionav/internal/datasource"
	"github.com/banshee-data/vionav/internal/flow"
	"github.com/banshee-data/vionav/internal/fsutil"
	"github.com/banshee-data/vionav/internal/monitoring"
	"github.com/banshee-data/vionav/internal/security"
	"github.com/banshee-data/vionav/internal/vimap"
	"github.com/banshee-data/vionav/internal/vionode"
)

// LifecycleState tracks where the app is in its life.
type LifecycleState int

const (
	StateUninitialized LifecycleState = iota
	StateInitialized
	StateRunning
	StateShuttingDown
	StateTerminated
)

// String names the state for logs and status endpoints.
func (s LifecycleState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ErrNoSaveFolder is returned by SaveMap when no save folder is configured.
var ErrNoSaveFolder = errors.New("no map save folder configured")

// App is the top-level orchestrator.
type App struct {
	cfg  config.Config
	fsys fsutil.FileSystem

	mu    sync.Mutex
	state LifecycleState

	rig      *calib.NCamera
	imu      *calib.ImuParameters
	flow     *flow.Flow
	recorder *vionode.MapRecorder
	node     *vionode.Node

	// savePath is allocated once during Init and stays fixed for the run,
	// so every save trigger writes the same folder.
	savePath string
}

// New creates an app in the uninitialized state.
func New(cfg config.Config) *App {
	return &App{
		cfg:  cfg,
		fsys: fsutil.OSFileSystem{},
	}
}

// Config returns the resolved configuration the app runs with.
func (a *App) Config() config.Config { return a.cfg }

// State returns the current lifecycle state.
func (a *App) State() LifecycleState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Recorder returns the map recorder, nil before Init.
func (a *App) Recorder() *vionode.MapRecorder {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recorder
}

// Init loads calibration, provisions the localization map and wires the
// node. It must be called exactly once, before Run.
func (a *App) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateUninitialized {
		return fmt.Errorf("Init called in state %s", a.state)
	}
	if a.cfg.PersistFrameResources && a.cfg.SaveMapFolder == "" {
		return errors.New("persisting frame resources requires a map save folder")
	}

	rig, err := calib.LoadNCamera(a.cfg.CameraCalibration)
	if err != nil {
		return err
	}
	imu, err := calib.LoadImuParameters(a.cfg.ImuParameters)
	if err != nil {
		return err
	}
	if a.cfg.EstimatorImuParameters != "" {
		sigmas, err := calib.LoadImuSigmas(a.cfg.EstimatorImuParameters)
		if err != nil {
			return err
		}
		imu.Sigmas = sigmas
		monitoring.Logf("app: using estimator-specific IMU sigmas from %s", a.cfg.EstimatorImuParameters)
	}

	localization, err := vimap.Provision(a.cfg.LocalizationMapFolder)
	if err != nil {
		return err
	}

	recorder, err := vionode.NewMapRecorder(imu.GravityMagnitude, a.cfg.PersistFrameResources)
	if err != nil {
		return err
	}

	sources, err := a.buildSources()
	if err != nil {
		recorder.Close()
		return err
	}

	if a.cfg.SaveMapFolder != "" {
		a.savePath = fsutil.AllocateSavePath(a.fsys, a.cfg.SaveMapFolder, a.cfg.OverwriteExistingMap)
	}

	f := flow.New(0, 4096)
	a.rig = rig
	a.imu = imu
	a.flow = f
	a.recorder = recorder
	a.node = vionode.New(f, recorder, localization, sources...)
	a.state = StateInitialized

	monitoring.Logf("app: initialized (run %s, rig %q with %d cameras, source %s)",
		recorder.RunID(), rig.Label, len(rig.Cameras), a.cfg.SourceType)
	return nil
}

func (a *App) buildSources() ([]datasource.Source, error) {
	switch a.cfg.SourceType {
	case config.SourceReplay:
		if a.cfg.ReplayPath == "" {
			return nil, errors.New("replay source requires a replay path")
		}
		return []datasource.Source{&datasource.ReplaySource{
			Path:       a.cfg.ReplayPath,
			CameraPort: a.cfg.CameraUDPPort,
		}}, nil
	case config.SourceLive:
		return []datasource.Source{
			&datasource.CameraUDPSource{Port: a.cfg.CameraUDPPort},
			&datasource.SerialImuSource{PortPath: a.cfg.ImuSerialPort},
		}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", a.cfg.SourceType)
	}
}

// Run starts the node. The context bounds the data sources; cancelling it
// stops them but still requires Shutdown for the drain.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateInitialized {
		return fmt.Errorf("Run called in state %s", a.state)
	}
	a.node.Start(ctx)
	a.state = StateRunning
	monitoring.Logf("app: running")
	return nil
}

// ShouldExit reports whether the node has exhausted its data sources.
func (a *App) ShouldExit() bool {
	a.mu.Lock()
	node := a.node
	a.mu.Unlock()
	if node == nil {
		return false
	}
	return node.ShouldExit()
}

// SaveMap writes the current working map to the save folder allocated at
// Init. The folder is fixed for the run, so a save triggered over RPC and
// the save on shutdown land in the same place. Returns the folder written.
// A consistent snapshot is only guaranteed once Shutdown has returned.
func (a *App) SaveMap() (string, error) {
	return a.SaveMapTo("")
}

// SaveMapTo saves to a requested folder instead of the allocated one. The
// request comes from the debug surface, so it must stay inside the
// configured save folder's parent directory. An empty request uses the
// folder allocated at Init.
func (a *App) SaveMapTo(requested string) (string, error) {
	a.mu.Lock()
	recorder := a.recorder
	folder := a.savePath
	a.mu.Unlock()

	if recorder == nil {
		return "", errors.New("SaveMap called before Init")
	}
	if a.cfg.SaveMapFolder == "" {
		return "", ErrNoSaveFolder
	}

	if requested != "" {
		if err := security.ValidatePathWithinDirectory(requested, filepath.Dir(a.cfg.SaveMapFolder)); err != nil {
			return "", err
		}
		folder = fsutil.AllocateSavePath(a.fsys, requested, a.cfg.OverwriteExistingMap)
	}

	if err := recorder.SaveTo(folder, a.cfg.OptimizeMapOnSave); err != nil {
		return "", err
	}
	monitoring.Logf("app: map saved to %s", folder)
	return folder, nil
}

// Shutdown stops the node and drains the flow. It is idempotent and safe to
// call from any state. The working map store stays open so the map can
// still be saved after the drain; Close releases it.
func (a *App) Shutdown() {
	a.mu.Lock()
	if a.state == StateShuttingDown || a.state == StateTerminated {
		a.mu.Unlock()
		return
	}
	prev := a.state
	a.state = StateShuttingDown
	node, f := a.node, a.flow
	a.mu.Unlock()

	monitoring.Logf("app: shutting down (from %s)", prev)

	// Stop producers first so the queue stops growing, then drain what is
	// already in flight before tearing anything down.
	if node != nil {
		node.Shutdown()
	}
	if f != nil {
		f.Shutdown()
		f.WaitUntilIdle()
		f.Close()
	}

	a.mu.Lock()
	a.state = StateTerminated
	a.mu.Unlock()
	monitoring.Logf("app: terminated")
}

// Close shuts the app down if that has not happened yet and releases the
// working map store. No saves are possible afterwards.
func (a *App) Close() {
	a.Shutdown()

	a.mu.Lock()
	recorder := a.recorder
	a.recorder = nil
	a.mu.Unlock()

	if recorder != nil {
		recorder.Close()
	}
}
