package vionode

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/vionav/internal/datasource"
	"github.com/banshee-data/vionav/internal/monitoring"
	"github.com/banshee-data/vionav/internal/vimap"
)

// defaultLandmarkDepth positions untriangulated features along their bearing.
const defaultLandmarkDepth = 5.0

// Estimator consumes sensor data and maintains the running state estimate.
type Estimator interface {
	ProcessImu(sample *datasource.ImuSample)
	ProcessFrame(frame *datasource.CameraFrame)
}

// Pose is the current position estimate in the world frame.
type Pose struct {
	X, Y, Z float64
}

// MapRecorder is the default estimator. It integrates IMU samples into a
// coarse pose, records one map vertex per camera frame and turns the front
// end's feature tracks into landmarks and observations in a working map
// store.
type MapRecorder struct {
	mu sync.Mutex

	runID string
	store *vimap.Store

	persistFrameResources bool
	gravity               float64

	pose         Pose
	velocity     [3]float64
	lastImuNanos int64
	vertexSeq    int

	vertices int
	frames   int
	samples  int
}

// NewMapRecorder creates a recorder writing into an in-memory working map.
func NewMapRecorder(gravityMagnitude float64, persistFrameResources bool) (*MapRecorder, error) {
	store, err := vimap.Create(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create working map: %w", err)
	}

	r := &MapRecorder{
		runID:                 uuid.NewString(),
		store:                 store,
		persistFrameResources: persistFrameResources,
		gravity:               gravityMagnitude,
	}
	if r.gravity == 0 {
		r.gravity = 9.81
	}
	if err := store.SetMetadata("run_id", r.runID); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to stamp working map: %w", err)
	}
	return r, nil
}

// RunID returns the unique identifier of this mapping run.
func (r *MapRecorder) RunID() string { return r.runID }

// ProcessImu integrates one IMU sample into the pose estimate. Gravity is
// assumed aligned with the body z axis; this is a coarse strapdown
// integration, not a full attitude filter.
func (r *MapRecorder) ProcessImu(sample *datasource.ImuSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples++
	if r.lastImuNanos == 0 {
		r.lastImuNanos = sample.TimestampNanos
		return
	}
	dt := float64(sample.TimestampNanos-r.lastImuNanos) / 1e9
	r.lastImuNanos = sample.TimestampNanos
	if dt <= 0 || dt > 1 {
		// Out-of-order or gapped samples corrupt the integration.
		return
	}

	accel := [3]float64{sample.AccelX, sample.AccelY, sample.AccelZ - r.gravity}
	for i := 0; i < 3; i++ {
		r.velocity[i] += accel[i] * dt
	}
	r.pose.X += r.velocity[0] * dt
	r.pose.Y += r.velocity[1] * dt
	r.pose.Z += r.velocity[2] * dt
}

// ProcessFrame records a vertex at the current pose and folds the frame's
// feature tracks into the working map.
func (r *MapRecorder) ProcessFrame(frame *datasource.CameraFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames++
	vertexID := fmt.Sprintf("%s/%06d", r.runID, r.vertexSeq)
	r.vertexSeq++

	if err := r.store.InsertVertex(vimap.Vertex{
		ID:             vertexID,
		TimestampNanos: frame.TimestampNanos,
		X:              r.pose.X,
		Y:              r.pose.Y,
		Z:              r.pose.Z,
	}); err != nil {
		monitoring.Warnf("recorder: failed to insert vertex: %v", err)
		return
	}
	r.vertices++

	for _, track := range frame.Tracks {
		bearing := []float64{track.BearingX, track.BearingY, track.BearingZ}
		norm := floats.Norm(bearing, 2)
		if norm == 0 {
			continue
		}
		depth := track.Depth
		if depth <= 0 {
			depth = defaultLandmarkDepth
		}

		if err := r.store.UpsertLandmark(vimap.Landmark{
			ID: track.ID,
			X:  r.pose.X + bearing[0]/norm*depth,
			Y:  r.pose.Y + bearing[1]/norm*depth,
			Z:  r.pose.Z + bearing[2]/norm*depth,
		}); err != nil {
			monitoring.Warnf("recorder: failed to upsert landmark %s: %v", track.ID, err)
			continue
		}
		if err := r.store.InsertObservation(vimap.Observation{
			LandmarkID: track.ID,
			VertexID:   vertexID,
			BearingX:   bearing[0],
			BearingY:   bearing[1],
			BearingZ:   bearing[2],
		}); err != nil {
			monitoring.Warnf("recorder: failed to insert observation: %v", err)
		}
	}

	if r.persistFrameResources && len(frame.Data) > 0 {
		if err := r.store.InsertFrameResource(vertexID, frame.Data); err != nil {
			monitoring.Warnf("recorder: failed to persist frame resource: %v", err)
		}
	}
}

// Stats reports counters for status endpoints.
func (r *MapRecorder) Stats() (vertices, frames, imuSamples int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vertices, r.frames, r.samples
}

// Store exposes the working map store for admin tooling.
func (r *MapRecorder) Store() *vimap.Store { return r.store }

// SaveTo writes the working map into the given folder. With optimize set, a
// summary map for the well-constrained landmarks and a trajectory plot are
// written alongside the full map.
func (r *MapRecorder) SaveTo(folder string, optimize bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vertices == 0 {
		return fmt.Errorf("working map is empty, nothing to save")
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		return fmt.Errorf("failed to create save folder: %w", err)
	}

	// VACUUM INTO refuses an existing destination file. Path allocation
	// already decided whether this folder may be clobbered, so replace any
	// outputs from an earlier save of this run.
	dbPath := filepath.Join(folder, vimap.FullMapFileName)
	stale := []string{
		dbPath,
		filepath.Join(folder, vimap.SummaryFileName),
		filepath.Join(folder, vimap.TrajectoryPlotFileName),
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear previous map output %s: %w", path, err)
		}
	}
	if err := r.store.VacuumInto(dbPath); err != nil {
		return err
	}
	monitoring.Logf("recorder: saved full map to %s (%d vertices)", dbPath, r.vertices)

	if !optimize {
		return nil
	}

	fm, err := r.store.LoadFullMap()
	if err != nil {
		return fmt.Errorf("failed to reload working map for optimization: %w", err)
	}
	sm, err := vimap.CreateSummaryForWellConstrainedLandmarks(fm, vimap.DefaultDeriveParams())
	if err != nil {
		return err
	}
	if err := sm.SaveToFolder(folder); err != nil {
		return err
	}
	if err := vimap.WriteTrajectoryPlot(fm, folder); err != nil {
		monitoring.Warnf("recorder: failed to write trajectory plot: %v", err)
	}
	monitoring.Logf("recorder: saved summary map to %s (%d landmarks)", folder, sm.LandmarkCount())
	return nil
}

// Close releases the working map store.
func (r *MapRecorder) Close() error {
	return r.store.Close()
}
