package vimap

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// DeriveParams controls which landmarks survive summarization.
type DeriveParams struct {
	// MinObservers is the minimum number of distinct vertices that must
	// have observed a landmark.
	MinObservers int
	// MinViewingAngleRad is the minimum angle between any two observation
	// bearings. Landmarks seen only along near-parallel rays have poorly
	// constrained depth.
	MinViewingAngleRad float64
}

// DefaultDeriveParams returns the summarization thresholds used when no
// overrides are supplied.
func DefaultDeriveParams() DeriveParams {
	return DeriveParams{
		MinObservers:       2,
		MinViewingAngleRad: 5 * math.Pi / 180,
	}
}

// CreateSummaryForWellConstrainedLandmarks derives a summary map from a full
// map, keeping only landmarks whose position is well constrained by their
// observation geometry. A full map in which no landmark qualifies yields an
// error rather than an empty summary.
func CreateSummaryForWellConstrainedLandmarks(fm *FullMap, params DeriveParams) (*SummaryMap, error) {
	if params.MinObservers < 2 {
		params.MinObservers = 2
	}

	sm := &SummaryMap{
		Version:          1,
		RunID:            fm.RunID,
		CreatedUnixNanos: time.Now().UnixNano(),
	}
	for _, lm := range fm.Landmarks {
		if wellConstrained(fm.Observations[lm.ID], params) {
			sm.Landmarks = append(sm.Landmarks, SummaryLandmark{
				ID: lm.ID, X: lm.X, Y: lm.Y, Z: lm.Z,
			})
		}
	}

	if sm.LandmarkCount() == 0 {
		return nil, fmt.Errorf(
			"summarization produced a map with no landmarks (%d candidates, need >=%d observers and >=%.1f deg viewing angle)",
			len(fm.Landmarks), params.MinObservers, params.MinViewingAngleRad*180/math.Pi)
	}
	return sm, nil
}

func wellConstrained(obs []Observation, params DeriveParams) bool {
	observers := make(map[string]bool, len(obs))
	for _, o := range obs {
		observers[o.VertexID] = true
	}
	if len(observers) < params.MinObservers {
		return false
	}

	// Any pair of bearings subtending at least the minimum angle is enough.
	for i := 0; i < len(obs); i++ {
		bi := []float64{obs[i].BearingX, obs[i].BearingY, obs[i].BearingZ}
		ni := floats.Norm(bi, 2)
		if ni == 0 {
			continue
		}
		for j := i + 1; j < len(obs); j++ {
			if obs[j].VertexID == obs[i].VertexID {
				continue
			}
			bj := []float64{obs[j].BearingX, obs[j].BearingY, obs[j].BearingZ}
			nj := floats.Norm(bj, 2)
			if nj == 0 {
				continue
			}
			cos := floats.Dot(bi, bj) / (ni * nj)
			cos = math.Max(-1, math.Min(1, cos))
			if math.Acos(cos) >= params.MinViewingAngleRad {
				return true
			}
		}
	}
	return false
}
