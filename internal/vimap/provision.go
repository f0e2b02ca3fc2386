package vimap

import (
	"fmt"

	"github.com/banshee-data/vionav/internal/monitoring"
)

// Provision resolves the localization map for a run. An empty folder means
// the run starts without a localization map and nil, nil is returned.
//
// A non-empty folder is tried as a summary map first. If that fails, the
// folder is tried as a full map and summarized down to its well-constrained
// landmarks. Failure of the full-map path is fatal to provisioning.
func Provision(folder string) (*SummaryMap, error) {
	if folder == "" {
		return nil, nil
	}

	sm, err := LoadSummaryFromFolder(folder)
	if err == nil {
		monitoring.Logf("vimap: loaded summary map from %s (%d landmarks)",
			folder, sm.LandmarkCount())
		return sm, nil
	}
	monitoring.Warnf("vimap: could not load summary map from %s (%v), trying full map format", folder, err)

	store, err := Open(folder)
	if err != nil {
		return nil, fmt.Errorf(
			"%s holds neither a summary map nor a full map, provide a valid localization map or leave the map folder empty: %w",
			folder, err)
	}
	defer store.Close()

	fm, err := store.LoadFullMap()
	if err != nil {
		return nil, fmt.Errorf(
			"failed to load full map from %s, provide a valid localization map or leave the map folder empty: %w",
			folder, err)
	}

	sm, err = CreateSummaryForWellConstrainedLandmarks(fm, DefaultDeriveParams())
	if err != nil {
		return nil, fmt.Errorf("failed to summarize full map %s: %w", folder, err)
	}
	monitoring.Logf("vimap: derived summary map from full map %s (%d of %d landmarks kept)",
		folder, sm.LandmarkCount(), len(fm.Landmarks))
	return sm, nil
}
