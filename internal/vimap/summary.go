package vimap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SummaryFileName is the on-disk name of the summary map inside its folder.
const SummaryFileName = "localization_summary.json"

// SummaryLandmark is a single landmark position in the summary map.
type SummaryLandmark struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
}

// SummaryMap is the lightweight, landmark-position-indexed localization map.
// Once provisioned it is read-only for the rest of the run.
type SummaryMap struct {
	Version          int               `json:"version"`
	RunID            string            `json:"run_id,omitempty"`
	CreatedUnixNanos int64             `json:"created_unix_nanos,omitempty"`
	Landmarks        []SummaryLandmark `json:"landmarks"`
}

// LandmarkCount returns the number of landmark positions in the map.
func (m *SummaryMap) LandmarkCount() int {
	return len(m.Landmarks)
}

// LoadSummaryFromFolder loads a summary map from the given folder. A folder
// without a readable, non-empty summary file is a load failure; callers fall
// back to the full-map format on error.
func LoadSummaryFromFolder(folder string) (*SummaryMap, error) {
	path := filepath.Join(folder, SummaryFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary map: %w", err)
	}

	m := &SummaryMap{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse summary map %s: %w", path, err)
	}
	if m.LandmarkCount() == 0 {
		return nil, fmt.Errorf("summary map %s has no landmarks", path)
	}
	return m, nil
}

// SaveToFolder writes the summary map into the given folder, creating it if
// needed.
func (m *SummaryMap) SaveToFolder(folder string) error {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return fmt.Errorf("failed to create summary map folder: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary map: %w", err)
	}

	path := filepath.Join(folder, SummaryFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary map: %w", err)
	}
	return nil
}
