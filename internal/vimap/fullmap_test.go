package vimap

import (
	"os"
	"path/filepath"
	"testing"
)

// populateTestMap fills a store with a small but geometrically meaningful
// map: two vertices a meter apart, one landmark seen from both with a wide
// baseline and one seen only once.
func populateTestMap(t *testing.T, s *Store) {
	t.Helper()

	if err := s.SetMetadata("run_id", "test-run"); err != nil {
		t.Fatal(err)
	}
	vertices := []Vertex{
		{ID: "v0", TimestampNanos: 100, X: 0, Y: 0, Z: 0},
		{ID: "v1", TimestampNanos: 200, X: 1, Y: 0, Z: 0},
	}
	for _, v := range vertices {
		if err := s.InsertVertex(v); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.UpsertLandmark(Landmark{ID: "lm-good", X: 0.5, Y: 1, Z: 0}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertLandmark(Landmark{ID: "lm-weak", X: 5, Y: 5, Z: 0}); err != nil {
		t.Fatal(err)
	}
	obs := []Observation{
		{LandmarkID: "lm-good", VertexID: "v0", BearingX: 0.5, BearingY: 1, BearingZ: 0},
		{LandmarkID: "lm-good", VertexID: "v1", BearingX: -0.5, BearingY: 1, BearingZ: 0},
		{LandmarkID: "lm-weak", VertexID: "v0", BearingX: 5, BearingY: 5, BearingZ: 0},
	}
	for _, o := range obs {
		if err := s.InsertObservation(o); err != nil {
			t.Fatal(err)
		}
	}
}

func TestStoreCreateAndLoad(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "map")

	s, err := Create(folder)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	populateTestMap(t, s)

	fm, err := s.LoadFullMap()
	if err != nil {
		t.Fatalf("LoadFullMap failed: %v", err)
	}
	if fm.RunID != "test-run" {
		t.Errorf("RunID = %q, want test-run", fm.RunID)
	}
	if len(fm.Vertices) != 2 {
		t.Errorf("got %d vertices, want 2", len(fm.Vertices))
	}
	if len(fm.Landmarks) != 2 {
		t.Errorf("got %d landmarks, want 2", len(fm.Landmarks))
	}
	if len(fm.Observations["lm-good"]) != 2 {
		t.Errorf("got %d observations of lm-good, want 2", len(fm.Observations["lm-good"]))
	}
	// Vertices come back in timestamp order.
	if fm.Vertices[0].ID != "v0" || fm.Vertices[1].ID != "v1" {
		t.Errorf("vertices out of order: %v", fm.Vertices)
	}
}

func TestStoreOpen_MissingDatabase(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Error("expected error opening folder without vi_map.db")
	}
}

func TestStoreVacuumInto(t *testing.T) {
	s, err := Create(":memory:")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	populateTestMap(t, s)

	dest := filepath.Join(t.TempDir(), "copy", FullMapFileName)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		t.Fatal(err)
	}
	if err := s.VacuumInto(dest); err != nil {
		t.Fatalf("VacuumInto failed: %v", err)
	}

	copied, err := Open(filepath.Dir(dest))
	if err != nil {
		t.Fatalf("Open of vacuumed copy failed: %v", err)
	}
	defer copied.Close()

	fm, err := copied.LoadFullMap()
	if err != nil {
		t.Fatalf("LoadFullMap on copy failed: %v", err)
	}
	if len(fm.Vertices) != 2 || len(fm.Landmarks) != 2 {
		t.Errorf("vacuumed copy incomplete: %d vertices, %d landmarks",
			len(fm.Vertices), len(fm.Landmarks))
	}
}

func TestStoreMetadata_AbsentKey(t *testing.T) {
	s, err := Create(":memory:")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	v, err := s.Metadata("nope")
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if v != "" {
		t.Errorf("Metadata(nope) = %q, want empty", v)
	}
}

func TestStoreMigrateIdempotent(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "map")

	s, err := Create(folder)
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	version, dirty, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version == 0 || dirty {
		t.Errorf("SchemaVersion = %d dirty=%v, want applied clean schema", version, dirty)
	}
	s.Close()

	// Reopening through Create runs migrations again, which must no-op.
	s2, err := Create(folder)
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	s2.Close()
}

func TestStoreFrameResources(t *testing.T) {
	s, err := Create(":memory:")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer s.Close()

	if err := s.InsertVertex(Vertex{ID: "v0", TimestampNanos: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertFrameResource("v0", []byte{0xde, 0xad}); err != nil {
		t.Fatalf("InsertFrameResource failed: %v", err)
	}

	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM frame_resources`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("frame_resources count = %d, want 1", count)
	}
}
