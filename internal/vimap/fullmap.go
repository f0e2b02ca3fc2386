package vimap

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FullMapFileName is the on-disk name of the full map database inside its
// folder.
const FullMapFileName = "vi_map.db"

// Vertex is one pose of the trajectory.
type Vertex struct {
	ID             string
	TimestampNanos int64
	X, Y, Z        float64
}

// Landmark is a triangulated 3D point in the full map.
type Landmark struct {
	ID      string
	X, Y, Z float64
}

// Observation records that a landmark was seen from a vertex.
type Observation struct {
	LandmarkID string
	VertexID   string
	// Bearing is the unit-ish ray from the observing camera to the
	// landmark, in the world frame.
	BearingX, BearingY, BearingZ float64
}

// FullMap is the in-memory view of a full map database.
type FullMap struct {
	RunID        string
	Vertices     []Vertex
	Landmarks    []Landmark
	Observations map[string][]Observation // keyed by landmark ID
}

// Store wraps the SQLite database backing a full map.
type Store struct {
	db   *sql.DB
	path string
}

// Create opens (creating if necessary) a full map database in the given
// folder and brings the schema up to date. Pass ":memory:" as the folder to
// get an unpersisted working store.
func Create(folder string) (*Store, error) {
	path := ":memory:"
	if folder != ":memory:" {
		if err := os.MkdirAll(folder, 0755); err != nil {
			return nil, fmt.Errorf("failed to create map folder: %w", err)
		}
		path = filepath.Join(folder, FullMapFileName)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open map database: %w", err)
	}
	// The in-memory database lives only as long as its single connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing full map database in the given folder. A folder
// without a vi_map.db is an error.
func Open(folder string) (*Store, error) {
	path := filepath.Join(folder, FullMapFileName)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no full map database at %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open map database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &Store{db: db, path: path}, nil
}

// DB exposes the underlying database handle for admin tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path ("" for in-memory stores).
func (s *Store) Path() string {
	if s.path == ":memory:" {
		return ""
	}
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SetMetadata stores a metadata key/value pair.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO map_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Metadata returns a metadata value, or "" if the key is absent.
func (s *Store) Metadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM map_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// InsertVertex appends a trajectory vertex.
func (s *Store) InsertVertex(v Vertex) error {
	_, err := s.db.Exec(
		`INSERT INTO vertices (vertex_id, ts_unix_nanos, x, y, z) VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.TimestampNanos, v.X, v.Y, v.Z)
	return err
}

// UpsertLandmark inserts or repositions a landmark.
func (s *Store) UpsertLandmark(l Landmark) error {
	_, err := s.db.Exec(
		`INSERT INTO landmarks (landmark_id, x, y, z) VALUES (?, ?, ?, ?)
		 ON CONFLICT(landmark_id) DO UPDATE SET x = excluded.x, y = excluded.y, z = excluded.z`,
		l.ID, l.X, l.Y, l.Z)
	return err
}

// InsertObservation records a landmark sighting from a vertex.
func (s *Store) InsertObservation(o Observation) error {
	_, err := s.db.Exec(
		`INSERT INTO observations (landmark_id, vertex_id, bearing_x, bearing_y, bearing_z)
		 VALUES (?, ?, ?, ?, ?)`,
		o.LandmarkID, o.VertexID, o.BearingX, o.BearingY, o.BearingZ)
	return err
}

// InsertFrameResource stores a raw frame payload alongside the map.
func (s *Store) InsertFrameResource(vertexID string, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO frame_resources (vertex_id, payload) VALUES (?, ?)`,
		vertexID, payload)
	return err
}

// VacuumInto writes a compacted copy of the database to the given path.
func (s *Store) VacuumInto(path string) error {
	if _, err := s.db.Exec(`VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("failed to vacuum map database into %s: %w", path, err)
	}
	return nil
}

// LoadFullMap reads the whole map into memory.
func (s *Store) LoadFullMap() (*FullMap, error) {
	fm := &FullMap{Observations: make(map[string][]Observation)}

	runID, err := s.Metadata("run_id")
	if err != nil {
		return nil, fmt.Errorf("failed to read map metadata: %w", err)
	}
	fm.RunID = runID

	rows, err := s.db.Query(`SELECT vertex_id, ts_unix_nanos, x, y, z FROM vertices ORDER BY ts_unix_nanos`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vertices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v Vertex
		if err := rows.Scan(&v.ID, &v.TimestampNanos, &v.X, &v.Y, &v.Z); err != nil {
			return nil, err
		}
		fm.Vertices = append(fm.Vertices, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lrows, err := s.db.Query(`SELECT landmark_id, x, y, z FROM landmarks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query landmarks: %w", err)
	}
	defer lrows.Close()
	for lrows.Next() {
		var l Landmark
		if err := lrows.Scan(&l.ID, &l.X, &l.Y, &l.Z); err != nil {
			return nil, err
		}
		fm.Landmarks = append(fm.Landmarks, l)
	}
	if err := lrows.Err(); err != nil {
		return nil, err
	}

	orows, err := s.db.Query(
		`SELECT landmark_id, vertex_id, bearing_x, bearing_y, bearing_z FROM observations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer orows.Close()
	for orows.Next() {
		var o Observation
		if err := orows.Scan(&o.LandmarkID, &o.VertexID, &o.BearingX, &o.BearingY, &o.BearingZ); err != nil {
			return nil, err
		}
		fm.Observations[o.LandmarkID] = append(fm.Observations[o.LandmarkID], o)
	}
	if err := orows.Err(); err != nil {
		return nil, err
	}

	return fm, nil
}
