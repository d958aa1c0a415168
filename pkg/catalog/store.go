// Package catalog persists Dynamic World scenes and processing runs in SQLite.
package catalog

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/core"
	xlog "github.com/chris010970/dynamicworld/pkg/log"
	"github.com/chris010970/dynamicworld/pkg/telemetry"
)

// Store provides SQLite persistence for scenes and runs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog at path and runs migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scenes (
		id TEXT PRIMARY KEY,
		time_start INTEGER NOT NULL,
		time_end INTEGER NOT NULL,
		min_lon REAL NOT NULL,
		min_lat REAL NOT NULL,
		max_lon REAL NOT NULL,
		max_lat REAL NOT NULL,
		scale REAL NOT NULL,
		height INTEGER NOT NULL,
		width INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bands (
		scene_id TEXT NOT NULL REFERENCES scenes(id) ON DELETE CASCADE,
		ord INTEGER NOT NULL,
		name TEXT NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (scene_id, name)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		params TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scenes_time ON scenes(time_start);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or replaces a scene with all of its bands.
func (s *Store) Put(ctx context.Context, im *collection.Image) error {
	rows, cols := im.Shape()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE id = ?`, im.ID); err != nil {
		return fmt.Errorf("replace scene %s: %w", im.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO scenes (id, time_start, time_end, min_lon, min_lat, max_lon, max_lat, scale, height, width)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		im.ID, im.TimeStart.UnixMilli(), im.TimeEnd.UnixMilli(),
		im.Bounds.Min.X(), im.Bounds.Min.Y(), im.Bounds.Max.X(), im.Bounds.Max.Y(),
		im.Scale, rows, cols)
	if err != nil {
		return fmt.Errorf("insert scene %s: %w", im.ID, err)
	}

	for i, name := range im.BandNames() {
		g, _ := im.Band(name)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bands (scene_id, ord, name, data) VALUES (?, ?, ?, ?)`,
			im.ID, i, name, encodeGrid(g)); err != nil {
			return fmt.Errorf("insert band %s/%s: %w", im.ID, name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	telemetry.ScenesImported.Inc()
	xlog.FromContext(ctx, "catalog").Debug().Str(xlog.FieldSceneID, im.ID).Msg("stored scene")
	return nil
}

// Count returns the number of stored scenes.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scenes`).Scan(&n)
	return n, err
}

// Scenes returns the scenes intersecting bound and acquired in [start, end), ordered by time.
func (s *Store) Scenes(ctx context.Context, bound orb.Bound, start, end time.Time) ([]*collection.Image, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, time_start, time_end, min_lon, min_lat, max_lon, max_lat, scale, height, width
	FROM scenes
	WHERE time_start >= ? AND time_start < ?
	  AND max_lon >= ? AND min_lon <= ? AND max_lat >= ? AND min_lat <= ?
	ORDER BY time_start, id`,
		start.UnixMilli(), end.UnixMilli(),
		bound.Min.X(), bound.Max.X(), bound.Min.Y(), bound.Max.Y())
	if err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}

	type shape struct{ r, c int }
	var images []*collection.Image
	var shapes []shape
	for rows.Next() {
		var (
			id                     string
			ts, te                 int64
			minX, minY, maxX, maxY float64
			scale                  float64
			r, c                   int
		)
		if err := rows.Scan(&id, &ts, &te, &minX, &minY, &maxX, &maxY, &scale, &r, &c); err != nil {
			_ = rows.Close()
			return nil, err
		}
		b := orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
		im := collection.NewImage(id, time.UnixMilli(ts).UTC(), b, scale)
		im.TimeEnd = time.UnixMilli(te).UTC()
		images = append(images, im)
		shapes = append(shapes, shape{r, c})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i, im := range images {
		if err := s.loadBands(ctx, im, shapes[i].r, shapes[i].c); err != nil {
			return nil, err
		}
	}
	telemetry.ScenesLoaded.Add(float64(len(images)))
	return images, nil
}

func (s *Store) loadBands(ctx context.Context, im *collection.Image, r, c int) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, data FROM bands WHERE scene_id = ? ORDER BY ord`, im.ID)
	if err != nil {
		return fmt.Errorf("query bands of %s: %w", im.ID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		var blob []byte
		if err := rows.Scan(&name, &blob); err != nil {
			return err
		}
		g, err := decodeGrid(blob, r, c)
		if err != nil {
			return fmt.Errorf("band %s/%s: %w", im.ID, name, err)
		}
		if err := im.AddBand(name, g); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Run records one processing invocation.
type Run struct {
	ID        string
	Kind      string
	Params    map[string]any
	CreatedAt time.Time
}

// RecordRun stores a run and returns its generated ID.
func (s *Store) RecordRun(ctx context.Context, kind string, params map[string]any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode run params: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, params, created_at) VALUES (?, ?, ?, ?)`,
		id, kind, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id, nil
}

// Runs lists recorded runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, params, created_at FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		var params, created string
		if err := rows.Scan(&r.ID, &r.Kind, &params, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, fmt.Errorf("decode params of run %s: %w", r.ID, err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// encodeGrid packs a band as little-endian float32 with NaN for masked pixels.
func encodeGrid(g *core.Grid) []byte {
	buf := make([]byte, 4*len(g.Data))
	for k, v := range g.Data {
		f := float32(v)
		if !g.Valid[k] {
			f = float32(math.NaN())
		}
		binary.LittleEndian.PutUint32(buf[4*k:], math.Float32bits(f))
	}
	return buf
}

func decodeGrid(buf []byte, r, c int) (*core.Grid, error) {
	if len(buf) != 4*r*c {
		return nil, fmt.Errorf("blob holds %d bytes, want %d", len(buf), 4*r*c)
	}
	g := core.NewGrid(r, c)
	for k := range g.Data {
		f := math.Float32frombits(binary.LittleEndian.Uint32(buf[4*k:]))
		if math.IsNaN(float64(f)) {
			g.Valid[k] = false
			continue
		}
		g.Data[k] = float64(f)
	}
	return g, nil
}
