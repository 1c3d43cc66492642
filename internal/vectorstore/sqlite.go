package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteFile is the database file created inside a local storage directory.
const SQLiteFile = "collections.db"

// SQLiteBackend stores collections in a single SQLite database and scores
// them with sqlite-vec's cosine distance.
type SQLiteBackend struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewSQLiteBackend opens (or creates) the database inside dir.
func NewSQLiteBackend(dir string, logger *zap.Logger) (*SQLiteBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	path := filepath.Join(dir, SQLiteFile)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if err := migrateSQLite(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating vector tables: %w", err)
	}

	var version string
	if err := db.QueryRow(`SELECT vec_version()`).Scan(&version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite-vec unavailable: %w", err)
	}
	logger.Info("sqlite backend", zap.String("path", path), zap.String("sqlite_vec", version))
	return &SQLiteBackend{db: db, path: path, logger: logger}, nil
}

func migrateSQLite(db *sql.DB) error {
	const collectionsDDL = `
CREATE TABLE IF NOT EXISTS collections (
	name        TEXT PRIMARY KEY,
	vector_name TEXT NOT NULL,
	dimension   INTEGER NOT NULL,
	distance    TEXT NOT NULL
)`
	if _, err := db.Exec(collectionsDDL); err != nil {
		return fmt.Errorf("creating collections table: %w", err)
	}

	const pointsDDL = `
CREATE TABLE IF NOT EXISTS points (
	collection  TEXT NOT NULL REFERENCES collections(name),
	id          TEXT NOT NULL,
	vector_name TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	payload     TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (collection, id)
)`
	if _, err := db.Exec(pointsDDL); err != nil {
		return fmt.Errorf("creating points table: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Collection(ctx context.Context, name string) (CollectionInfo, bool, error) {
	var vectorName, distance string
	var dim int
	err := s.db.QueryRowContext(ctx,
		`SELECT vector_name, dimension, distance FROM collections WHERE name = ?`, name,
	).Scan(&vectorName, &dim, &distance)
	if errors.Is(err, sql.ErrNoRows) {
		return CollectionInfo{}, false, nil
	}
	if err != nil {
		return CollectionInfo{}, false, fmt.Errorf("reading collection %s: %w", name, err)
	}

	var count uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points WHERE collection = ?`, name).Scan(&count); err != nil {
		return CollectionInfo{}, false, fmt.Errorf("counting points in %s: %w", name, err)
	}
	return CollectionInfo{
		Vectors:  map[string]int{vectorName: dim},
		Points:   count,
		Distance: Distance(distance),
	}, true, nil
}

func (s *SQLiteBackend) CreateCollection(ctx context.Context, name string, schema CollectionSchema) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections(name, vector_name, dimension, distance) VALUES (?, ?, ?, ?)`,
		name, schema.VectorName, schema.Size, string(schema.Distance),
	)
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

// CreatePayloadIndex adds an expression index on the JSON payload path.
func (s *SQLiteBackend) CreatePayloadIndex(ctx context.Context, name string, index FieldIndex) error {
	if !ValidFieldName(index.Field) {
		return fmt.Errorf("invalid index field %q", index.Field)
	}
	idxName := "idx_" + strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, name+"_"+index.Field)
	ddl := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS "%s" ON points(collection, json_extract(payload, '$.%s'))`,
		idxName, index.Field,
	)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating index %s: %w", idxName, err)
	}
	return nil
}

// Upsert inserts or replaces points.
func (s *SQLiteBackend) Upsert(ctx context.Context, name string, points []Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var vectorName string
	var dim int
	err = tx.QueryRowContext(ctx, `SELECT vector_name, dimension FROM collections WHERE name = ?`, name).Scan(&vectorName, &dim)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCollectionNotFound
	}
	if err != nil {
		return fmt.Errorf("reading collection %s: %w", name, err)
	}

	const q = `INSERT INTO points(collection, id, vector_name, embedding, payload) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(collection, id) DO UPDATE SET
	vector_name = excluded.vector_name,
	embedding = excluded.embedding,
	payload = excluded.payload`
	for _, p := range points {
		if p.VectorName != vectorName || len(p.Vector) != dim {
			return fmt.Errorf("point %s does not match collection %s", p.ID, name)
		}
		blob, err := sqlite_vec.SerializeFloat32(p.Vector)
		if err != nil {
			return fmt.Errorf("serializing embedding: %w", err)
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshalling payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, name, p.ID, p.VectorName, blob, string(payload)); err != nil {
			return fmt.Errorf("upserting point %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

// Search scores every matching point by cosine similarity.
func (s *SQLiteBackend) Search(ctx context.Context, name string, q Query) ([]ScoredPoint, error) {
	_, exists, err := s.Collection(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCollectionNotFound
	}

	blob, err := sqlite_vec.SerializeFloat32(q.Vector)
	if err != nil {
		return nil, fmt.Errorf("serializing query vector: %w", err)
	}

	var where strings.Builder
	args := []any{blob, name, q.VectorName}
	where.WriteString(`collection = ? AND vector_name = ?`)
	keys := make([]string, 0, len(q.Filter))
	for k := range q.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !ValidFieldName(k) {
			return nil, fmt.Errorf("invalid filter key %q", k)
		}
		fmt.Fprintf(&where, ` AND json_extract(payload, '$.%s') = ?`, k)
		args = append(args, filterArg(q.Filter[k]))
	}
	args = append(args, q.Limit)

	query := `SELECT id, 1 - vec_distance_cosine(embedding, ?) AS score, payload
FROM points
WHERE ` + where.String() + `
ORDER BY score DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ScoredPoint
	for rows.Next() {
		var r ScoredPoint
		var score float64
		var payload string
		if err := rows.Scan(&r.ID, &score, &payload); err != nil {
			return nil, fmt.Errorf("scanning vector result: %w", err)
		}
		r.Score = float32(score)
		if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
			return nil, fmt.Errorf("unmarshalling payload: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector results: %w", err)
	}
	return results, nil
}

// filterArg converts a filter value to what json_extract yields for it.
func filterArg(v any) any {
	switch val := v.(type) {
	case bool:
		if val {
			return 1
		}
		return 0
	case string, int, int64, float64:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// Close closes the underlying database connection.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
