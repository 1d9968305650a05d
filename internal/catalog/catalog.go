package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const defaultSearchLimit = 20

// Segment is one transcript span attributed to an episode.
type Segment struct {
	Series   string
	UnitID   string
	Seq      int
	StartSec float64
	EndSec   float64
	Text     string
}

// Hit is a single search result. Lower Rank means a better match, so
// results arrive best first.
type Hit struct {
	Segment
	Rank float64
}

// Store is the transcript search catalog backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the catalog database at path, applying pragmas and
// creating the schema on first use.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("catalog path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertSegments replaces every indexed segment for the given unit with the
// provided set, so reindexing a unit after drift or a forced rerun never
// duplicates rows.
func (s *Store) UpsertSegments(ctx context.Context, series, unitID string, segments []Segment) error {
	if strings.TrimSpace(series) == "" {
		return errors.New("series is required")
	}
	if strings.TrimSpace(unitID) == "" {
		return errors.New("unit id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM segments WHERE series = ? AND unit_id = ?", series, unitID); err != nil {
		return fmt.Errorf("clear unit segments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO segments (series, unit_id, seq, start_sec, end_sec, text) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare segment insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, segment := range segments {
		if _, err := stmt.ExecContext(ctx, series, unitID, segment.Seq, segment.StartSec, segment.EndSec, segment.Text); err != nil {
			return fmt.Errorf("insert segment %d: %w", segment.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit segments: %w", err)
	}
	return nil
}

// Search runs a full-text query over one series' transcript segments and
// returns up to limit hits, best match first.
func (s *Store) Search(ctx context.Context, series, query string, limit int) ([]Hit, error) {
	match := matchExpression(query)
	if match == "" {
		return nil, errors.New("empty search query")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT s.series, s.unit_id, s.seq, s.start_sec, s.end_sec, s.text, segments_fts.rank
        FROM segments_fts
        JOIN segments s ON s.id = segments_fts.rowid
        WHERE segments_fts MATCH ? AND s.series = ?
        ORDER BY segments_fts.rank
        LIMIT ?`,
		match, series, limit)
	if err != nil {
		return nil, fmt.Errorf("search segments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		if err := rows.Scan(&hit.Series, &hit.UnitID, &hit.Seq, &hit.StartSec, &hit.EndSec, &hit.Text, &hit.Rank); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return hits, nil
}

// SegmentCount reports how many segments are indexed for the series.
func (s *Store) SegmentCount(ctx context.Context, series string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM segments WHERE series = ?", series).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count segments: %w", err)
	}
	return count, nil
}

// matchExpression quotes each whitespace-separated term so user input never
// reaches the FTS5 parser as query syntax. Terms are implicitly ANDed.
func matchExpression(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, field := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(field, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
