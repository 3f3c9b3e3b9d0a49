// Package store persists reports, events, and insight documents. The pipeline
// depends only on the Store interface; SQLite is the bundled implementation so
// the service runs without external infrastructure.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"nextsignal/internal/geo"
	"nextsignal/internal/report"
)

// ErrNotFound is returned for point lookups that match nothing.
var ErrNotFound = errors.New("not found")

// AnalyticsRecord is one persisted prediction-analytics document.
type AnalyticsRecord struct {
	ID           string          `json:"id"`
	AnalysisType string          `json:"analysisType"`
	Area         string          `json:"area"`
	TimeWindow   int             `json:"timeWindow"`
	DataPoints   int             `json:"dataPoints"`
	Predictions  json.RawMessage `json:"predictions"`
	GeneratedBy  string          `json:"generatedBy"`
	Timestamp    time.Time       `json:"timestamp"`
}

// SentimentRecord is one scored text stored for mood mapping.
type SentimentRecord struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"sourceId"`
	SourceType string    `json:"sourceType"`
	Score      float64   `json:"score"`
	Magnitude  float64   `json:"magnitude"`
	Location   geo.Point `json:"location"`
	Text       string    `json:"text"`
	SourceTime time.Time `json:"originalTimestamp"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store abstracts the external document store: insert, point lookup,
// range/filter query, and append. Nothing in the pipeline assumes any
// particular database's semantics beyond these operations.
type Store interface {
	InsertReport(ctx context.Context, r report.Report) error
	GetReport(ctx context.Context, id string) (report.Report, error)
	ReportsSince(ctx context.Context, cutoff time.Time, limit int) ([]report.Report, error)
	AppendMediaAnalysis(ctx context.Context, reportID string, entries []report.MediaAnalysis) error
	InsertEvent(ctx context.Context, e report.Event) error
	ListEvents(ctx context.Context, activeOnly bool, limit int) ([]report.Event, error)
	EventsSince(ctx context.Context, cutoff time.Time, limit int) ([]report.Event, error)
	InsertAnalytics(ctx context.Context, rec AnalyticsRecord) error
	InsertSentimentBatch(ctx context.Context, recs []SentimentRecord) error
	Health(ctx context.Context) error
	Close() error
}

// SQLite implements Store over a local SQLite database.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			address TEXT,
			status TEXT NOT NULL,
			media_json TEXT,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			group_key TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			report_count INTEGER NOT NULL,
			report_ids_json TEXT NOT NULL,
			confidence REAL NOT NULL,
			affected_area TEXT,
			recommendations TEXT,
			estimated_impact TEXT,
			urgency TEXT NOT NULL,
			action_required INTEGER NOT NULL,
			is_active INTEGER NOT NULL,
			source TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_events_group_key ON events(group_key);`,
		`CREATE TABLE IF NOT EXISTS analytics (
			id TEXT PRIMARY KEY,
			analysis_type TEXT NOT NULL,
			area TEXT,
			time_window_sec INTEGER NOT NULL,
			data_points INTEGER NOT NULL,
			predictions_json TEXT NOT NULL,
			generated_by TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sentiment (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			source_type TEXT NOT NULL,
			score REAL NOT NULL,
			magnitude REAL NOT NULL,
			latitude REAL,
			longitude REAL,
			text TEXT,
			source_ts TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) InsertReport(ctx context.Context, r report.Report) error {
	if err := r.Validate(); err != nil {
		return err
	}
	mediaJSON, _ := json.Marshal(r.MediaAnalysis)
	_, err := s.db.ExecContext(ctx, `INSERT INTO reports
		(id, category, severity, title, description, latitude, longitude, address, status, media_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Category, r.Severity, r.Title, nullableString(r.Description),
		r.Location.Lat, r.Location.Lng, nullableString(r.Address), r.Status,
		string(mediaJSON), r.Timestamp.UTC())
	return err
}

func (s *SQLite) GetReport(ctx context.Context, id string) (report.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, category, severity, title, description, latitude, longitude, address, status, media_json, created_at
		FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Report{}, ErrNotFound
	}
	return r, err
}

// ReportsSince returns reports created at or after cutoff, most recent first.
func (s *SQLite) ReportsSince(ctx context.Context, cutoff time.Time, limit int) ([]report.Report, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, category, severity, title, description, latitude, longitude, address, status, media_json, created_at
		FROM reports WHERE created_at >= ? ORDER BY created_at DESC LIMIT ?`, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []report.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AppendMediaAnalysis appends entries to the report's mediaAnalysis list.
// Existing entries are never rewritten or removed.
func (s *SQLite) AppendMediaAnalysis(ctx context.Context, reportID string, entries []report.MediaAnalysis) error {
	if len(entries) == 0 {
		return nil
	}
	r, err := s.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	merged := append(r.MediaAnalysis, entries...)
	mediaJSON, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE reports SET media_json = ? WHERE id = ?`, string(mediaJSON), reportID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) InsertEvent(ctx context.Context, e report.Event) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("event id is required")
	}
	idsJSON, _ := json.Marshal(e.ReportIDs)
	_, err := s.db.ExecContext(ctx, `INSERT INTO events
		(id, group_key, title, description, category, severity, latitude, longitude, report_count, report_ids_json, confidence, affected_area, recommendations, estimated_impact, urgency, action_required, is_active, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.GroupKey, e.Title, nullableString(e.Description), e.Category, e.Severity,
		e.Location.Lat, e.Location.Lng, e.ReportCount, string(idsJSON), e.Confidence,
		nullableString(e.AffectedArea), nullableString(e.Recommendations), nullableString(e.EstimatedImpact),
		e.Urgency, boolToInt(e.ActionRequired), boolToInt(e.IsActive), e.Source, e.Timestamp.UTC())
	return err
}

func (s *SQLite) ListEvents(ctx context.Context, activeOnly bool, limit int) ([]report.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, group_key, title, description, category, severity, latitude, longitude, report_count, report_ids_json, confidence, affected_area, recommendations, estimated_impact, urgency, action_required, is_active, source, created_at FROM events`
	args := []interface{}{}
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)
	return s.queryEvents(ctx, query, args...)
}

func (s *SQLite) EventsSince(ctx context.Context, cutoff time.Time, limit int) ([]report.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, group_key, title, description, category, severity, latitude, longitude, report_count, report_ids_json, confidence, affected_area, recommendations, estimated_impact, urgency, action_required, is_active, source, created_at
		FROM events WHERE created_at >= ? ORDER BY created_at DESC LIMIT ?`
	return s.queryEvents(ctx, query, cutoff.UTC(), limit)
}

func (s *SQLite) queryEvents(ctx context.Context, query string, args ...interface{}) ([]report.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []report.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) InsertAnalytics(ctx context.Context, rec AnalyticsRecord) error {
	predictions := rec.Predictions
	if len(predictions) == 0 {
		predictions = json.RawMessage("[]")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO analytics
		(id, analysis_type, area, time_window_sec, data_points, predictions_json, generated_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AnalysisType, nullableString(rec.Area), rec.TimeWindow,
		rec.DataPoints, string(predictions), rec.GeneratedBy, rec.Timestamp.UTC())
	return err
}

func (s *SQLite) InsertSentimentBatch(ctx context.Context, recs []SentimentRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO sentiment
			(id, source_id, source_type, score, magnitude, latitude, longitude, text, source_ts, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.SourceID, rec.SourceType, rec.Score, rec.Magnitude,
			rec.Location.Lat, rec.Location.Lng, nullableString(rec.Text),
			rec.SourceTime.UTC(), rec.Timestamp.UTC()); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Health returns an error if the database is unreachable.
func (s *SQLite) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (report.Report, error) {
	var r report.Report
	var description, address, mediaJSON sql.NullString
	err := row.Scan(&r.ID, &r.Category, &r.Severity, &r.Title, &description,
		&r.Location.Lat, &r.Location.Lng, &address, &r.Status, &mediaJSON, &r.Timestamp)
	if err != nil {
		return r, err
	}
	r.Description = description.String
	r.Address = address.String
	if strings.TrimSpace(mediaJSON.String) != "" {
		_ = json.Unmarshal([]byte(mediaJSON.String), &r.MediaAnalysis)
	}
	return r, nil
}

func scanEvent(row rowScanner) (report.Event, error) {
	var e report.Event
	var description, affectedArea, recommendations, estimatedImpact sql.NullString
	var idsJSON string
	var actionRequired, isActive int
	err := row.Scan(&e.ID, &e.GroupKey, &e.Title, &description, &e.Category, &e.Severity,
		&e.Location.Lat, &e.Location.Lng, &e.ReportCount, &idsJSON, &e.Confidence,
		&affectedArea, &recommendations, &estimatedImpact, &e.Urgency,
		&actionRequired, &isActive, &e.Source, &e.Timestamp)
	if err != nil {
		return e, err
	}
	e.Description = description.String
	e.AffectedArea = affectedArea.String
	e.Recommendations = recommendations.String
	e.EstimatedImpact = estimatedImpact.String
	e.ActionRequired = actionRequired != 0
	e.IsActive = isActive != 0
	_ = json.Unmarshal([]byte(idsJSON), &e.ReportIDs)
	return e, nil
}

func nullableString(value string) interface{} {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
