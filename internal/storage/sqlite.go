// Package storage persists everything the engine needs across restarts:
// capture history, the synced taxonomy snapshot, learned weights, feedback
// events, and the import job queue. Backed by SQLite with embedded
// migrations.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kalambet/triage/internal/snapshot"
	"github.com/kalambet/triage/internal/taxonomy"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database. It implements engine.TaxonomyProvider,
// engine.CaptureProvider, and learning.Persister.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "triage.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Captures ---

// SaveCapture inserts one capture record, assigning an ID when missing.
func (s *Store) SaveCapture(c CaptureRecord) (CaptureRecord, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO captures (id, text, content_type, pillar, area, project, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Text, c.ContentType, c.Pillar, c.Area, c.Project, c.Confidence,
		c.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return CaptureRecord{}, fmt.Errorf("inserting capture: %w", err)
	}
	return c, nil
}

// ListCaptures returns the most recent captures, newest first.
func (s *Store) ListCaptures(limit int) ([]CaptureRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, text, content_type, pillar, area, project, confidence, created_at
		FROM captures ORDER BY created_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CaptureRecord
	for rows.Next() {
		var c CaptureRecord
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Text, &c.ContentType, &c.Pillar, &c.Area, &c.Project, &c.Confidence, &createdAt); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// RecentCaptures implements engine.CaptureProvider: the bounded context
// window in the shape the aggregator consumes.
func (s *Store) RecentCaptures(ctx context.Context, limit int) ([]snapshot.Capture, error) {
	records, err := s.ListCaptures(limit)
	if err != nil {
		return nil, err
	}
	captures := make([]snapshot.Capture, len(records))
	for i, r := range records {
		captures[i] = snapshot.Capture{
			Text:      r.Text,
			Pillar:    r.Pillar,
			Area:      r.Area,
			CreatedAt: r.CreatedAt,
		}
	}
	return captures, nil
}

// --- Taxonomy ---

// ReplaceTaxonomy replaces the stored taxonomy snapshot atomically,
// preserving pillar/area/project declaration order via position columns.
func (s *Store) ReplaceTaxonomy(tax taxonomy.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning taxonomy transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"taxonomy_projects", "taxonomy_areas", "taxonomy_pillars"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for pi, p := range tax.Pillars {
		pid := orNewID(p.ID)
		if _, err := tx.Exec(`INSERT INTO taxonomy_pillars (id, name, position) VALUES (?, ?, ?)`, pid, p.Name, pi); err != nil {
			return fmt.Errorf("inserting pillar %q: %w", p.Name, err)
		}
		for ai, a := range p.Areas {
			aid := orNewID(a.ID)
			if _, err := tx.Exec(`INSERT INTO taxonomy_areas (id, pillar_id, name, position) VALUES (?, ?, ?, ?)`, aid, pid, a.Name, ai); err != nil {
				return fmt.Errorf("inserting area %q: %w", a.Name, err)
			}
			for pri, pr := range a.Projects {
				if _, err := tx.Exec(`INSERT INTO taxonomy_projects (id, area_id, name, active, position) VALUES (?, ?, ?, ?, ?)`,
					orNewID(pr.ID), aid, pr.Name, pr.Active, pri); err != nil {
					return fmt.Errorf("inserting project %q: %w", pr.Name, err)
				}
			}
		}
	}

	return tx.Commit()
}

// Taxonomy implements engine.TaxonomyProvider, reassembling the snapshot in
// stored declaration order.
func (s *Store) Taxonomy(ctx context.Context) (taxonomy.Snapshot, error) {
	var snap taxonomy.Snapshot

	pillarRows, err := s.db.QueryContext(ctx, `SELECT id, name FROM taxonomy_pillars ORDER BY position`)
	if err != nil {
		return snap, fmt.Errorf("loading pillars: %w", err)
	}
	defer pillarRows.Close()

	index := make(map[string]int)
	for pillarRows.Next() {
		var p taxonomy.Pillar
		if err := pillarRows.Scan(&p.ID, &p.Name); err != nil {
			return snap, err
		}
		index[p.ID] = len(snap.Pillars)
		snap.Pillars = append(snap.Pillars, p)
	}
	if err := pillarRows.Err(); err != nil {
		return snap, err
	}

	areaRows, err := s.db.QueryContext(ctx, `SELECT id, pillar_id, name FROM taxonomy_areas ORDER BY pillar_id, position`)
	if err != nil {
		return snap, fmt.Errorf("loading areas: %w", err)
	}
	defer areaRows.Close()

	areaIndex := make(map[string][2]int) // area id -> (pillar idx, area idx)
	for areaRows.Next() {
		var a taxonomy.Area
		var pillarID string
		if err := areaRows.Scan(&a.ID, &pillarID, &a.Name); err != nil {
			return snap, err
		}
		pi, ok := index[pillarID]
		if !ok {
			continue // orphaned row
		}
		areaIndex[a.ID] = [2]int{pi, len(snap.Pillars[pi].Areas)}
		snap.Pillars[pi].Areas = append(snap.Pillars[pi].Areas, a)
	}
	if err := areaRows.Err(); err != nil {
		return snap, err
	}

	projectRows, err := s.db.QueryContext(ctx, `SELECT id, area_id, name, active FROM taxonomy_projects ORDER BY area_id, position`)
	if err != nil {
		return snap, fmt.Errorf("loading projects: %w", err)
	}
	defer projectRows.Close()

	for projectRows.Next() {
		var pr taxonomy.Project
		var areaID string
		if err := projectRows.Scan(&pr.ID, &areaID, &pr.Name, &pr.Active); err != nil {
			return snap, err
		}
		loc, ok := areaIndex[areaID]
		if !ok {
			continue
		}
		area := &snap.Pillars[loc[0]].Areas[loc[1]]
		area.Projects = append(area.Projects, pr)
	}
	return snap, projectRows.Err()
}

// --- Learned weights & feedback (learning.Persister) ---

// LoadLearnedWeights reads the full weights map.
func (s *Store) LoadLearnedWeights() (map[string]map[string]float64, error) {
	rows, err := s.db.Query(`SELECT signature, leaf_key, weight FROM learned_weights`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	weights := make(map[string]map[string]float64)
	for rows.Next() {
		var signature, leafKey string
		var weight float64
		if err := rows.Scan(&signature, &leafKey, &weight); err != nil {
			return nil, err
		}
		if weights[signature] == nil {
			weights[signature] = make(map[string]float64)
		}
		weights[signature][leafKey] = weight
	}
	return weights, rows.Err()
}

// UpsertLearnedWeight writes one (signature, leaf) weight.
func (s *Store) UpsertLearnedWeight(signature, leafKey string, weight float64) error {
	_, err := s.db.Exec(`
		INSERT INTO learned_weights (signature, leaf_key, weight, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(signature, leaf_key) DO UPDATE SET weight = excluded.weight, updated_at = excluded.updated_at`,
		signature, leafKey, weight, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// SaveFeedbackEvent appends one feedback event to the log.
func (s *Store) SaveFeedbackEvent(text, signature, pillar, area, project string, wasCorrect bool, createdAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO feedback_events (id, text, signature, pillar, area, project, was_correct, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), text, signature, pillar, area, project, wasCorrect,
		createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// FeedbackCounts derives the running telemetry counters from the event log.
func (s *Store) FeedbackCounts() (total, correct int64, err error) {
	err = s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(was_correct), 0) FROM feedback_events`,
	).Scan(&total, &correct)
	return total, correct, err
}

// --- Jobs ---

// EnqueueJob inserts a pending job, defaulting max attempts to 3.
func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

// ClaimNextJob atomically claims the oldest runnable pending job of one of
// the given types. Returns nil when the queue is empty.
func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]interface{}, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

// CompleteJob marks a running job completed.
func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failure, rescheduling with exponential backoff until the
// attempt budget is exhausted.
func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

func orNewID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}
