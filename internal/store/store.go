package store

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/andresmejia3/facesweep/internal/report"
	"github.com/andresmejia3/facesweep/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// Store is the optional run ledger: every `match --record` run and its
// per-image outcomes, with the known face kept as a pgvector column.
type Store struct {
	conn *pgx.Conn
}

// Run is one recorded match run.
type Run struct {
	ID        uuid.UUID
	KnownPath string
	ImagesDir string
	Known     types.Encoding
	Tolerance float64
	Stats     report.Stats
	CreatedAt time.Time
}

// RunMatch is a previous run whose known face is close to a query face.
type RunMatch struct {
	Run      Run
	Distance float64
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the ledger tables and the vector extension if they don't exist.
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS match_runs (
			id UUID PRIMARY KEY,
			known_path TEXT NOT NULL,
			images_dir TEXT NOT NULL,
			known_encoding VECTOR(128) NOT NULL,
			tolerance DOUBLE PRECISION NOT NULL,
			workers INT NOT NULL,
			chunk_size INT NOT NULL,
			strategy TEXT NOT NULL,
			cores INT NOT NULL,
			load_seconds DOUBLE PRECISION NOT NULL,
			scan_seconds DOUBLE PRECISION NOT NULL,
			processing_seconds DOUBLE PRECISION NOT NULL,
			total_seconds DOUBLE PRECISION NOT NULL,
			total_images INT NOT NULL,
			matched INT NOT NULL,
			not_matched INT NOT NULL,
			failed INT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS match_outcomes (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES match_runs(id) ON DELETE CASCADE,
			file TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			faces INT NOT NULL,
			distance DOUBLE PRECISION NOT NULL,
			box_left INT NOT NULL,
			box_top INT NOT NULL,
			box_right INT NOT NULL,
			box_bottom INT NOT NULL,
			elapsed_seconds DOUBLE PRECISION NOT NULL,
			output TEXT NOT NULL DEFAULT '',
			worker_id INT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS match_outcomes_run_id_idx ON match_outcomes (run_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// RecordRun stores a run and all of its outcomes in one transaction and
// returns the new run ID.
func (s *Store) RecordRun(ctx context.Context, run Run, outcomes []types.Outcome) (uuid.UUID, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback(ctx)

	st := run.Stats
	_, err = tx.Exec(ctx, `
		INSERT INTO match_runs (
			id, known_path, images_dir, known_encoding, tolerance,
			workers, chunk_size, strategy, cores,
			load_seconds, scan_seconds, processing_seconds, total_seconds,
			total_images, matched, not_matched, failed
		) VALUES ($1, $2, $3, $4::vector, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, run.ID, run.KnownPath, run.ImagesDir, pgvector.NewVector(run.Known[:]), run.Tolerance,
		st.Plan.Workers, st.Plan.ChunkSize, st.Plan.Strategy, st.Cores,
		st.LoadTime.Seconds(), st.ScanTime.Seconds(), st.ProcessingTime.Seconds(), st.TotalTime.Seconds(),
		st.TotalImages, st.Matched, st.NotMatched, st.Failed)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert run: %w", err)
	}

	rows := make([][]any, len(outcomes))
	for i, o := range outcomes {
		reason := ""
		if o.Reason != nil {
			reason = o.Reason.Error()
		}
		rows[i] = []any{
			run.ID, o.Ref.Name, o.Status.String(), reason, o.Faces, o.Distance,
			o.Box.Min.X, o.Box.Min.Y, o.Box.Max.X, o.Box.Max.Y,
			o.Elapsed.Seconds(), o.Output, o.WorkerID,
		}
	}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"match_outcomes"}, []string{
		"run_id", "file", "status", "reason", "faces", "distance",
		"box_left", "box_top", "box_right", "box_bottom",
		"elapsed_seconds", "output", "worker_id",
	}, pgx.CopyFromRows(rows))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert outcomes: %w", err)
	}

	return run.ID, tx.Commit(ctx)
}

const runColumns = `id, known_path, images_dir, known_encoding, tolerance,
	workers, chunk_size, strategy, cores,
	load_seconds, scan_seconds, processing_seconds, total_seconds,
	total_images, matched, not_matched, failed, created_at`

func scanRun(row pgx.Row, extra ...any) (Run, error) {
	var (
		r                             Run
		vec                           pgvector.Vector
		load, scan, processing, total float64
	)
	dest := []any{
		&r.ID, &r.KnownPath, &r.ImagesDir, &vec, &r.Tolerance,
		&r.Stats.Plan.Workers, &r.Stats.Plan.ChunkSize, &r.Stats.Plan.Strategy, &r.Stats.Cores,
		&load, &scan, &processing, &total,
		&r.Stats.TotalImages, &r.Stats.Matched, &r.Stats.NotMatched, &r.Stats.Failed, &r.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Run{}, err
	}
	copy(r.Known[:], vec.Slice())
	r.Stats.LoadTime = seconds(load)
	r.Stats.ScanTime = seconds(scan)
	r.Stats.ProcessingTime = seconds(processing)
	r.Stats.TotalTime = seconds(total)
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.Query(ctx, `SELECT `+runColumns+` FROM match_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a single run. ok is false when the ID is unknown.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (Run, bool, error) {
	r, err := scanRun(s.conn.QueryRow(ctx, `SELECT `+runColumns+` FROM match_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	return r, true, nil
}

// RunOutcomes returns the stored outcomes of a run ordered by file name.
func (s *Store) RunOutcomes(ctx context.Context, id uuid.UUID) ([]types.Outcome, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT file, status, reason, faces, distance,
			box_left, box_top, box_right, box_bottom,
			elapsed_seconds, output, worker_id
		FROM match_outcomes WHERE run_id = $1 ORDER BY file
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Outcome
	for rows.Next() {
		var (
			o                        types.Outcome
			status, reason           string
			left, top, right, bottom int
			elapsed                  float64
		)
		if err := rows.Scan(&o.Ref.Name, &status, &reason, &o.Faces, &o.Distance,
			&left, &top, &right, &bottom, &elapsed, &o.Output, &o.WorkerID); err != nil {
			return nil, err
		}
		o.Status = types.ParseStatus(status)
		if reason != "" {
			o.Reason = errors.New(reason)
		}
		o.Box = image.Rect(left, top, right, bottom)
		o.Elapsed = seconds(elapsed)
		out = append(out, o)
	}
	return out, rows.Err()
}

// FindRunsForFace returns previous runs whose known face lies within
// tolerance (Euclidean distance) of enc, nearest first.
func (s *Store) FindRunsForFace(ctx context.Context, enc types.Encoding, tolerance float64, limit int) ([]RunMatch, error) {
	if limit <= 0 {
		limit = 20
	}
	vec := pgvector.NewVector(enc[:])
	// <-> is the L2 distance operator in pgvector, the same metric used for matching
	rows, err := s.conn.Query(ctx, `
		SELECT `+runColumns+`, known_encoding <-> $1::vector AS distance
		FROM match_runs
		WHERE known_encoding <-> $1::vector <= $2
		ORDER BY distance ASC, created_at DESC
		LIMIT $3
	`, vec, tolerance, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunMatch
	for rows.Next() {
		var dist float64
		r, err := scanRun(rows, &dist)
		if err != nil {
			return nil, err
		}
		out = append(out, RunMatch{Run: r, Distance: dist})
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS match_outcomes CASCADE;
		DROP TABLE IF EXISTS match_runs CASCADE;
	`)
	return err
}

// NewRun assembles the ledger row for a finished run.
func NewRun(knownPath, imagesDir string, known types.Encoding, tolerance float64, stats report.Stats) Run {
	return Run{
		ID:        uuid.New(),
		KnownPath: knownPath,
		ImagesDir: imagesDir,
		Known:     known,
		Tolerance: tolerance,
		Stats:     stats,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
