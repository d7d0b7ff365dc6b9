// Package store keeps a history of audit runs and their reports in SQLite.
package store

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"normalmap-audit/internal/audit"
	"normalmap-audit/internal/config"
	"normalmap-audit/internal/report"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_runs (
	run_id      TEXT PRIMARY KEY,
	config_yaml TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_reports (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	image           TEXT NOT NULL,
	report_json     TEXT NOT NULL,
	errors          INTEGER NOT NULL,
	diag_width      INTEGER,
	diag_height     INTEGER,
	diag_post       INTEGER,
	diagnostic_zstd BLOB,
	created_at      TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES audit_runs(run_id)
);

CREATE INDEX IF NOT EXISTS audit_reports_run ON audit_reports(run_id);
`

// ErrNoDiagnostic is returned when a stored report has no diagnostic buffer.
var ErrNoDiagnostic = errors.New("report has no diagnostic")

// Store manages audit history in SQLite.
type Store struct {
	db *sql.DB
}

// Run is one invocation of an auditing command.
type Run struct {
	ID        string
	Config    string
	CreatedAt time.Time
}

// Record is one stored report.
type Record struct {
	ID            int64
	RunID         string
	Report        *report.Report
	HasDiagnostic bool
	CreatedAt     time.Time
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records a new run with the settings it was started with.
func (s *Store) BeginRun(cfg config.Config) (Run, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return Run{}, fmt.Errorf("marshal config: %w", err)
	}
	run := Run{
		ID:        uuid.New().String(),
		Config:    string(data),
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.Exec(
		`INSERT INTO audit_runs (run_id, config_yaml, created_at) VALUES (?, ?, ?)`,
		run.ID, run.Config, run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Run returns a stored run.
func (s *Store) Run(runID string) (Run, error) {
	var run Run
	var created string
	err := s.db.QueryRow(
		`SELECT run_id, config_yaml, created_at FROM audit_runs WHERE run_id = ?`, runID,
	).Scan(&run.ID, &run.Config, &created)
	if err != nil {
		return Run{}, fmt.Errorf("query run %s: %w", runID, err)
	}
	run.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Run{}, fmt.Errorf("parse time: %w", err)
	}
	return run, nil
}

// SaveReport stores rep under runID. diag may be nil.
func (s *Store) SaveReport(runID string, rep *report.Report, diag *audit.Diagnostic) (int64, error) {
	data, err := rep.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("marshal report: %w", err)
	}

	var width, height, post, blob any
	if diag != nil {
		b, err := encodeDiagnostic(diag)
		if err != nil {
			return 0, fmt.Errorf("compress diagnostic: %w", err)
		}
		width, height, blob = diag.Width, diag.Height, b
		post = 0
		if diag.PostCorrection {
			post = 1
		}
	}

	res, err := s.db.Exec(
		`INSERT INTO audit_reports
		 (run_id, image, report_json, errors, diag_width, diag_height, diag_post, diagnostic_zstd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rep.Image(), string(data), len(rep.Errors()),
		width, height, post, blob, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	return res.LastInsertId()
}

// Reports returns the reports of a run in insertion order.
func (s *Store) Reports(runID string) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, report_json, diagnostic_zstd IS NOT NULL, created_at
		 FROM audit_reports WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var data, created string
		if err := rows.Scan(&rec.ID, &rec.RunID, &data, &rec.HasDiagnostic, &created); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		rec.Report, err = report.Parse([]byte(data))
		if err != nil {
			return nil, err
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse time: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FlaggedCount returns how many reports of a run raised at least one flag.
func (s *Store) FlaggedCount(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM audit_reports WHERE run_id = ? AND errors > 0`, runID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count flagged: %w", err)
	}
	return n, nil
}

// LoadDiagnostic decompresses the diagnostic buffer of a stored report.
func (s *Store) LoadDiagnostic(id int64) (*audit.Diagnostic, error) {
	var width, height, post sql.NullInt64
	var blob []byte
	err := s.db.QueryRow(
		`SELECT diag_width, diag_height, diag_post, diagnostic_zstd FROM audit_reports WHERE id = ?`, id,
	).Scan(&width, &height, &post, &blob)
	if err != nil {
		return nil, fmt.Errorf("query diagnostic %d: %w", id, err)
	}
	if blob == nil {
		return nil, ErrNoDiagnostic
	}
	d := audit.NewDiagnostic(int(width.Int64), int(height.Int64), post.Int64 != 0)
	if err := decodeDiagnostic(blob, d.Pix); err != nil {
		return nil, fmt.Errorf("decompress diagnostic %d: %w", id, err)
	}
	return d, nil
}

// encodeDiagnostic packs the channels as little-endian float32 and
// compresses them.
func encodeDiagnostic(d *audit.Diagnostic) ([]byte, error) {
	raw := make([]byte, 4*len(d.Pix))
	for i, v := range d.Pix {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDiagnostic(blob []byte, pix []float32) error {
	dec, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return err
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return err
	}
	if len(raw) != 4*len(pix) {
		return fmt.Errorf("size mismatch: %d bytes for %d values", len(raw), len(pix))
	}
	for i := range pix {
		pix[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return nil
}
