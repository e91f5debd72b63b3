package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/onlinereader/internal/paragraph"
)

// FileName is the database file created inside the database directory.
const FileName = "onlinereader.db"

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// timeLayout is a fixed-width RFC 3339 layout so stored timestamps sort as
// strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrAmbiguousRunID is returned when a run ID prefix matches several runs.
var ErrAmbiguousRunID = errors.New("run id prefix matches more than one run")

// ParagraphDB stores fetch runs and the paragraphs they produced.
type ParagraphDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures ParagraphDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables SQLite write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database in dbDir.
func Open(dbDir string, opts Options) (*ParagraphDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	mode := "rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		mode = "rwc"
	} else if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?mode="+mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pdb := &ParagraphDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := pdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return pdb, nil
}

// Path returns the database file path.
func (pdb *ParagraphDB) Path() string {
	return pdb.dbPath
}

// Close closes the database connection.
func (pdb *ParagraphDB) Close() error {
	return pdb.db.Close()
}

func (pdb *ParagraphDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		joiner TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		resource_count INTEGER NOT NULL DEFAULT 0,
		paragraph_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS resources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		name TEXT NOT NULL,
		locator TEXT NOT NULL,
		route TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resources_run ON resources(run_id);

	CREATE TABLE IF NOT EXISTS paragraphs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		key TEXT NOT NULL,
		text TEXT NOT NULL,
		digest TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_paragraphs_run ON paragraphs(run_id);
	CREATE INDEX IF NOT EXISTS idx_paragraphs_digest ON paragraphs(digest);
	`

	_, err := pdb.db.ExecContext(context.Background(), schema)
	return err
}

// Run is one stored fetch run.
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Joiner         string
	Status         string
	Error          string
	ResourceCount  int
	ParagraphCount int
}

// ResourceRecord is a resource fetched during a run.
type ResourceRecord struct {
	Name    string
	Locator string
	Route   string
}

// ParagraphRecord is a stored paragraph.
type ParagraphRecord struct {
	ID     int64
	RunID  string
	Key    string
	Text   string
	Digest string
}

// Digest returns the hex SHA3-256 digest of a paragraph text.
func Digest(text string) string {
	sum := sha3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CreateRun inserts a running run and returns it with a fresh ID.
func (pdb *ParagraphDB) CreateRun(ctx context.Context, joiner string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Joiner:    joiner,
		Status:    StatusRunning,
	}

	_, err := pdb.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, joiner, status) VALUES (?, ?, ?, ?)`,
		run.ID, run.StartedAt.Format(timeLayout), run.Joiner, run.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// AddResource records a fetched resource of run runID.
func (pdb *ParagraphDB) AddResource(ctx context.Context, runID string, r ResourceRecord) error {
	_, err := pdb.db.ExecContext(ctx,
		`INSERT INTO resources (run_id, name, locator, route) VALUES (?, ?, ?, ?)`,
		runID, r.Name, r.Locator, r.Route,
	)
	if err != nil {
		return fmt.Errorf("failed to insert resource: %w", err)
	}
	return nil
}

// AddParagraph stores p for run runID and returns its row ID.
func (pdb *ParagraphDB) AddParagraph(ctx context.Context, runID string, p paragraph.Paragraph) (int64, error) {
	result, err := pdb.db.ExecContext(ctx,
		`INSERT INTO paragraphs (run_id, key, text, digest) VALUES (?, ?, ?, ?)`,
		runID, p.Key, p.Text, Digest(p.Text),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert paragraph: %w", err)
	}
	return result.LastInsertId()
}

// FinishRun marks run runID complete, or failed when runErr is non-nil, and
// stores its counts.
func (pdb *ParagraphDB) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, message := StatusComplete, ""
	if runErr != nil {
		status, message = StatusFailed, runErr.Error()
	}

	query := `
	UPDATE runs SET
		finished_at = ?,
		status = ?,
		error = ?,
		resource_count = (SELECT COUNT(*) FROM resources WHERE run_id = runs.id),
		paragraph_count = (SELECT COUNT(*) FROM paragraphs WHERE run_id = runs.id)
	WHERE id = ?
	`
	result, err := pdb.db.ExecContext(ctx, query,
		time.Now().UTC().Format(timeLayout), status, message, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run: no run with id %s", runID)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, joiner, status, error, resource_count, paragraph_count`

func scanRun(scan func(...any) error) (*Run, error) {
	var run Run
	var started string
	var finished sql.NullString
	if err := scan(&run.ID, &started, &finished, &run.Joiner, &run.Status, &run.Error,
		&run.ResourceCount, &run.ParagraphCount); err != nil {
		return nil, err
	}
	run.StartedAt = parseTimestamp(started)
	if finished.Valid {
		run.FinishedAt = parseTimestamp(finished.String)
	}
	return &run, nil
}

// ListRuns returns all runs, newest first.
func (pdb *ParagraphDB) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := pdb.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns the run whose ID equals or starts with id. It returns nil
// without error when no run matches, and ErrAmbiguousRunID when several do.
func (pdb *ParagraphDB) GetRun(ctx context.Context, id string) (*Run, error) {
	rows, err := pdb.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? || '%' ORDER BY id = ? DESC LIMIT 2`,
		id, id, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(runs) == 0:
		return nil, nil
	case runs[0].ID == id, len(runs) == 1:
		return runs[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRunID, id)
	}
}

// GetResources returns the resources of a run in fetch order.
func (pdb *ParagraphDB) GetResources(ctx context.Context, runID string) ([]ResourceRecord, error) {
	rows, err := pdb.db.QueryContext(ctx,
		`SELECT name, locator, route FROM resources WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get resources: %w", err)
	}
	defer rows.Close()

	var out []ResourceRecord
	for rows.Next() {
		var r ResourceRecord
		if err := rows.Scan(&r.Name, &r.Locator, &r.Route); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetParagraphs returns the paragraphs of a run in emission order.
func (pdb *ParagraphDB) GetParagraphs(ctx context.Context, runID string) ([]ParagraphRecord, error) {
	return pdb.queryParagraphs(ctx,
		`SELECT id, run_id, key, text, digest FROM paragraphs WHERE run_id = ? ORDER BY id`, runID)
}

// FindParagraphs returns every stored paragraph with the given digest,
// oldest first.
func (pdb *ParagraphDB) FindParagraphs(ctx context.Context, digest string) ([]ParagraphRecord, error) {
	return pdb.queryParagraphs(ctx,
		`SELECT id, run_id, key, text, digest FROM paragraphs WHERE digest = ? ORDER BY id`, digest)
}

func (pdb *ParagraphDB) queryParagraphs(ctx context.Context, query string, args ...any) ([]ParagraphRecord, error) {
	rows, err := pdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query paragraphs: %w", err)
	}
	defer rows.Close()

	var out []ParagraphRecord
	for rows.Next() {
		var p ParagraphRecord
		if err := rows.Scan(&p.ID, &p.RunID, &p.Key, &p.Text, &p.Digest); err != nil {
			return nil, fmt.Errorf("failed to scan paragraph: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// timestampFormats lists the layouts SQLite or this package may have
// written, most specific first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses s with the first matching layout, or returns the
// zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
