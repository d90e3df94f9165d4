package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ghalamif/QuakeFlow/internal/ports"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS dispatches (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	boot_id          TEXT    NOT NULL,
	recorded_at      INTEGER NOT NULL,
	misurator_id     INTEGER NOT NULL,
	value            INTEGER NOT NULL,
	device_timestamp INTEGER NOT NULL,
	signature_hex    TEXT    NOT NULL,
	outcome          TEXT    NOT NULL,
	detail           TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS dispatches_device_ts ON dispatches (device_timestamp);
`

// SQLiteArchive keeps dispatch records in a local database file so an
// operator can inspect what the node reported without the collector.
type SQLiteArchive struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteArchive{db: db}, nil
}

func (s *SQLiteArchive) Name() string { return "sqlite" }

func (s *SQLiteArchive) Record(ctx context.Context, rec ports.ArchiveRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches (boot_id, recorded_at, misurator_id, value, device_timestamp, signature_hex, outcome, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BootID,
		rec.RecordedAt.UnixMilli(),
		rec.Payload.MisuratorID,
		rec.Payload.Value,
		rec.Payload.DeviceTimestamp,
		rec.Payload.SignatureHex,
		rec.Outcome,
		rec.Detail,
	)
	return err
}

// CountByOutcome reports how many records carry each outcome.
func (s *SQLiteArchive) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM dispatches GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

func (s *SQLiteArchive) Close() error {
	return s.db.Close()
}

var _ ports.Archive = (*SQLiteArchive)(nil)
