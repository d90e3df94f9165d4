package sink

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/ghalamif/QuakeFlow/internal/ports"
)

// TimescaleArchive writes dispatch records into a TimescaleDB hypertable.
type TimescaleArchive struct {
	db        *sql.DB
	tableName string
}

func NewTimescaleArchive(db *sql.DB, table string) *TimescaleArchive {
	if table == "" {
		table = "dispatches"
	}
	return &TimescaleArchive{db: db, tableName: table}
}

// OpenTimescale opens a lib/pq connection pool for the given DSN.
func OpenTimescale(dsn, table string) (*TimescaleArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open timescale: %w", err)
	}
	return NewTimescaleArchive(db, table), nil
}

func (t *TimescaleArchive) Name() string { return "timescaledb" }

func (t *TimescaleArchive) Record(ctx context.Context, rec ports.ArchiveRecord) error {
	// idempotent on (boot_id, device_timestamp, value, outcome)
	query := "INSERT INTO " + t.tableName +
		" (boot_id, recorded_at, misurator_id, value, device_timestamp, signature_hex, outcome, detail)" +
		" VALUES ($1,$2,$3,$4,$5,$6,$7,$8)" +
		" ON CONFLICT (boot_id, device_timestamp, value, outcome) DO NOTHING"

	_, err := t.db.ExecContext(ctx, query,
		rec.BootID,
		rec.RecordedAt,
		rec.Payload.MisuratorID,
		rec.Payload.Value,
		rec.Payload.DeviceTimestamp,
		rec.Payload.SignatureHex,
		rec.Outcome,
		rec.Detail,
	)
	return err
}

func (t *TimescaleArchive) Close() error {
	return t.db.Close()
}

var _ ports.Archive = (*TimescaleArchive)(nil)
