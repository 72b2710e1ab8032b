// internal/storage/archive.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

// Archive persists every ingested reading to SQLite so history windows can be
// served when the live backend has no history of its own.
type Archive struct {
	conn *sql.DB
}

// NewArchive opens the SQLite file at path and runs migrations.
func NewArchive(path string) (*Archive, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		// every pooled connection would otherwise get its own empty database
		conn.SetMaxOpenConns(1)
	}

	a := &Archive{conn: conn}
	if err := a.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate archive: %w", err)
	}
	return a, nil
}

func (a *Archive) Close() error {
	return a.conn.Close()
}

func (a *Archive) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		metrics TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_timestamp ON readings(timestamp);
	`
	if _, err := a.conn.Exec(query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Insert stores one reading.
func (a *Archive) Insert(ctx context.Context, r data.Reading) error {
	metrics, err := json.Marshal(r.Values)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	_, err = a.conn.ExecContext(ctx,
		`INSERT INTO readings (device_id, source, timestamp, metrics) VALUES (?, ?, ?, ?)`,
		r.DeviceID, r.Source, r.Timestamp.UnixMilli(), string(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// FetchWindow returns the readings in the closed interval [from, to], ascending.
func (a *Archive) FetchWindow(ctx context.Context, from, to time.Time) ([]data.Reading, error) {
	if from.After(to) {
		return nil, fmt.Errorf("start time must be before or equal to end time")
	}

	rows, err := a.conn.QueryContext(ctx, `
		SELECT device_id, source, timestamp, metrics
		FROM readings
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, id ASC`,
		from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	readings := []data.Reading{}
	for rows.Next() {
		var (
			r       data.Reading
			millis  int64
			metrics string
		)
		if err := rows.Scan(&r.DeviceID, &r.Source, &millis, &metrics); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(metrics), &r.Values); err != nil {
			return nil, fmt.Errorf("failed to decode metrics: %w", err)
		}
		r.Timestamp = time.UnixMilli(millis).UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return readings, nil
}
