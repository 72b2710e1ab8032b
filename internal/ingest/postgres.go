// internal/ingest/postgres.go
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

const SourcePostgres = "postgres"

// notificationListener is the part of *pq.Listener the source needs.
type notificationListener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

// PostgresSource reads from a readings table and is told about new rows through
// LISTEN/NOTIFY. The table is expected to look like
//
//	CREATE TABLE readings (
//	    id          BIGSERIAL PRIMARY KEY,
//	    device_id   TEXT NOT NULL DEFAULT '',
//	    recorded_at TIMESTAMPTZ NOT NULL,
//	    metrics     JSONB NOT NULL
//	);
//
// with an insert trigger calling pg_notify(channel, row_to_json(NEW)::text).
type PostgresSource struct {
	db          *sql.DB
	table       string
	channel     string
	logger      *zap.Logger
	newListener func() (notificationListener, error)
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func NewPostgresSource(db *sql.DB, dsn, table, channel string, logger *zap.Logger) *PostgresSource {
	s := &PostgresSource{
		db:      db,
		table:   table,
		channel: channel,
		logger:  logger,
	}
	s.newListener = func() (notificationListener, error) {
		return pq.NewListener(dsn, time.Second, time.Minute, s.listenerEvent), nil
	}
	return s
}

func (s *PostgresSource) Name() string { return SourcePostgres }

func (s *PostgresSource) listenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		s.logger.Info("Postgres listener connected", zap.String("channel", s.channel))
	case pq.ListenerEventDisconnected:
		s.logger.Warn("Postgres listener disconnected", zap.Error(err))
	case pq.ListenerEventReconnected:
		s.logger.Info("Postgres listener reconnected", zap.String("channel", s.channel))
	case pq.ListenerEventConnectionAttemptFailed:
		s.logger.Warn("Postgres listener connection attempt failed", zap.Error(err))
	}
}

// FetchWindow returns rows recorded in [from, to], oldest first.
func (s *PostgresSource) FetchWindow(ctx context.Context, from, to time.Time) ([]data.Reading, error) {
	if from.After(to) {
		return nil, fmt.Errorf("start time must be before or equal to end time")
	}
	query := fmt.Sprintf(`SELECT device_id, recorded_at, metrics FROM %s
		WHERE recorded_at BETWEEN $1 AND $2
		ORDER BY recorded_at ASC`, pq.QuoteIdentifier(s.table))

	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := []data.Reading{}
	for rows.Next() {
		var (
			r       data.Reading
			metrics []byte
		)
		if err := rows.Scan(&r.DeviceID, &r.Timestamp, &metrics); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal(metrics, &r.Values); err != nil {
			return nil, fmt.Errorf("failed to decode metrics: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		r.Source = SourcePostgres
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return readings, nil
}

// Subscribe listens on the notification channel and decodes each inserted row.
func (s *PostgresSource) Subscribe(ctx context.Context, onInsert func(data.Reading)) (Unsubscribe, error) {
	l, err := s.newListener()
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	if err := l.Listen(s.channel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", s.channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-l.NotificationChannel():
				if !ok {
					return
				}
				if n == nil {
					// sent after a reconnect; rows inserted meanwhile were missed
					s.logger.Warn("Postgres listener lost notifications during reconnect")
					continue
				}
				r, err := decodeNotification(n.Extra)
				if err != nil {
					s.logger.Warn("Dropping undecodable notification", zap.Error(err))
					continue
				}
				onInsert(r)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			if err := l.Close(); err != nil {
				s.logger.Warn("Failed to close Postgres listener", zap.Error(err))
			}
		})
	}, nil
}

type rowPayload struct {
	DeviceID   string                    `json:"device_id"`
	RecordedAt time.Time                 `json:"recorded_at"`
	Metrics    map[data.Quantity]float64 `json:"metrics"`
}

func decodeNotification(payload string) (data.Reading, error) {
	var row rowPayload
	if err := json.Unmarshal([]byte(payload), &row); err != nil {
		return data.Reading{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	r := data.Reading{
		Timestamp: row.RecordedAt.UTC(),
		Source:    SourcePostgres,
		DeviceID:  row.DeviceID,
		Values:    row.Metrics,
	}
	if err := r.Validate(); err != nil {
		return data.Reading{}, err
	}
	return r, nil
}
