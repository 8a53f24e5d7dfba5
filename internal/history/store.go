package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500

	// writeTimeout bounds a single insert. Callers of RecordReading and
	// Refresh hold no context.
	writeTimeout = 5 * time.Second
)

// Logger is the logging surface used by Store.
type Logger interface {
	Warn(msg string, args ...any)
}

// Reading is one stored sensor reading.
type Reading struct {
	ID         int64       `json:"id"`
	Accessory  string      `json:"accessory"`
	Kind       sensor.Kind `json:"kind"`
	Value      float64     `json:"value"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// Change is one stored characteristic change.
type Change struct {
	ID             int64           `json:"id"`
	Accessory      string          `json:"accessory"`
	Characteristic string          `json:"characteristic"`
	Value          json.RawMessage `json:"value"`
	ChangedAt      time.Time       `json:"changed_at"`
}

// Store persists readings and changes in SQLite. It implements
// sensor.Recorder and the accessory refresh notifier.
//
// Write failures are logged and dropped: history never blocks or fails
// an accessory.
//
// Thread Safety:
//   - All methods are safe for concurrent use; database/sql pools connections.
type Store struct {
	db     *sql.DB
	logger Logger
	now    func() time.Time
}

// NewStore creates a Store on an open database whose history migration
// has been applied.
//
// Parameters:
//   - db: Open SQLite connection
//   - logger: Receives write failures; may be nil
//
// Returns:
//   - *Store: Store ready for use
func NewStore(db *sql.DB, logger Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

// RecordReading stores a sensor reading. Zero readings are never passed
// in by the monitor.
func (s *Store) RecordReading(accessory string, kind sensor.Kind, value float64) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sensor_readings (accessory, kind, value, recorded_at) VALUES (?, ?, ?, ?)",
		accessory, string(kind), value, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		s.warn("recording sensor reading failed", "accessory", accessory, "kind", string(kind), "error", err)
	}
}

// Refresh stores a characteristic change.
func (s *Store) Refresh(accessory, characteristic string, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		s.warn("encoding state change failed", "accessory", accessory, "characteristic", characteristic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO state_changes (accessory, characteristic, value, changed_at) VALUES (?, ?, ?, ?)",
		accessory, characteristic, string(encoded), s.now().UTC().UnixMilli(),
	)
	if err != nil {
		s.warn("recording state change failed", "accessory", accessory, "characteristic", characteristic, "error", err)
	}
}

// Readings returns the most recent readings of one kind, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - accessory: Accessory name
//   - kind: Reading kind
//   - limit: Maximum rows (default 50, max 500)
//
// Returns:
//   - []Reading: Readings ordered newest first (may be empty)
//   - error: ErrAccessoryRequired or the underlying query error
func (s *Store) Readings(ctx context.Context, accessory string, kind sensor.Kind, limit int) ([]Reading, error) {
	if accessory == "" {
		return nil, ErrAccessoryRequired
	}
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, accessory, kind, value, recorded_at
		 FROM sensor_readings
		 WHERE accessory = ? AND kind = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		accessory, string(kind), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sensor readings: %w", err)
	}
	defer rows.Close()

	readings := make([]Reading, 0, limit)
	for rows.Next() {
		var r Reading
		var kindStr string
		var at int64
		if err := rows.Scan(&r.ID, &r.Accessory, &kindStr, &r.Value, &at); err != nil {
			return nil, fmt.Errorf("scanning sensor reading: %w", err)
		}
		r.Kind = sensor.Kind(kindStr)
		r.RecordedAt = time.UnixMilli(at).UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensor readings: %w", err)
	}
	return readings, nil
}

// Changes returns the most recent characteristic changes of an accessory,
// newest first.
func (s *Store) Changes(ctx context.Context, accessory string, limit int) ([]Change, error) {
	if accessory == "" {
		return nil, ErrAccessoryRequired
	}
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, accessory, characteristic, value, changed_at
		 FROM state_changes
		 WHERE accessory = ?
		 ORDER BY changed_at DESC, id DESC
		 LIMIT ?`,
		accessory, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state changes: %w", err)
	}
	defer rows.Close()

	changes := make([]Change, 0, limit)
	for rows.Next() {
		var c Change
		var value string
		var at int64
		if err := rows.Scan(&c.ID, &c.Accessory, &c.Characteristic, &value, &at); err != nil {
			return nil, fmt.Errorf("scanning state change: %w", err)
		}
		c.Value = json.RawMessage(value)
		c.ChangedAt = time.UnixMilli(at).UTC()
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state changes: %w", err)
	}
	return changes, nil
}

// Prune deletes readings and changes older than olderThan.
//
// Returns:
//   - int64: Total rows deleted across both tables
//   - error: ErrInvalidRetention or the underlying database error
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}
	cutoff := s.now().UTC().Add(-olderThan).UnixMilli()

	var total int64
	for _, q := range []string{
		"DELETE FROM sensor_readings WHERE recorded_at < ?",
		"DELETE FROM state_changes WHERE changed_at < ?",
	} {
		result, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning history: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// RunRetention prunes once, then every interval, until ctx is cancelled.
func (s *Store) RunRetention(ctx context.Context, retention, interval time.Duration) {
	prune := func() {
		if _, err := s.Prune(ctx, retention); err != nil && ctx.Err() == nil {
			s.warn("pruning history failed", "error", err)
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

func (s *Store) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
