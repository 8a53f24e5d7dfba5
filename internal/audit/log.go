package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request sources.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// ErrInvalidSource is returned for a source other than SourceAPI or
// SourceMQTT.
var ErrInvalidSource = errors.New("audit: invalid source")

// Entry is one change request.
type Entry struct {
	ID             string          `json:"id"`
	Accessory      string          `json:"accessory"`
	Characteristic string          `json:"characteristic"`
	Value          json.RawMessage `json:"value,omitempty"`
	Source         string          `json:"source"`
	Subject        string          `json:"subject,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Filter selects entries for List. Zero fields match everything.
type Filter struct {
	Accessory string
	Source    string
	Limit     int // default 50, max 200
	Offset    int
}

// Page is one page of List results, newest first.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Log stores entries in SQLite.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Log struct {
	db  *sql.DB
	now func() time.Time
}

// NewLog creates a Log on an open, migrated database.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db, now: time.Now}
}

// Record stores a change request. The value is JSON encoded; an
// unencodable value is stored as NULL. ID and CreatedAt are filled in when
// empty.
//
// Parameters:
//   - ctx: Context for the insert
//   - accessory, characteristic: Target of the request
//   - value: Requested value
//   - source: SourceAPI or SourceMQTT
//   - subject: Authenticated caller, may be empty
//   - result: Error returned by the accessory, nil when accepted
//
// Returns:
//   - *Entry: The stored entry
//   - error: ErrInvalidSource or a database error
func (l *Log) Record(ctx context.Context, accessory, characteristic string, value any, source, subject string, result error) (*Entry, error) {
	if source != SourceAPI && source != SourceMQTT {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}

	e := &Entry{
		ID:             uuid.NewString(),
		Accessory:      accessory,
		Characteristic: characteristic,
		Source:         source,
		Subject:        subject,
		CreatedAt:      l.now().UTC().Truncate(time.Millisecond),
	}
	if raw, err := json.Marshal(value); err == nil {
		e.Value = raw
	}
	if result != nil {
		e.Error = result.Error()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, accessory, characteristic, value, source, subject, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Accessory, e.Characteristic,
		nullable(string(e.Value)), e.Source, nullable(e.Subject), nullable(e.Error),
		e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting audit entry: %w", err)
	}
	return e, nil
}

// List returns entries matching filter, newest first.
func (l *Log) List(ctx context.Context, filter Filter) (*Page, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultLimit
	case filter.Limit > maxLimit:
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Accessory != "" {
		conditions = append(conditions, "accessory = ?")
		args = append(args, filter.Accessory)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	//nolint:gosec // WHERE holds only ? placeholders
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	//nolint:gosec // WHERE holds only ? placeholders
	query := `SELECT id, accessory, characteristic, value, source, subject, error, created_at
		FROM audit_log ` + where + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	rows, err := l.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var value, subject, errText sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Accessory, &e.Characteristic, &value, &e.Source, &subject, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if value.Valid {
			e.Value = json.RawMessage(value.String)
		}
		e.Subject = subject.String
		e.Error = errText.String
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &Page{Entries: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// nullable maps "" to NULL for optional TEXT columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
