package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/adminhub/pkg/storage"
)

// DBStore persists audit events in the audit_events table
type DBStore struct {
	db *sql.DB
}

// NewDBStore creates a store on db
func NewDBStore(db *sql.DB) (*DBStore, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	return &DBStore{db: db}, nil
}

// Log inserts event and sets its ID
func (s *DBStore) Log(ctx context.Context, e *Event) error {
	var metadata sql.NullString
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audit_events (
			occurred_at, event_type, status, user_id, email,
			resource_type, resource_id, ip_address, user_agent, request_id,
			method, route, status_code, message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`,
		e.OccurredAt, string(e.Type), string(e.Status), storage.NullInt64(e.UserID), e.Email,
		e.ResourceType, e.ResourceID, e.IPAddress, e.UserAgent, e.RequestID,
		e.Method, e.Route, e.StatusCode, e.Message, metadata,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Search returns the events matching f, newest first
func (s *DBStore) Search(ctx context.Context, f Filter) (*List, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != nil {
		where = append(where, "user_id = "+arg(*f.UserID))
	}
	if len(f.Types) > 0 {
		start := len(args) + 1
		for _, t := range f.Types {
			args = append(args, string(t))
		}
		where = append(where, fmt.Sprintf("event_type IN (%s)", storage.Placeholders(start, len(f.Types))))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.Since != nil {
		where = append(where, "occurred_at >= "+arg(f.Since.UTC()))
	}
	if f.Until != nil {
		where = append(where, "occurred_at < "+arg(f.Until.UTC()))
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events "+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count audit events: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT id, occurred_at, event_type, status, user_id, email,
			resource_type, resource_id, ip_address, user_agent, request_id,
			method, route, status_code, message, metadata
		FROM audit_events
		%s
		ORDER BY occurred_at DESC, id DESC
		LIMIT %s OFFSET %s
	`, clause, arg(limit), arg(f.Offset))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	list := &List{Total: total, Items: []*Event{}}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	return list, nil
}

// Purge deletes events that occurred before cutoff
func (s *DBStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE occurred_at < $1", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	return res.RowsAffected()
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var (
		e        Event
		userID   sql.NullInt64
		metadata sql.NullString
		typ      string
		status   string
	)
	err := rows.Scan(&e.ID, &e.OccurredAt, &typ, &status, &userID, &e.Email,
		&e.ResourceType, &e.ResourceID, &e.IPAddress, &e.UserAgent, &e.RequestID,
		&e.Method, &e.Route, &e.StatusCode, &e.Message, &metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}
	e.Type = EventType(typ)
	e.Status = Status(status)
	e.UserID = storage.Int64Ptr(userID)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata of audit event %d: %w", e.ID, err)
		}
	}
	return &e, nil
}
