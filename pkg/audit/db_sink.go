package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DBSink persists audit events to PostgreSQL. It also serves queried
// reads for export and retention cleanup.
type DBSink struct {
	db *sql.DB
}

// NewDBSink creates a database-backed audit sink
func NewDBSink(db *sql.DB) (*DBSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	s := &DBSink{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("ensuring audit_events table: %w", err)
	}
	return s, nil
}

func (s *DBSink) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		severity VARCHAR(20) NOT NULL,
		user_id UUID,
		subject VARCHAR(255),
		email VARCHAR(255),
		tenant_id UUID,
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		request_id VARCHAR(100),
		ip_address VARCHAR(45),
		user_agent TEXT,
		method VARCHAR(10),
		path TEXT,
		message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_tenant_id ON audit_events(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_user_id ON audit_events(user_id);
	`
	_, err := s.db.Exec(query)
	return err
}

// Write inserts one event.
func (s *DBSink) Write(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	query := `
	INSERT INTO audit_events (
		id, timestamp, event_type, severity,
		user_id, subject, email, tenant_id,
		resource_type, resource_id,
		request_id, ip_address, user_agent, method, path,
		message, metadata
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, string(event.EventType), string(event.Severity),
		uuidOrNil(event.UserID), nullString(event.Subject), nullString(event.Email), uuidOrNil(event.TenantID),
		nullString(event.ResourceType), nullString(event.ResourceID),
		nullString(event.RequestID), nullString(event.IPAddress), nullString(event.UserAgent),
		nullString(event.Method), nullString(event.Path),
		nullString(event.Message), metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// Query returns events matching the filter, newest first.
func (s *DBSink) Query(ctx context.Context, filter QueryFilter) ([]*Event, error) {
	query := `
	SELECT id, timestamp, event_type, severity,
	       user_id, subject, email, tenant_id,
	       resource_type, resource_id,
	       request_id, ip_address, user_agent, method, path,
	       message, metadata
	FROM audit_events
	WHERE 1=1`

	var args []interface{}
	n := 0
	arg := func(v interface{}) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if filter.TenantID != nil {
		query += " AND tenant_id = " + arg(*filter.TenantID)
	}
	if filter.EventType != "" {
		query += " AND event_type = " + arg(string(filter.EventType))
	}
	if filter.Severity != "" {
		query += " AND severity = " + arg(string(filter.Severity))
	}
	if filter.Since != nil {
		query += " AND timestamp >= " + arg(*filter.Since)
	}
	if filter.Until != nil {
		query += " AND timestamp < " + arg(*filter.Until)
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// DeleteBefore removes events older than cutoff, returning the count.
func (s *DBSink) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired audit events: %w", err)
	}
	return res.RowsAffected()
}

// Close is a no-op; the pool is owned by the caller.
func (s *DBSink) Close() error { return nil }

// QueryFilter narrows Query results. Zero values mean "any".
type QueryFilter struct {
	TenantID  *uuid.UUID
	EventType EventType
	Severity  Severity
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var (
		event        Event
		eventType    string
		severity     string
		userID       sql.NullString
		subject      sql.NullString
		email        sql.NullString
		tenantID     sql.NullString
		resourceType sql.NullString
		resourceID   sql.NullString
		requestID    sql.NullString
		ipAddress    sql.NullString
		userAgent    sql.NullString
		method       sql.NullString
		path         sql.NullString
		message      sql.NullString
		metadata     []byte
	)
	if err := rows.Scan(
		&event.ID, &event.Timestamp, &eventType, &severity,
		&userID, &subject, &email, &tenantID,
		&resourceType, &resourceID,
		&requestID, &ipAddress, &userAgent, &method, &path,
		&message, &metadata,
	); err != nil {
		return nil, fmt.Errorf("scanning audit event: %w", err)
	}
	event.EventType = EventType(eventType)
	event.Severity = Severity(severity)
	if userID.Valid {
		if id, err := uuid.Parse(userID.String); err == nil {
			event.UserID = &id
		}
	}
	if tenantID.Valid {
		if id, err := uuid.Parse(tenantID.String); err == nil {
			event.TenantID = &id
		}
	}
	event.Subject = subject.String
	event.Email = email.String
	event.ResourceType = resourceType.String
	event.ResourceID = resourceID.String
	event.RequestID = requestID.String
	event.IPAddress = ipAddress.String
	event.UserAgent = userAgent.String
	event.Method = method.String
	event.Path = path.String
	event.Message = message.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling event metadata: %w", err)
		}
	}
	return &event, nil
}

func uuidOrNil(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
