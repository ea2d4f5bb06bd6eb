package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ExportFormat selects the output encoding for exported events
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatNDJSON ExportFormat = "ndjson"
	ExportFormatCSV    ExportFormat = "csv"
)

// ContentType returns the MIME type for HTTP responses.
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatCSV:
		return "text/csv"
	case ExportFormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// Querier reads back persisted events for export.
type Querier interface {
	Query(ctx context.Context, filter QueryFilter) ([]*Event, error)
}

// Export renders the events matching filter in the requested format.
// Compliance reviews pull these periodically; CSV keeps spreadsheet
// tooling happy, NDJSON feeds log pipelines.
func Export(ctx context.Context, q Querier, filter QueryFilter, format ExportFormat) ([]byte, error) {
	events, err := q.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("loading events for export: %w", err)
	}

	switch format {
	case ExportFormatJSON:
		return json.MarshalIndent(events, "", "  ")
	case ExportFormatNDJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, event := range events {
			if err := enc.Encode(event); err != nil {
				return nil, fmt.Errorf("encoding event %s: %w", event.ID, err)
			}
		}
		return buf.Bytes(), nil
	case ExportFormatCSV:
		return exportCSV(events)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

var csvHeader = []string{
	"id", "timestamp", "event_type", "severity",
	"user_id", "subject", "email", "tenant_id",
	"resource_type", "resource_id", "request_id",
	"ip_address", "method", "path", "message", "metadata",
}

func exportCSV(events []*Event) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, event := range events {
		userID := ""
		if event.UserID != nil {
			userID = event.UserID.String()
		}
		tenantID := ""
		if event.TenantID != nil {
			tenantID = event.TenantID.String()
		}
		metadata := ""
		if event.Metadata != nil {
			raw, err := json.Marshal(event.Metadata)
			if err != nil {
				return nil, fmt.Errorf("encoding metadata for event %s: %w", event.ID, err)
			}
			metadata = string(raw)
		}
		record := []string{
			event.ID.String(),
			event.Timestamp.UTC().Format(time.RFC3339Nano),
			string(event.EventType),
			string(event.Severity),
			userID,
			event.Subject,
			event.Email,
			tenantID,
			event.ResourceType,
			event.ResourceID,
			event.RequestID,
			event.IPAddress,
			event.Method,
			event.Path,
			event.Message,
			metadata,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RetentionPolicy bounds how long events are kept online before the
// archiver deletes them (after optional S3 upload).
type RetentionPolicy struct {
	MaxAge time.Duration
}

func (p RetentionPolicy) cutoff(now time.Time) time.Time {
	return now.Add(-p.MaxAge)
}

func (p RetentionPolicy) String() string {
	return "max_age=" + strconv.FormatInt(int64(p.MaxAge/time.Hour), 10) + "h"
}
