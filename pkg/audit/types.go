package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthSuccess EventType = "auth.success"
	EventTypeAuthFailure EventType = "auth.failure"

	// Authorization events
	EventTypeAuthorizationFailure EventType = "authz.failure"
	EventTypeResourceAccessDenied EventType = "authz.resource_access_denied"

	// Tenant isolation events
	EventTypeUnauthorizedTenantAccess EventType = "tenant.unauthorized_access"
	EventTypeCrossTenantAttempt       EventType = "tenant.cross_tenant_attempt"
	EventTypeTenantInactive           EventType = "tenant.inactive_access"

	// Quota events
	EventTypeQuotaExceeded EventType = "quota.exceeded"
)

// Severity classifies how an event should be triaged. Quota breaches
// are expected operational behavior and stay at warning; authorization
// failures are errors.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event represents a single immutable security event. Events are
// append-only; nothing in this package updates or deletes one after
// it is recorded.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Severity  Severity  `json:"severity"`

	// Actor information
	UserID  *uuid.UUID `json:"user_id,omitempty"`
	Subject string     `json:"subject,omitempty"`
	Email   string     `json:"email,omitempty"`

	// Tenant scope. For cross-tenant attempts TenantID is the
	// authenticated tenant and Metadata carries the foreign one.
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`

	// Resource information
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
