package audit

import "time"

// EventType is the category of an audit event
type EventType string

const (
	EventLogin            EventType = "auth.login"
	EventLoginFailed      EventType = "auth.login_failed"
	EventLogout           EventType = "auth.logout"
	EventPasswordRecovery EventType = "auth.password_recovery"
	EventPasswordReset    EventType = "auth.password_reset"
	EventRegister         EventType = "auth.register"
	EventAccountConfirm   EventType = "auth.account_confirm"

	// EventRequest is a mutating API request recorded by Middleware
	EventRequest EventType = "api.request"
)

// Status is the outcome of an event
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)

// StatusFromCode maps an HTTP status code to an outcome
func StatusFromCode(code int) Status {
	switch {
	case code == 401 || code == 403:
		return StatusDenied
	case code >= 400:
		return StatusFailure
	default:
		return StatusSuccess
	}
}

// Event is a single audit record
type Event struct {
	ID         int64     `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Type       EventType `json:"event_type"`
	Status     Status    `json:"status"`

	// Actor. Email is set for unauthenticated flows where only the
	// submitted address is known.
	UserID *int64 `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`

	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Route      string `json:"route,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Filter selects events in Search. Zero fields do not filter.
type Filter struct {
	UserID *int64
	Types  []EventType
	Status Status
	Since  *time.Time
	Until  *time.Time

	Limit  int
	Offset int
}

// List is a page of events, newest first
type List struct {
	Total int      `json:"total"`
	Items []*Event `json:"items"`
}
