// Package audit records who did what to the admin hub.
//
// Authentication flows record semantic events (logins, password resets,
// registrations) directly. Every other mutating API request is recorded by
// Middleware with its route template, caller and outcome. Events are stored
// in the audit_events table by DBStore and can be queried by superusers at
// GET /api/audit/events.
//
// Recording never fails a request: a Logger error is logged and dropped.
//
// Retention is enforced by the audit_retention job, which purges events
// older than the configured age.
package audit
