// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/adminhub/pkg/contextkeys"
//	ctx = contextkeys.WithUser(ctx, user)
//	user, _ := ctx.Value(contextkeys.UserKey).(*auth.User)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserKey contains *auth.User
	// Set by: middleware.Authenticator (pkg/middleware/auth.go)
	// Required by: every handler behind RequireActive/RequireSuperuser/RequirePermissions
	UserKey Key = "current_user"

	// ClaimsKey contains *auth.Claims of the verified access token
	// Set by: middleware.Authenticator and middleware.RequireToken
	ClaimsKey Key = "token_claims"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user ID as a string
	// Set by: middleware.Authenticator after identity resolution
	// Used by: Logger
	UserIDKey Key = "user_id"

	// ClientIPKey contains the caller address as a string
	// Set by: middleware.RealIP
	// Used by: rate limiting, audit events
	ClientIPKey Key = "client_ip"
)

// WithUser adds the resolved user to the context
func WithUser(ctx context.Context, user interface{}) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// WithClaims adds verified token claims to the context
func WithClaims(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithClientIP adds the resolved caller address to the context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetClientIP retrieves the caller address from context
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
