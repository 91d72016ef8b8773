package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/auth"
	"github.com/platinummonkey/adminhub/pkg/contextkeys"
	"github.com/platinummonkey/adminhub/pkg/httputil"
	"github.com/platinummonkey/adminhub/pkg/observability"
)

// Guard resolves the caller of a request and enforces access rules
type Guard struct {
	resolver *auth.Resolver
	logger   logrus.FieldLogger
}

// NewGuard creates a guard backed by resolver
func NewGuard(resolver *auth.Resolver, logger logrus.FieldLogger) *Guard {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Guard{resolver: resolver, logger: logger}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// CurrentUser returns the user resolved for this request, or nil
func CurrentUser(ctx context.Context) *auth.User {
	user, _ := ctx.Value(contextkeys.UserKey).(*auth.User)
	return user
}

// CurrentClaims returns the verified access token claims, or nil
func CurrentClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(contextkeys.ClaimsKey).(*auth.Claims)
	return claims
}

// WithUser stores user as the request identity. An identity already present
// is kept.
func WithUser(ctx context.Context, user *auth.User) context.Context {
	if CurrentUser(ctx) != nil {
		return ctx
	}
	ctx = contextkeys.WithUser(ctx, user)
	return contextkeys.WithUserID(ctx, strconv.FormatInt(user.ID, 10))
}

// RequireToken admits any request carrying a valid access token. The user
// is not loaded.
func (g *Guard) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentClaims(r.Context()) != nil || CurrentUser(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := BearerToken(r)
		if !ok {
			unauthenticated(w)
			return
		}
		claims, err := g.resolver.VerifyAccess(token)
		if err != nil {
			g.reject(w, r, err)
			return
		}
		ctx := contextkeys.WithClaims(r.Context(), claims)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(claims.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser resolves the caller and stores it in the request context
func (g *Guard) RequireUser(next http.Handler) http.Handler {
	return g.check(nil, next)
}

// RequireActive admits active users only
func (g *Guard) RequireActive(next http.Handler) http.Handler {
	return g.check(auth.RequireActive, next)
}

// RequireSuperuser admits active superusers only
func (g *Guard) RequireSuperuser(next http.Handler) http.Handler {
	return g.check(func(u *auth.User) error {
		if err := auth.RequireActive(u); err != nil {
			return err
		}
		return auth.RequireSuperuser(u)
	}, next)
}

// RequirePermissions admits active users holding every key
func (g *Guard) RequirePermissions(keys ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.check(func(u *auth.User) error {
			if err := auth.RequireActive(u); err != nil {
				return err
			}
			return auth.Authorize(u, keys...)
		}, next)
	}
}

func (g *Guard) check(rule func(*auth.User) error, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user := CurrentUser(ctx)
		if user == nil {
			token, ok := BearerToken(r)
			if !ok {
				unauthenticated(w)
				return
			}
			resolved, err := g.resolver.Resolve(ctx, token)
			if err != nil {
				g.reject(w, r, err)
				return
			}
			user = resolved
			ctx = WithUser(ctx, user)
			r = r.WithContext(ctx)
		}

		if rule != nil {
			if err := rule(user); err != nil {
				g.reject(w, r, err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, err error) {
	entry := observability.FromContext(r.Context(), g.logger).WithError(err)
	if auth.KindOf(err) == auth.KindUnavailable {
		entry.Error("identity resolution failed")
	} else {
		entry.WithField("path", r.URL.Path).Debug("request rejected")
	}
	httputil.WriteError(w, err)
}

func unauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "not authenticated")
}
