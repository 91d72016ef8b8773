package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/cache"
	"github.com/platinummonkey/adminhub/pkg/observability"
)

// DefaultIdentityTTL bounds how long a resolved user is served from cache
const DefaultIdentityTTL = 600 * time.Second

// UserLoader loads a user with its groups. Implementations return
// ErrUserNotFound for unknown ids.
type UserLoader interface {
	LoadUser(ctx context.Context, id int64) (*User, error)
}

// UserLoaderFunc adapts a function to UserLoader
type UserLoaderFunc func(ctx context.Context, id int64) (*User, error)

func (f UserLoaderFunc) LoadUser(ctx context.Context, id int64) (*User, error) {
	return f(ctx, id)
}

// ResolverConfig wires a Resolver
type ResolverConfig struct {
	Tokens  *TokenIssuer
	Users   UserLoader
	Cache   cache.Cache // optional
	TTL     time.Duration
	Logger  logrus.FieldLogger
	Metrics *observability.Metrics // optional
}

// Resolver turns a bearer token into the user it was issued for, reading
// through the identity cache.
type Resolver struct {
	tokens  *TokenIssuer
	users   UserLoader
	cache   cache.Cache
	ttl     time.Duration
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// NewResolver creates a resolver
func NewResolver(cfg ResolverConfig) *Resolver {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultIdentityTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Resolver{
		tokens:  cfg.Tokens,
		users:   cfg.Users,
		cache:   cfg.Cache,
		ttl:     ttl,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Tokens returns the issuer the resolver verifies with
func (r *Resolver) Tokens() *TokenIssuer {
	return r.tokens
}

// VerifyAccess validates an access token without loading the user
func (r *Resolver) VerifyAccess(token string) (*Claims, error) {
	claims, err := r.tokens.Verify(token, PurposeAccess)
	if err != nil {
		r.recordFailure(KindInvalidCredentials)
		return nil, err
	}
	if claims.UserID <= 0 {
		r.recordFailure(KindInvalidCredentials)
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

// Resolve verifies token and returns the current user snapshot
func (r *Resolver) Resolve(ctx context.Context, token string) (*User, error) {
	claims, err := r.VerifyAccess(token)
	if err != nil {
		return nil, err
	}
	return r.Load(ctx, claims.UserID)
}

// Load returns the user with id from cache, falling back to the store.
// Cache failures are logged and treated as a miss.
func (r *Resolver) Load(ctx context.Context, id int64) (*User, error) {
	logger := observability.FromContext(ctx, r.logger).WithField("resolve_user_id", strconv.FormatInt(id, 10))
	key := cache.UserKey(id)

	if r.cache != nil {
		var cached User
		found, err := r.cache.Get(ctx, key, &cached)
		if err != nil {
			logger.WithError(err).Warn("identity cache read failed")
		} else if found {
			return &cached, nil
		}
	}

	if r.metrics != nil {
		r.metrics.IdentityLoadsTotal.Inc()
	}
	user, err := r.users.LoadUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			r.recordFailure(KindNotFound)
			return nil, newError(KindNotFound, ErrNotFound.Message, err)
		}
		logger.WithError(err).Error("identity store lookup failed")
		r.recordFailure(KindUnavailable)
		return nil, newError(KindUnavailable, ErrUnavailable.Message, err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, user, r.ttl); err != nil {
			logger.WithError(err).Warn("identity cache write failed")
		}
	}

	return user, nil
}

func (r *Resolver) recordFailure(kind Kind) {
	if r.metrics != nil {
		r.metrics.AuthFailuresTotal.WithLabelValues(kind.String()).Inc()
	}
}

// RequireActive rejects deactivated accounts
func RequireActive(u *User) error {
	if u == nil {
		return ErrInvalidCredentials
	}
	if !u.IsActive {
		return ErrInactive
	}
	return nil
}

// RequireSuperuser rejects everyone but superusers
func RequireSuperuser(u *User) error {
	if u == nil {
		return ErrInvalidCredentials
	}
	if !u.IsSuperuser {
		return ErrForbidden
	}
	return nil
}
