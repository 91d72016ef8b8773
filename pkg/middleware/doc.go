// Package middleware provides HTTP middleware for request identity, access
// control and rate limiting.
//
// # Identity
//
// Guard resolves the bearer token of a request through auth.Resolver and
// stores the user in the request context. At most one identity is trusted per
// request; once a user is in the context it is never replaced.
//
//	guard := middleware.NewGuard(resolver, logger)
//	router.Handle("/menus", guard.RequireToken(listMenus))
//	router.Handle("/users/me", guard.RequireActive(me))
//	router.Handle("/menus/{id}", guard.RequireSuperuser(updateMenu))
//	router.Handle("/users", guard.RequirePermissions("users_read")(listUsers))
//
// Requests without a bearer token get 401. Failed checks are reported with
// the status of the auth error kind (403 for bad credentials and missing
// permissions, 400 for inactive users, 404 for deleted users, 503 when the
// identity store is down).
//
// # Rate Limiting
//
// RateLimit protects the login and password recovery endpoints with a fixed
// window per client IP. RedisRateLimiter shares counters across instances;
// MemoryRateLimiter is used when Redis is not configured. Limiter errors fail
// open.
//
//	limiter := middleware.NewRedisRateLimiter(client, middleware.DefaultLoginRateLimitConfig(), "ratelimit:login")
//	router.Handle("/api/auth/login/access-token", middleware.RateLimit(limiter, "login", metrics, logger)(login))
package middleware
