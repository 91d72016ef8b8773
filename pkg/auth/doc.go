// Package auth resolves bearer tokens to users and answers permission checks.
//
// # Tokens
//
// TokenIssuer signs HS256 JWTs whose subject names their purpose (access,
// password reset, account confirmation). Verification pins the algorithm,
// requires an expiry and checks the subject, so a reset token can never be
// used as a bearer token.
//
//	issuer, _ := auth.NewTokenIssuer(auth.TokenConfig{Secret: secret})
//	token, _ := issuer.IssueAccessToken(user.ID)
//
// # Identity resolution
//
// Resolver verifies the token, then reads the user snapshot from the cache
// under "user:<id>", falling back to a UserLoader and repopulating the cache.
// A broken cache degrades to store reads; it never grants access.
//
//	user, err := resolver.Resolve(ctx, token)
//	if err != nil {
//		httpStatus := auth.StatusCode(err)
//	}
//
// # Permissions
//
// Effective permissions are the union of the user's group permission keys.
// Superusers bypass every check.
//
//	if err := auth.Authorize(user, "users_read", "users_write"); err != nil {
//		// errors.Is(err, auth.ErrForbidden)
//	}
package auth
