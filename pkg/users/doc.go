// Package users is the credential store: accounts, their group memberships
// and password handling, plus the /users HTTP endpoints.
//
// Every write that changes what an identity snapshot contains deletes the
// user's cache entry, so the next request resolves a fresh copy.
package users
