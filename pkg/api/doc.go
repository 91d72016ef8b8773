// Package api mounts the admin HTTP API.
//
// Every route lives under /api:
//
//	/api/auth/...     login, password recovery, self registration, logout
//	/api/users/...    account management and the caller's profile
//	/api/menus/...    menu CRUD and the full tree
//	/api/catalogs     the active catalog tree
//	/api/routes       the front-end route table
//	/api/groups/...   permission groups and their members
//	/api/roles/...    roles, their menu grants and assignments
//
// Successful responses are wrapped in {"code":0,"msg":"","data":...}. The
// token endpoint is the exception and answers with a bare OAuth2 token body.
// Errors are {"error":"...","code":"..."}.
package api
