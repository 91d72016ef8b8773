// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// Successful responses are wrapped in an envelope:
//
//	httputil.WriteSuccess(w, user)   // {"code":0,"msg":"","data":{...}}
//	httputil.WriteCreated(w, menu.ID)
//
// Errors carry a message and a machine readable code:
//
//	httputil.WriteBadRequest(w, "invalid JSON")  // {"error":"invalid JSON","code":"bad_request"}
//	httputil.WriteError(w, err)                  // status chosen by err if it implements APIError
//
// # Request Parsing
//
//	var req MenuCreate
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	page, err := httputil.ParsePage(r, 10, 20)
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.CORSMiddleware(origins),
//	)(router)
package httputil
