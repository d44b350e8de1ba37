// Package httputil provides the JSON response shape, request decoding and
// the generic middleware of the HTTP API.
//
// Every response body has a boolean "success" member. Failures carry a
// human readable "message" plus optional flags:
//
//	httputil.WriteSuccess(w, httputil.Fields{"usageCredits": 4})
//	httputil.WriteForbidden(w, "Please verify your email to use this feature",
//		httputil.Fields{"requiresVerification": true})
//
// Request bodies are decoded and checked against validate struct tags:
//
//	var req subscribeRequest
//	if err := httputil.DecodeAndValidate(r, &req); err != nil {
//		httputil.WriteBadRequest(w, "Invalid subscription plan")
//		return
//	}
//
// Middleware:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
