package middleware

import (
	"net/http"
)

// Body size limits
const (
	KB = 1024
	MB = 1024 * KB

	// DefaultMaxBodySize covers JSON API and webhook bodies
	DefaultMaxBodySize = 1 * MB

	// AnalysisMaxBodySize allows base64 attachments on analysis requests
	AnalysisMaxBodySize = 15 * MB
)

// MaxBodySize limits the size of request bodies. Declared lengths over the
// limit are refused with 413 up front; undeclared ones fail on read.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength > maxBytes {
				respondWithError(w, r, errTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
