// Package api implements the bridge's HTTP surface using chi.
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

var (
	allowedMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodOptions, http.MethodPatch, http.MethodDelete,
	}
	allowedHeaders = []string{"Content-Type"}
)

// CORSMiddleware answers browser pre-flight requests and decorates actual
// cross-origin responses. Any origin is allowed.
func CORSMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: allowedMethods,
		AllowedHeaders: allowedHeaders,
		MaxAge:         300,
	})
}

// setCORSHeaders writes the permissive CORS headers unconditionally. Used by
// the plain OPTIONS handler, which also answers requests that carry no
// Origin.
func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", strings.Join(allowedMethods, ", "))
	h.Set("Access-Control-Allow-Headers", strings.Join(allowedHeaders, ", "))
}
