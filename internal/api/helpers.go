package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
)

// writeJSON writes v as the JSON response body. Encoding errors are logged
// because by then part of the response may already be on the wire.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
	}
}

// writeError writes a plain-text error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

// ParseLimitParam parses the limit query parameter.
// Returns defaultLimit if the parameter is missing or invalid.
func ParseLimitParam(r *http.Request, defaultLimit int) int {
	limit := defaultLimit

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	return limit
}

// ParseFloatParam parses a float query parameter.
// Returns defaultValue if the parameter is missing or invalid.
func ParseFloatParam(r *http.Request, key string, defaultValue float64) float64 {
	value := defaultValue

	if valueStr := r.URL.Query().Get(key); valueStr != "" {
		if parsed, err := strconv.ParseFloat(valueStr, 64); err == nil && parsed > 0 {
			value = parsed
		}
	}

	return value
}

// ParseIDListParam parses a comma-separated list of numeric IDs from a query
// parameter. Invalid entries are skipped.
func ParseIDListParam(r *http.Request, key string) []int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}

	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
