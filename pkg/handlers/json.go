// Package handlers contains HTTP handler implementations for
// Mood-Playlist-Go. This file adds small helpers for decoding JSON requests
// with validation and for writing JSON responses.
//
// decodeJSON reads the request body into v, enforcing a reasonable limit and
// rejecting unknown fields. It returns an error suitable for use with
// respondJSONError. Callers should check for errors and send an appropriate
// response.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// decodeJSON attempts to decode the request body into the provided destination.
// The body is limited to 1MB to guard against malicious requests. Unknown
// fields cause an error so clients cannot send unexpected data.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1MB
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.New("empty body")
		}
		return err
	}
	if dec.More() {
		return errors.New("extra data in request body")
	}
	return nil
}

// respondJSON writes v as a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondJSONError writes a JSON error payload with the given status code.
func respondJSONError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
