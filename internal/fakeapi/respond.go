package fakeapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError sends an error in the backend's {"detail": ...} shape.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"detail": message})
}

// respondEnvelope reports a failure the way the chat and review endpoints do:
// status 200 with an error object.
func respondEnvelope(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, map[string]any{"error": map[string]string{"message": message}})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// record captures every request for test assertions.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Body:          json.RawMessage(body),
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// injectFailures answers with a queued failure for the path, if any.
func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		queue := s.failures[r.URL.Path]
		var f *failure
		if len(queue) > 0 {
			f = &queue[0]
			s.failures[r.URL.Path] = queue[1:]
		}
		s.mu.Unlock()

		if f != nil {
			respondError(w, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}
