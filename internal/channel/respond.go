package channel

import (
	"encoding/json"
	"net/http"
	"time"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondFailure reports a server-side failure with its cause.
func respondFailure(w http.ResponseWriter, message string, err error) {
	respondJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   message,
		"details": err.Error(),
	})
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// decodeJSON reads a JSON request body. MaxBytesReader is applied by the
// body limit middleware.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
