package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/stashcast/stashcast/internal/apperr"
)

// errorEnvelope is the JSON error body of spec §7 "User-visible behavior".
type errorEnvelope struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "INTERNAL"
	detail := err.Error()

	if e, ok := apperr.As(err); ok {
		status = e.Status()
		kind = string(e.Kind)
		detail = e.Detail
	}

	writeJSON(w, status, errorEnvelope{Error: kind, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
