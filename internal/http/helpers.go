package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"potledger/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps the typed error kinds onto HTTP statuses. Invariant
// violations deliberately read as internal errors: they mean the ledger is
// inconsistent, not that the caller did anything wrong.
func writeError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindValidation:
		status = http.StatusBadRequest
	case core.KindUpstream:
		status = http.StatusBadGateway
	case core.KindInvariant:
		status = http.StatusInternalServerError
	}

	resp := errorResponse{Error: err.Error()}
	if kind != 0 {
		resp.Kind = kind.String()
	}
	if status >= 500 {
		slog.Error("Request failed", "error", err, "kind", resp.Kind)
		// Internal details stay out of the response body.
		resp.Error = http.StatusText(status)
	}
	writeJSON(w, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, core.Invalidf("malformed request body: %v", err))
		return false
	}
	return true
}
