package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the generic category body for the status. Specific failure
// reasons are logged, never returned, so responses don't leak which check
// failed.
func writeError(w http.ResponseWriter, status int, category string) {
	writeJSON(w, status, map[string]string{"error": category})
}

func writeNotFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not_found")
}

func writeConflict(w http.ResponseWriter) {
	writeError(w, http.StatusConflict, "conflict")
}

func writeBadRequest(w http.ResponseWriter) {
	writeError(w, http.StatusBadRequest, "bad_request")
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	zerolog.Ctx(r.Context()).Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, "internal_error")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	return dec.Decode(v)
}
