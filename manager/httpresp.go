package manager

import (
	"encoding/json"
	"net/http"

	"github.com/statedge/actorhost/errorkind"
)

// envelope is the JSON response wrapper every manager endpoint uses:
// success responses carry {"data": payload}, failures {"error": {...}} —
// the same shape the teacher's response.go uses, generalized to wrap
// errorkind.Error instead of a hand-rolled {message, code} pair.
type envelope map[string]any

// writeJSON writes a JSON-encoded response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeOk writes a 200 with the payload wrapped in {"data": payload}.
func writeOk(w http.ResponseWriter, payload any) {
	writeJSON(w, http.StatusOK, envelope{"data": payload})
}

// writeCreated writes a 201 with the payload wrapped in {"data": payload}.
func writeCreated(w http.ResponseWriter, payload any) {
	writeJSON(w, http.StatusCreated, envelope{"data": payload})
}

// writeError writes err as {"error": {"code", "message", "metadata"?}},
// status derived from its Kind per spec §7's table.
func writeError(w http.ResponseWriter, err error) {
	kindErr := errorkind.Of(err)
	body := envelope{"code": string(kindErr.Kind), "message": kindErr.Message}
	if kindErr.Metadata != nil {
		body["metadata"] = kindErr.Metadata
	}
	writeJSON(w, errorkind.HTTPStatus(kindErr.Kind), envelope{"error": body})
}

// decodeJSON decodes r's body into dst, writing a MalformedMessage error
// response and returning false on failure so handlers can early-return.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, errorkind.New(errorkind.MalformedMessage, "invalid request body: "+err.Error()))
		return false
	}
	return true
}
