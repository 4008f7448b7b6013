package httpapi

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/swaprouter/engine/errs"
)

const maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

func limitRequestBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeData emits the spec's success envelope. extra is merged in
// verbatim (e.g. {"count": n} on the list endpoint).
func writeData(w http.ResponseWriter, status int, data any, extra map[string]any) {
	body := map[string]any{"success": true, "data": data}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// writeError maps err to the spec §6/§7 status code and envelope. An
// *errs.E carries its own HTTP status and message; anything else is an
// unclassified 500 (spec §7 "Internal").
func writeError(w http.ResponseWriter, err error) {
	var e *errs.E
	if errors.As(err, &e) {
		message := e.Message
		if message == "" {
			message = e.Error()
		}
		writeJSON(w, e.HTTP, map[string]any{"success": false, "error": string(e.Code), "message": message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "internal", "message": err.Error()})
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if isRequestTooLarge(err) {
		writeError(w, errs.New("httpapi", errs.CodeValidation,
			errs.WithHTTP(http.StatusRequestEntityTooLarge),
			errs.WithMessage("request body too large")))
		return
	}
	writeError(w, errs.New("httpapi", errs.CodeValidation, errs.WithMessage(err.Error())))
}

func isRequestTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
