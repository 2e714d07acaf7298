package handler

// RESPONSE HELPERS:
// Every operator endpoint answers JSON. Errors share one shape so scripts and
// dashboards can branch on "error" without parsing prose:
//
//	{"error": "validation_error", "message": "days must be between 0 and 366", "field": "days"}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/cutout-bot/internal/apperror"
)

// maxBodyBytes caps request bodies; the only body we accept is a login.
const maxBodyBytes = 64 << 10

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sets the header and status, then encodes data. Headers must go
// out before the body, so an encode failure can only be logged.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// errorStatus is the sentinel → status table. Order matters only where one
// error could match two rows, which the services never produce.
var errorStatus = []struct {
	target error
	status int
	kind   string
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
}

// writeError maps a service error to a status code. errors.Is walks the
// whole chain, so a store failure wrapped by the service layer still maps
// to 503.
//
// Only AppError messages reach the client. Anything else gets a fixed text:
// raw errors can carry SQL, file paths or upstream bodies.
func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: "internal_error", Message: "An internal error occurred"}
	status := http.StatusInternalServerError

	for _, row := range errorStatus {
		if errors.Is(err, row.target) {
			status, resp.Error = row.status, row.kind
			break
		}
	}

	var appErr *apperror.AppError
	switch {
	case status == http.StatusInternalServerError:
	case errors.As(err, &appErr):
		resp.Message, resp.Field = appErr.Message, appErr.Field
	case status == http.StatusServiceUnavailable:
		resp.Message = "The store is unavailable, try again later"
	}

	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields and
// oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return nil
}
