// Package response renders every JSON body the API sends: resources with
// their "_links", and the error envelope shared by all handlers.
package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ─────────────────────────────────────────────────────────────────────────────
// Response is the status envelope. Errors render as
//
//	{ "status": "error", "error": "student not found" }
//
// and bodiless successes (cache clear) as { "status": "ok" }.
// ─────────────────────────────────────────────────────────────────────────────
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ─────────────────────────────────────────────────────────────────────────────
// Link is a hypermedia link as rendered inside a "_links" object:
//
//	"_links": {
//	  "self":       { "href": "/api/courses/3" },
//	  "collection": { "href": "/api/courses" }
//	}
//
// ─────────────────────────────────────────────────────────────────────────────
type Link struct {
	Href string `json:"href"`
}

// Links maps a relation name ("self", "collection", …) to its link.
type Links map[string]Link

// Add sets rel to href and returns l so calls can be chained.
func (l Links) Add(rel, href string) Links {
	l[rel] = Link{Href: href}
	return l
}

// WriteJSON sets the content type and status, then encodes data.
// Headers must be set before the call: WriteHeader locks them.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// GeneralError renders err as an error envelope.
func GeneralError(err error) Response {
	return Response{
		Status: StatusError,
		Error:  err.Error(),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ValidationError joins one sentence per failed field:
//
//	{ "status": "error", "error": "field Name is required, field DurationHours must be at least 1" }
//
// ─────────────────────────────────────────────────────────────────────────────
func ValidationError(errs validator.ValidationErrors) Response {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, fieldMessage(e))
	}
	return Response{Status: StatusError, Error: strings.Join(msgs, ", ")}
}

func fieldMessage(e validator.FieldError) string {
	switch e.ActualTag() {
	case "required":
		return fmt.Sprintf("field %s is required", e.Field())
	case "email":
		return fmt.Sprintf("field %s must be a valid email address", e.Field())
	case "min":
		return fmt.Sprintf("field %s must be at least %s", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("field %s must be at most %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("field %s is invalid", e.Field())
	}
}
