// Package status holds the operational endpoints: directory availability
// and result cache maintenance.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aanand-mishra/students-api/internal/utils/response"
)

// Prober reports whether the external directory answers.
type Prober interface {
	IsExternalAvailable(ctx context.Context) bool
}

// CacheClearer drops every cached read.
type CacheClearer interface {
	ClearCache(ctx context.Context) error
}

// ExternalStatus is the body of GET /api/students/status/external.
type ExternalStatus struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

// External handles GET /api/students/status/external. It always answers
// 200; the body says whether the directory is reachable.
func External(p Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		available := p.IsExternalAvailable(r.Context())
		slog.InfoContext(r.Context(), "external directory probed", slog.Bool("available", available))

		body := ExternalStatus{Available: available, Message: "external directory unavailable"}
		if available {
			body.Message = "external directory available"
		}
		response.WriteJSON(w, http.StatusOK, body)
	}
}

// ClearCache handles DELETE /api/cache.
func ClearCache(c CacheClearer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.ClearCache(r.Context()); err != nil {
			slog.ErrorContext(r.Context(), "error clearing cache", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		slog.InfoContext(r.Context(), "result cache cleared")
		response.WriteJSON(w, http.StatusOK, response.Response{Status: response.StatusOK})
	}
}
