// Package api exposes the sharing session over a loopback HTTP API and an
// MCP stdio server.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/screenlog/internal/capture"
	"github.com/kalambet/screenlog/internal/journal"
	"github.com/kalambet/screenlog/internal/notify"
	"github.com/kalambet/screenlog/internal/scheduler"
	"github.com/kalambet/screenlog/internal/session"
	"github.com/kalambet/screenlog/internal/storage"
)

// Session is the part of the orchestrator the API drives.
type Session interface {
	Status() session.Status
	StartSharing() error
	StopSharing()
	Settings() session.Settings
	SetCaptureInterval(sec int) (int, error)
	SetReportInterval(minutes int) (int, error)
	SetTheme(t storage.Theme) error
	Observations(page, size int) ([]journal.Observation, int)
	DeleteObservation(id string) error
	Reports() []journal.Report
	Report(id string) (journal.Report, error)
	LatestReport() (journal.Report, error)
	GenerateReport() (journal.Report, error)
	DeleteReport(id string) error
	Timeline(reportsOnly bool) []session.TimelineEntry
	ClearAll() error
}

// Deps holds the API's collaborators.
type Deps struct {
	Session Session
	Feed    *notify.Feed
	Token   string
	Logger  *slog.Logger
}

// ObservationPage is the GET /observations response.
type ObservationPage struct {
	Observations []journal.Observation `json:"observations"`
	Total        int                   `json:"total"`
	Page         int                   `json:"page"`
	Size         int                   `json:"size"`
}

// SettingsPatch is the PATCH /settings body. Absent fields are unchanged.
type SettingsPatch struct {
	CaptureIntervalSeconds *int    `json:"captureIntervalSeconds,omitempty"`
	ReportIntervalMinutes  *int    `json:"reportIntervalMinutes,omitempty"`
	Theme                  *string `json:"theme,omitempty"`
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// NewHandler returns the HTTP API. Everything but /health requires the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Feed == nil {
		deps.Feed = notify.NewFeed(0)
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/status", handleStatus(deps))
		r.Post("/sharing/start", handleStartSharing(deps))
		r.Post("/sharing/stop", handleStopSharing(deps))
		r.Get("/settings", handleGetSettings(deps))
		r.Patch("/settings", handlePatchSettings(deps))
		r.Get("/observations", handleListObservations(deps))
		r.Delete("/observations/{id}", handleDeleteObservation(deps))
		r.Get("/reports", handleListReports(deps))
		r.Post("/reports", handleGenerateReport(deps))
		r.Get("/reports/latest", handleLatestReport(deps))
		r.Get("/reports/{id}", handleGetReport(deps))
		r.Delete("/reports/{id}", handleDeleteReport(deps))
		r.Get("/timeline", handleTimeline(deps))
		r.Get("/notifications", handleNotifications(deps))
		r.Post("/clear", handleClear(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Session.Status())
	}
}

func handleStartSharing(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Session.StartSharing()
		if errors.Is(err, capture.ErrCancelled) {
			httpError(w, http.StatusConflict, "cancelled", "screen sharing was declined")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, deps.Session.Status())
	}
}

func handleStopSharing(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Session.StopSharing()
		writeJSON(w, http.StatusOK, deps.Session.Status())
	}
}

func handleGetSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Session.Settings())
	}
}

func handlePatchSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var patch SettingsPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		var theme storage.Theme
		if patch.Theme != nil {
			t, err := storage.ParseTheme(*patch.Theme)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			theme = t
		}

		if patch.CaptureIntervalSeconds != nil {
			if _, err := deps.Session.SetCaptureInterval(*patch.CaptureIntervalSeconds); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
				return
			}
		}
		if patch.ReportIntervalMinutes != nil {
			if _, err := deps.Session.SetReportInterval(*patch.ReportIntervalMinutes); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
				return
			}
		}
		if theme != "" {
			if err := deps.Session.SetTheme(theme); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
				return
			}
		}

		writeJSON(w, http.StatusOK, deps.Session.Settings())
	}
}

func handleListObservations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := parseIntParam(r, "page", 1, 0)
		if page < 1 {
			page = 1
		}
		size := parseIntParam(r, "size", defaultPageSize, maxPageSize)
		if size < 1 {
			size = defaultPageSize
		}

		items, total := deps.Session.Observations(page, size)
		if items == nil {
			items = []journal.Observation{}
		}
		writeJSON(w, http.StatusOK, ObservationPage{Observations: items, Total: total, Page: page, Size: size})
	}
}

func handleDeleteObservation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Session.DeleteObservation(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "observation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete observation: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleListReports(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports := deps.Session.Reports()
		if reports == nil {
			reports = []journal.Report{}
		}
		writeJSON(w, http.StatusOK, reports)
	}
}

func handleGenerateReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Session.GenerateReport()
		if errors.Is(err, scheduler.ErrNoObservations) {
			httpError(w, http.StatusConflict, "no_observations", "no observations yet; start sharing and let captures accumulate")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusCreated, report)
	}
}

func handleLatestReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Session.LatestReport()
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no successful report yet")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleGetReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Session.Report(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "report not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleDeleteReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Session.DeleteReport(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "report not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete report: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleTimeline(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reportsOnly, _ := strconv.ParseBool(r.URL.Query().Get("reports_only"))
		entries := deps.Session.Timeline(reportsOnly)
		if entries == nil {
			entries = []session.TimelineEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleNotifications(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		writeJSON(w, http.StatusOK, deps.Feed.Recent(limit))
	}
}

func handleClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Session.ClearAll(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear: %v", err)
			return
		}
		deps.Logger.Info("journal cleared via api")
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}
