package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/export"
	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// Handler exposes reporting endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/daily-summary", h.dailySummary)
	r.Get("/daily-summary/export", h.exportDailySummary)
	r.Get("/sales-register", h.register)
	r.Get("/sales-register/export", h.exportRegister)
}

func dayFromQuery(r *http.Request) time.Time {
	if v, err := time.Parse("2006-01-02", r.URL.Query().Get("date")); err == nil {
		return v
	}
	return time.Now().UTC().Truncate(24 * time.Hour)
}

func rangeFromQuery(r *http.Request) RegisterRequest {
	var req RegisterRequest
	q := r.URL.Query()
	if v, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		req.From = v
	}
	if v, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		req.To = v.AddDate(0, 0, 1)
	}
	return req
}

func (h *Handler) dailySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.DailySummary(r.Context(), dayFromQuery(r))
	if err != nil {
		h.logger.Error("daily summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) exportDailySummary(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actorID, _ := shared.CurrentUserID(r.Context())
	table, err := h.service.ExportDailySummary(r.Context(), dayFromQuery(r), actorID)
	if err != nil {
		h.logger.Error("export daily summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if err := export.Write(w, format, table); err != nil {
		h.logger.Error("write daily summary export", slog.Any("error", err))
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Register(r.Context(), rangeFromQuery(r))
	if err != nil {
		h.logger.Error("sales register", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) exportRegister(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actorID, _ := shared.CurrentUserID(r.Context())
	table, err := h.service.ExportRegister(r.Context(), rangeFromQuery(r), actorID)
	if err != nil {
		h.logger.Error("export sales register", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if err := export.Write(w, format, table); err != nil {
		h.logger.Error("write sales register export", slog.Any("error", err))
	}
}
