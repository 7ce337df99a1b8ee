package activity

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/export"
	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// Handler exposes audit trail endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit trail routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/export", h.export)
}

type listResponse struct {
	Data       []Entry           `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func filtersFromQuery(r *http.Request) ListRequest {
	req := ListRequest{Page: 1, PerPage: 50}
	q := r.URL.Query()
	if v, err := strconv.ParseInt(q.Get("actor_id"), 10, 64); err == nil && v > 0 {
		req.ActorID = &v
	}
	if v := q.Get("entity"); v != "" {
		req.Entity = &v
	}
	if v := q.Get("action"); v != "" {
		req.Action = &v
	}
	if v := q.Get("reference"); v != "" {
		req.Reference = &v
	}
	if v, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		req.From = &v
	}
	if v, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		req.To = &v
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		req.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 && v <= 500 {
		req.PerPage = v
	}
	return req
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := filtersFromQuery(r)
	items, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list activity", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Data:       items,
		Pagination: shared.NewPagination(req.Page, req.PerPage, total),
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actorID, _ := shared.CurrentUserID(r.Context())
	table, err := h.service.Export(r.Context(), filtersFromQuery(r), actorID)
	if err != nil {
		h.logger.Error("export activity", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if err := export.Write(w, format, table); err != nil {
		h.logger.Error("write activity export", slog.Any("error", err))
	}
}
