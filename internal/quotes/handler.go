package quotes

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// Handler exposes quote endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers quote routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{quoteID}", h.get)
	r.Delete("/{quoteID}", h.cancel)
	r.Patch("/{quoteID}/adjustments", h.updateAdjustments)
	r.Post("/{quoteID}/items", h.addLine)
	r.Post("/{quoteID}/items/{itemID}/delete", h.removeLine)
	r.Post("/{quoteID}/convert", h.convert)
}

type listResponse struct {
	Data       []Quote           `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListQuotesRequest{Page: 1, PerPage: 20}
	q := r.URL.Query()
	if v, err := strconv.ParseInt(q.Get("client_id"), 10, 64); err == nil && v > 0 {
		req.ClientID = &v
	}
	if v := q.Get("status"); v != "" {
		status := QuoteStatus(v)
		req.Status = &status
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		req.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 && v <= 200 {
		req.PerPage = v
	}

	items, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list quotes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Data:       items,
		Pagination: shared.NewPagination(req.Page, req.PerPage, total),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}

	actorID, _ := shared.CurrentUserID(r.Context())
	quote, err := h.service.Create(r.Context(), req, actorID)
	if err != nil {
		h.logger.Error("create quote", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := quoteID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quote id")
		return
	}
	quote, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := quoteID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quote id")
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	if err := h.service.Cancel(r.Context(), id, actorID); err != nil {
		h.logger.Error("cancel quote", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateAdjustments(w http.ResponseWriter, r *http.Request) {
	id, err := quoteID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quote id")
		return
	}
	var req UpdateAdjustmentsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}

	actorID, _ := shared.CurrentUserID(r.Context())
	quote, err := h.service.UpdateAdjustments(r.Context(), id, req, actorID)
	if err != nil {
		h.logger.Error("update quote adjustments", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, err := quoteID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quote id")
		return
	}
	var req AddLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actorID, _ := shared.CurrentUserID(r.Context())
	quote, err := h.service.AddLine(r.Context(), id, req, actorID)
	if err != nil {
		h.logger.Error("add quote line", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	id, err := quoteID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quote id")
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}

	actorID, _ := shared.CurrentUserID(r.Context())
	quote, err := h.service.RemoveLine(r.Context(), id, itemID, actorID)
	if err != nil {
		h.logger.Error("remove quote line", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	id, err := quoteID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quote id")
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	result, err := h.service.Convert(r.Context(), id, actorID)
	if err != nil {
		h.logger.Error("convert quote", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func quoteID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "quoteID"), 10, 64)
}
