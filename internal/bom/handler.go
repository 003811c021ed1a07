package bom

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for formula management.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the formula handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers formula routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/number/{number}", h.handleGetByNumber)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

// formulaResponse decorates a formula with its derived per-unit cost.
type formulaResponse struct {
	*Formula
	UnitCost decimal.Decimal `json:"unit_cost"`
}

type componentRequest struct {
	ItemID   int64           `json:"item_id" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity" validate:"required"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

type createFormulaRequest struct {
	ItemID    int64              `json:"item_id" validate:"required,gt=0"`
	OutputQty decimal.Decimal    `json:"output_qty" validate:"required"`
	Note      string             `json:"note"`
	Lines     []componentRequest `json:"lines" validate:"required,min=1,dive"`
}

type updateFormulaRequest struct {
	OutputQty *decimal.Decimal   `json:"output_qty"`
	IsActive  *bool              `json:"is_active"`
	Note      *string            `json:"note"`
	Lines     []componentRequest `json:"lines" validate:"omitempty,min=1,dive"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	var req createFormulaRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Input", err.Error())
		return
	}

	formula, err := h.service.Create(r.Context(), CreateInput{
		CompanyID: companyID,
		ItemID:    req.ItemID,
		OutputQty: req.OutputQty,
		Note:      req.Note,
		Lines:     toComponentInputs(req.Lines),
	})
	if err != nil {
		h.respondError(w, "create formula", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, formula)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid formula id")
		return
	}
	formula, err := h.service.Get(r.Context(), companyID, id)
	if err != nil {
		h.respondError(w, "get formula", err)
		return
	}
	httpx.JSON(w, http.StatusOK, formulaResponse{Formula: formula, UnitCost: formula.UnitCost()})
}

func (h *Handler) handleGetByNumber(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	formula, err := h.service.GetByNumber(r.Context(), companyID, chi.URLParam(r, "number"))
	if err != nil {
		h.respondError(w, "get formula by number", err)
		return
	}
	httpx.JSON(w, http.StatusOK, formulaResponse{Formula: formula, UnitCost: formula.UnitCost()})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("search")}
	filter.ItemID, _ = strconv.ParseInt(q.Get("item_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if active := q.Get("active"); active != "" {
		b := active == "true" || active == "1"
		filter.Active = &b
	}

	formulas, total, err := h.service.List(r.Context(), companyID, filter)
	if err != nil {
		h.respondError(w, "list formulas", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"formulas":   formulas,
		"pagination": shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid formula id")
		return
	}
	var req updateFormulaRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Input", err.Error())
		return
	}

	input := UpdateInput{OutputQty: req.OutputQty, IsActive: req.IsActive, Note: req.Note}
	if req.Lines != nil {
		input.Lines = toComponentInputs(req.Lines)
	}
	formula, err := h.service.Update(r.Context(), companyID, id, input)
	if err != nil {
		h.respondError(w, "update formula", err)
		return
	}
	httpx.JSON(w, http.StatusOK, formula)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid formula id")
		return
	}
	if err := h.service.Delete(r.Context(), companyID, id); err != nil {
		h.respondError(w, "delete formula", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "formula not found")
	case errors.Is(err, ErrInvalidComponent), errors.Is(err, ErrNoComponents):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Input", err.Error())
	case errors.Is(err, ErrNumberConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toComponentInputs(lines []componentRequest) []ComponentInput {
	inputs := make([]ComponentInput, 0, len(lines))
	for _, line := range lines {
		inputs = append(inputs, ComponentInput{ItemID: line.ItemID, Quantity: line.Quantity, UnitCost: line.UnitCost})
	}
	return inputs
}
