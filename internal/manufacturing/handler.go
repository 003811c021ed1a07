package manufacturing

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

// Handler wires HTTP endpoints for manufacturing runs.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the manufacturing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers manufacturing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/execute", h.handleExecute)
	r.Get("/{id}", h.handleGet)
}

type executeRequest struct {
	FormulaID           int64           `json:"formula_id" validate:"required,gt=0"`
	RawWarehouseID      int64           `json:"raw_warehouse_id" validate:"required,gt=0"`
	FinishedWarehouseID int64           `json:"finished_warehouse_id" validate:"required,gt=0"`
	Quantity            decimal.Decimal `json:"quantity" validate:"required"`
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	var req executeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Input", err.Error())
		return
	}

	actorID := shared.ActorFromContext(r.Context())
	result, err := h.service.Execute(r.Context(), ExecuteCommand{
		CompanyID:           companyID,
		FormulaID:           req.FormulaID,
		RawWarehouseID:      req.RawWarehouseID,
		FinishedWarehouseID: req.FinishedWarehouseID,
		Quantity:            req.Quantity,
		ActorID:             actorID,
		IdempotencyKey:      r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, "execute manufacturing", err)
		return
	}
	status := http.StatusCreated
	if result.Status == StatusRejected {
		// A shortage rejection is a complete answer, not a server fault.
		status = http.StatusUnprocessableEntity
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid process id")
		return
	}
	process, err := h.service.Get(r.Context(), companyID, id)
	if err != nil {
		h.respondError(w, "get process", err)
		return
	}
	httpx.JSON(w, http.StatusOK, process)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	q := r.URL.Query()
	filter := ProcessFilter{Status: ProcessStatus(q.Get("status"))}
	filter.FormulaID, _ = strconv.ParseInt(q.Get("formula_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	processes, total, err := h.service.List(r.Context(), companyID, filter)
	if err != nil {
		h.respondError(w, "list processes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"processes":  processes,
		"pagination": shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrProcessNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "process not found")
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Input", err.Error())
	case errors.Is(err, ErrConcurrencyConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
