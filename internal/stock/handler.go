package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for stock queries. The ledger is mutated only
// through movement-producing operations; there is no direct write endpoint.
type Handler struct {
	logger *slog.Logger
	ledger *Ledger
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, ledger *Ledger) *Handler {
	return &Handler{logger: logger, ledger: ledger}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balance", h.handleBalance)
	r.Get("/movements", h.handleMovements)
	r.Get("/movements/{id}", h.handleMovement)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	itemID, _ := strconv.ParseInt(r.URL.Query().Get("item_id"), 10, 64)
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	if itemID <= 0 || warehouseID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "item_id and warehouse_id are required")
		return
	}

	bal, err := h.ledger.GetBalance(r.Context(), companyID, itemID, warehouseID)
	if err != nil {
		h.logger.Error("get balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"item_id":      bal.ItemID,
		"warehouse_id": bal.WarehouseID,
		"quantity":     bal.Quantity,
		"reserved":     bal.Reserved,
		"available":    bal.Available,
	})
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	q := r.URL.Query()
	filter := MovementFilter{Type: MovementType(q.Get("type"))}
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}

	movements, err := h.ledger.Movements(r.Context(), companyID, filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements, "count": len(movements)})
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid movement id")
		return
	}
	movement, err := h.ledger.Movement(r.Context(), companyID, id)
	if err != nil {
		if errors.Is(err, ErrMovementNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "movement not found")
			return
		}
		h.logger.Error("get movement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movement)
}
