package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian-erp/internal/bom"
	"github.com/meridian-erp/meridian-erp/internal/manufacturing"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/items"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/units"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	StockHandler         *stock.Handler
	FormulaHandler       *bom.Handler
	ManufacturingHandler *manufacturing.Handler
	ItemsHandler         *items.Handler
	WarehousesHandler    *warehouses.Handler
	UnitsHandler         *units.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.StockHandler != nil {
			r.Route("/stock", params.StockHandler.MountRoutes)
		}
		if params.FormulaHandler != nil {
			r.Route("/formulas", params.FormulaHandler.MountRoutes)
		}
		if params.ManufacturingHandler != nil {
			r.Route("/manufacturing", params.ManufacturingHandler.MountRoutes)
		}
		if params.ItemsHandler != nil {
			r.Route("/items", params.ItemsHandler.MountRoutes)
		}
		if params.WarehousesHandler != nil {
			r.Route("/warehouses", params.WarehousesHandler.MountRoutes)
		}
		if params.UnitsHandler != nil {
			r.Route("/units", params.UnitsHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
