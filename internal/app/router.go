package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hafsa-erp/hafsa-erp/internal/activity"
	"github.com/hafsa-erp/hafsa-erp/internal/auth"
	"github.com/hafsa-erp/hafsa-erp/internal/catalog"
	"github.com/hafsa-erp/hafsa-erp/internal/clients"
	"github.com/hafsa-erp/hafsa-erp/internal/observability"
	"github.com/hafsa-erp/hafsa-erp/internal/purchases"
	"github.com/hafsa-erp/hafsa-erp/internal/quotes"
	"github.com/hafsa-erp/hafsa-erp/internal/rbac"
	"github.com/hafsa-erp/hafsa-erp/internal/repairs"
	"github.com/hafsa-erp/hafsa-erp/internal/reports"
	"github.com/hafsa-erp/hafsa-erp/internal/sales"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
	"github.com/hafsa-erp/hafsa-erp/internal/suppliers"
	"github.com/hafsa-erp/hafsa-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	ClientsHandler   *clients.Handler
	SuppliersHandler *suppliers.Handler
	CatalogHandler   *catalog.Handler
	SalesHandler     *sales.Handler
	PurchasesHandler *purchases.Handler
	RepairsHandler   *repairs.Handler
	QuotesHandler    *quotes.Handler
	ActivityHandler  *activity.Handler
	ReportsHandler   *reports.Handler
	JobHandler       *jobs.Handler
	RBACMiddleware   rbac.Middleware
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	rb := params.RBACMiddleware

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Route("/clients", func(r chi.Router) {
			r.Use(rb.RequireAny(rbac.CapClientsView, rbac.CapClientsManage))
			params.ClientsHandler.MountRoutes(r)
		})
		r.Route("/suppliers", func(r chi.Router) {
			r.Use(rb.RequireAny(rbac.CapSuppliersView, rbac.CapSuppliersManage))
			params.SuppliersHandler.MountRoutes(r)
		})
		r.Route("/products", func(r chi.Router) {
			r.Use(rb.RequireAny(rbac.CapCatalogView, rbac.CapCatalogManage))
			params.CatalogHandler.MountRoutes(r)
		})
		r.Route("/invoices", func(r chi.Router) {
			r.Use(rb.RequireAny(rbac.CapSalesView, rbac.CapSalesCreate, rbac.CapSalesConfirm))
			params.SalesHandler.MountRoutes(r)
		})
		r.Route("/purchase-orders", func(r chi.Router) {
			r.Use(rb.RequireAny(rbac.CapPurchasesView, rbac.CapPurchasesManage))
			params.PurchasesHandler.MountRoutes(r)
		})
		r.Route("/repairs", func(r chi.Router) {
			r.Use(rb.RequireAny(rbac.CapRepairsView, rbac.CapRepairsManage))
			params.RepairsHandler.MountRoutes(r)
		})
		r.Route("/quotes", func(r chi.Router) {
			r.Use(rb.RequireAny(rbac.CapQuotesView, rbac.CapQuotesManage))
			params.QuotesHandler.MountRoutes(r)
		})
		r.Route("/activity", func(r chi.Router) {
			r.Use(rb.RequireAny(rbac.CapActivityView))
			params.ActivityHandler.MountRoutes(r)
		})
		r.Route("/reports", func(r chi.Router) {
			r.Use(rb.RequireAny(rbac.CapReportsView, rbac.CapReportsExport))
			params.ReportsHandler.MountRoutes(r)
		})
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(rb.RequireAny(rbac.CapUsersManage))
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
