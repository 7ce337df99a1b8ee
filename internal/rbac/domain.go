// Package rbac implements capability-based authorization. Capabilities
// form a closed set checked through an explicit lookup, never a runtime
// attribute probe that can silently be undefined.
package rbac

// Capability names a single permitted operation group.
type Capability string

const (
	CapClientsView    Capability = "clients.view"
	CapClientsManage  Capability = "clients.manage"
	CapSuppliersView  Capability = "suppliers.view"
	CapSuppliersManage Capability = "suppliers.manage"
	CapCatalogView    Capability = "catalog.view"
	CapCatalogManage  Capability = "catalog.manage"
	CapSalesView      Capability = "sales.view"
	CapSalesCreate    Capability = "sales.create"
	CapSalesConfirm   Capability = "sales.confirm"
	CapSalesCancel    Capability = "sales.cancel"
	CapPaymentsRecord Capability = "payments.record"
	CapPurchasesView  Capability = "purchases.view"
	CapPurchasesManage Capability = "purchases.manage"
	CapRepairsView    Capability = "repairs.view"
	CapRepairsManage  Capability = "repairs.manage"
	CapQuotesView     Capability = "quotes.view"
	CapQuotesManage   Capability = "quotes.manage"
	CapReportsView    Capability = "reports.view"
	CapReportsExport  Capability = "reports.export"
	CapActivityView   Capability = "activity.view"
	CapUsersManage    Capability = "users.manage"
)

// Role groups capabilities. Roles are stored per user; the capability set
// per role is fixed in code.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleSeller  Role = "SELLER"
)

var allCapabilities = []Capability{
	CapClientsView, CapClientsManage,
	CapSuppliersView, CapSuppliersManage,
	CapCatalogView, CapCatalogManage,
	CapSalesView, CapSalesCreate, CapSalesConfirm, CapSalesCancel,
	CapPaymentsRecord,
	CapPurchasesView, CapPurchasesManage,
	CapRepairsView, CapRepairsManage,
	CapQuotesView, CapQuotesManage,
	CapReportsView, CapReportsExport,
	CapActivityView,
	CapUsersManage,
}

var roleCapabilities = map[Role][]Capability{
	RoleAdmin: allCapabilities,
	RoleManager: {
		CapClientsView, CapClientsManage,
		CapSuppliersView, CapSuppliersManage,
		CapCatalogView, CapCatalogManage,
		CapSalesView, CapSalesCreate, CapSalesConfirm, CapSalesCancel,
		CapPaymentsRecord,
		CapPurchasesView, CapPurchasesManage,
		CapRepairsView, CapRepairsManage,
		CapQuotesView, CapQuotesManage,
		CapReportsView, CapReportsExport,
		CapActivityView,
	},
	RoleSeller: {
		CapClientsView, CapClientsManage,
		CapCatalogView,
		CapSalesView, CapSalesCreate,
		CapPaymentsRecord,
		CapRepairsView, CapRepairsManage,
		CapQuotesView, CapQuotesManage,
	},
}

// CapabilitiesFor returns the capability set granted to a role. Unknown
// roles get nothing.
func CapabilitiesFor(role Role) map[Capability]struct{} {
	caps, ok := roleCapabilities[role]
	if !ok {
		return map[Capability]struct{}{}
	}
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// ValidRole reports whether the role belongs to the closed set.
func ValidRole(role Role) bool {
	_, ok := roleCapabilities[role]
	return ok
}
