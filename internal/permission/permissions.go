// Package permission evaluates privileged-operation access against a fixed,
// compile-time role table. This is deliberately not a policy language: every
// permission check in the codebase is statically enumerable, which is what
// makes the trail auditable.
package permission

import "veloeats.org/internal/auth"

// Permission is an atomic capability an admin role may hold.
type Permission string

const (
	PermDashboardView Permission = "dashboard.view"

	PermAnalyticsView   Permission = "analytics.view"
	PermAnalyticsExport Permission = "analytics.export"

	PermKYCView    Permission = "kyc.view"
	PermKYCApprove Permission = "kyc.approve"
	PermKYCReject  Permission = "kyc.reject"

	PermDocumentsView Permission = "documents.view"

	PermPayoutsView    Permission = "payouts.view"
	PermPayoutsProcess Permission = "payouts.process"
	PermPayoutsRetry   Permission = "payouts.retry"

	PermCommissionsView   Permission = "commissions.view"
	PermCommissionsManage Permission = "commissions.manage"

	PermRefundsProcess Permission = "refunds.process"

	PermSupportTicketsView   Permission = "support.tickets.view"
	PermSupportTicketsManage Permission = "support.tickets.manage"

	PermUsersView   Permission = "users.view"
	PermUsersManage Permission = "users.manage"
	PermUsersBlock  Permission = "users.block"

	PermDriversView   Permission = "drivers.view"
	PermDriversManage Permission = "drivers.manage"

	PermRestaurantsView   Permission = "restaurants.view"
	PermRestaurantsManage Permission = "restaurants.manage"

	PermFraudEventsView  Permission = "fraud.events.view"
	PermFraudDevicesView Permission = "fraud.devices.view"
	PermFraudRulesManage Permission = "fraud.rules.manage"

	PermAuditView   Permission = "audit.view"
	PermAuditExport Permission = "audit.export"

	PermImpersonationStart Permission = "impersonation.start"
	PermImpersonationView  Permission = "impersonation.view"

	PermConfigView   Permission = "config.view"
	PermConfigManage Permission = "config.manage"

	PermAdminsManage Permission = "admins.manage"
)

// All lists every permission in the table.
var All = []Permission{
	PermDashboardView,
	PermAnalyticsView, PermAnalyticsExport,
	PermKYCView, PermKYCApprove, PermKYCReject,
	PermDocumentsView,
	PermPayoutsView, PermPayoutsProcess, PermPayoutsRetry,
	PermCommissionsView, PermCommissionsManage,
	PermRefundsProcess,
	PermSupportTicketsView, PermSupportTicketsManage,
	PermUsersView, PermUsersManage, PermUsersBlock,
	PermDriversView, PermDriversManage,
	PermRestaurantsView, PermRestaurantsManage,
	PermFraudEventsView, PermFraudDevicesView, PermFraudRulesManage,
	PermAuditView, PermAuditExport,
	PermImpersonationStart, PermImpersonationView,
	PermConfigView, PermConfigManage,
	PermAdminsManage,
}

func set(perms ...Permission) map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		m[p] = struct{}{}
	}
	return m
}

func allSet() map[Permission]struct{} {
	return set(All...)
}

// rolePermissions is the closed Role → Set<Permission> mapping.
var rolePermissions = map[auth.AdminRole]map[Permission]struct{}{
	auth.AdminRoleSuper: allSet(),

	auth.AdminRoleCompliance: set(
		PermDashboardView,
		PermAnalyticsView,
		PermKYCView, PermKYCApprove, PermKYCReject,
		PermDocumentsView,
		PermUsersView, PermDriversView, PermRestaurantsView,
		PermFraudEventsView, PermFraudDevicesView, PermFraudRulesManage,
		PermAuditView, PermAuditExport,
	),

	auth.AdminRoleSupport: set(
		PermDashboardView,
		PermSupportTicketsView, PermSupportTicketsManage,
		PermUsersView, PermDriversView, PermRestaurantsView,
		PermDocumentsView,
		PermImpersonationStart, PermImpersonationView,
	),

	auth.AdminRoleFinance: set(
		PermDashboardView,
		PermAnalyticsView, PermAnalyticsExport,
		PermPayoutsView, PermPayoutsProcess, PermPayoutsRetry,
		PermCommissionsView, PermCommissionsManage,
		PermRefundsProcess,
		PermAuditView,
	),

	auth.AdminRoleReadonly: set(
		PermDashboardView,
		PermAnalyticsView,
		PermKYCView,
		PermDocumentsView,
		PermPayoutsView,
		PermCommissionsView,
		PermSupportTicketsView,
		PermUsersView, PermDriversView, PermRestaurantsView,
		PermFraudEventsView, PermFraudDevicesView,
		PermAuditView,
		PermImpersonationView,
		PermConfigView,
	),
}
