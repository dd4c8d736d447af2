// Package permission implements the flat category.verb capability
// model. Role grants are stored per company, with an all-zeros
// company id row holding the global defaults. ADMIN is a static
// bypass and never hits the store.
package permission

// Permission strings. Keep alphabetical within each category.
const (
	CashDrawerEdit   = "cash_drawer.edit"
	CashDrawerExport = "cash_drawer.export"
	CashDrawerReview = "cash_drawer.review"
	CashDrawerView   = "cash_drawer.view"

	CompanyManage = "company.manage"
	CompanyView   = "company.view"

	EmployeesManage = "employees.manage"
	EmployeesView   = "employees.view"

	LeaveManage  = "leave.manage"
	LeaveRequest = "leave.request"
	LeaveView    = "leave.view"

	PayrollFinalize = "payroll.finalize"
	PayrollGenerate = "payroll.generate"
	PayrollView     = "payroll.view"
	PayrollVoid     = "payroll.void"

	ScheduleManage = "schedule.manage"
	ScheduleView   = "schedule.view"

	TimeEntriesDelete       = "time_entries.delete"
	TimeEntriesEdit         = "time_entries.edit"
	TimeEntriesManualCreate = "time_entries.manual_create"
	TimeEntriesView         = "time_entries.view"
)

// All lists every known permission.
var All = []string{
	CashDrawerEdit,
	CashDrawerExport,
	CashDrawerReview,
	CashDrawerView,
	CompanyManage,
	CompanyView,
	EmployeesManage,
	EmployeesView,
	LeaveManage,
	LeaveRequest,
	LeaveView,
	PayrollFinalize,
	PayrollGenerate,
	PayrollView,
	PayrollVoid,
	ScheduleManage,
	ScheduleView,
	TimeEntriesDelete,
	TimeEntriesEdit,
	TimeEntriesManualCreate,
	TimeEntriesView,
}

// GlobalDefaults are the permissions seeded into the sentinel-company
// role_permissions rows for non-admin roles. MAINTENANCE mirrors
// DEVELOPER minus payroll; FRONTDESK and HOUSEKEEPING are self-service.
var GlobalDefaults = map[string][]string{
	"DEVELOPER": {
		CashDrawerView, CashDrawerReview, CashDrawerEdit, CashDrawerExport,
		CompanyView,
		EmployeesView, EmployeesManage,
		LeaveView, LeaveManage, LeaveRequest,
		PayrollView, PayrollGenerate, PayrollFinalize, PayrollVoid,
		ScheduleView, ScheduleManage,
		TimeEntriesView, TimeEntriesEdit, TimeEntriesDelete, TimeEntriesManualCreate,
	},
	"MAINTENANCE": {
		CompanyView,
		LeaveView, LeaveRequest,
		ScheduleView,
		TimeEntriesView,
	},
	"FRONTDESK": {
		CompanyView,
		LeaveView, LeaveRequest,
		ScheduleView,
		TimeEntriesView,
	},
	"HOUSEKEEPING": {
		CompanyView,
		LeaveView, LeaveRequest,
		ScheduleView,
		TimeEntriesView,
	},
}

// IsKnown reports whether perm is in the catalog.
func IsKnown(perm string) bool {
	for _, p := range All {
		if p == perm {
			return true
		}
	}
	return false
}
