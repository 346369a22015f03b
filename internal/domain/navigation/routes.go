package navigation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type RouteID string

const (
	RouteLanding  RouteID = "landing"
	RouteLogin    RouteID = "login"
	RouteRegister RouteID = "register"

	RouteDashboard RouteID = "dashboard"
	RouteSettings  RouteID = "settings"

	RouteEmployees      RouteID = "employees"
	RouteEmployeeDetail RouteID = "employee_detail"
	RouteDepartments    RouteID = "departments"
	RouteDesignations   RouteID = "designations"
	RouteLeaveApprovals RouteID = "leave"
	RouteAttendance     RouteID = "attendance"
	RoutePayroll        RouteID = "payroll"
	RouteRecruitment    RouteID = "recruitment"
	RouteJobs           RouteID = "jobs"
	RoutePerformance    RouteID = "performance"
	RouteHolidays       RouteID = "holidays"

	RouteMyProfile     RouteID = "my_profile"
	RouteMyLeaves      RouteID = "my_leaves"
	RouteMyAttendance  RouteID = "my_attendance"
	RouteMyDocuments   RouteID = "my_documents"
	RouteMyPayslips    RouteID = "my_payslips"
	RouteMyPerformance RouteID = "my_performance"
	RouteHelpDesk      RouteID = "help_desk"
)

// Audience is the role-visibility predicate of a route.
type Audience int

const (
	AudiencePublic Audience = iota
	AudienceAuthenticated
	AudienceEmployee
	AudienceElevated
)

func (a Audience) String() string {
	switch a {
	case AudiencePublic:
		return "public"
	case AudienceAuthenticated:
		return "authenticated"
	case AudienceEmployee:
		return "employee"
	case AudienceElevated:
		return "elevated"
	default:
		return "unknown"
	}
}

type Route struct {
	ID       RouteID
	Pattern  string
	Label    string
	Icon     string
	Audience Audience
	// Menu marks routes offered as navigation entries.
	Menu bool
}

const (
	LandingPath  = "/"
	LoginPath    = "/login"
	RegisterPath = "/register"
	HomePath     = "/dashboard"
)

var routeTable = []Route{
	{ID: RouteLanding, Pattern: LandingPath, Label: "Welcome", Audience: AudiencePublic},
	{ID: RouteLogin, Pattern: LoginPath, Label: "Sign in", Audience: AudiencePublic},
	{ID: RouteRegister, Pattern: RegisterPath, Label: "Create account", Audience: AudiencePublic},

	{ID: RouteDashboard, Pattern: HomePath, Label: "Dashboard", Icon: "layout-dashboard", Audience: AudienceAuthenticated},
	{ID: RouteSettings, Pattern: "/dashboard/settings", Label: "Settings", Icon: "settings", Audience: AudienceAuthenticated},

	{ID: RouteEmployees, Pattern: "/dashboard/employees", Label: "Employees", Icon: "users", Audience: AudienceElevated, Menu: true},
	{ID: RouteEmployeeDetail, Pattern: "/dashboard/employees/{id}", Label: "Employee Profile", Icon: "user", Audience: AudienceElevated},
	{ID: RouteDepartments, Pattern: "/dashboard/departments", Label: "Departments", Icon: "building-2", Audience: AudienceElevated, Menu: true},
	{ID: RouteDesignations, Pattern: "/dashboard/designations", Label: "Designations", Icon: "badge-check", Audience: AudienceElevated, Menu: true},
	{ID: RouteLeaveApprovals, Pattern: "/dashboard/leave", Label: "Leave Management", Icon: "calendar", Audience: AudienceElevated, Menu: true},
	{ID: RouteAttendance, Pattern: "/dashboard/attendance", Label: "Attendance", Icon: "clipboard-check", Audience: AudienceElevated, Menu: true},
	{ID: RoutePayroll, Pattern: "/dashboard/payroll", Label: "Payroll", Icon: "dollar-sign", Audience: AudienceElevated, Menu: true},
	{ID: RouteRecruitment, Pattern: "/dashboard/recruitment", Label: "Recruitment", Icon: "briefcase", Audience: AudienceElevated, Menu: true},
	{ID: RouteJobs, Pattern: "/dashboard/jobs", Label: "Jobs", Icon: "file-text", Audience: AudienceElevated, Menu: true},
	{ID: RoutePerformance, Pattern: "/dashboard/performance", Label: "Performance", Icon: "award", Audience: AudienceElevated, Menu: true},
	{ID: RouteHolidays, Pattern: "/dashboard/holidays", Label: "Holidays", Icon: "calendar-days", Audience: AudienceElevated, Menu: true},

	{ID: RouteMyProfile, Pattern: "/dashboard/my-profile", Label: "My Profile", Icon: "user", Audience: AudienceEmployee, Menu: true},
	{ID: RouteMyLeaves, Pattern: "/dashboard/my-leaves", Label: "My Leaves", Icon: "calendar", Audience: AudienceEmployee, Menu: true},
	{ID: RouteMyAttendance, Pattern: "/dashboard/my-attendance", Label: "My Attendance", Icon: "clipboard-check", Audience: AudienceEmployee, Menu: true},
	{ID: RouteMyDocuments, Pattern: "/dashboard/my-documents", Label: "My Documents", Icon: "folder-open", Audience: AudienceEmployee, Menu: true},
	{ID: RouteMyPayslips, Pattern: "/dashboard/my-payslips", Label: "My Payslips", Icon: "receipt", Audience: AudienceEmployee, Menu: true},
	{ID: RouteMyPerformance, Pattern: "/dashboard/my-performance", Label: "My Performance", Icon: "award", Audience: AudienceEmployee, Menu: true},
	{ID: RouteHelpDesk, Pattern: "/dashboard/help-desk", Label: "Help Desk", Icon: "life-buoy", Audience: AudienceEmployee, Menu: true},
}

var routesByID = func() map[RouteID]Route {
	byID := make(map[RouteID]Route, len(routeTable))
	for _, route := range routeTable {
		byID[route.ID] = route
	}
	return byID
}()

var routesByPattern = func() map[string]Route {
	byPattern := make(map[string]Route, len(routeTable))
	for _, route := range routeTable {
		byPattern[route.Pattern] = route
	}
	return byPattern
}()

// routeMux is only ever searched with Find, never served; it gives the
// route table the same matching rules as the HTTP router.
var routeMux = func() *chi.Mux {
	mux := chi.NewRouter()
	for _, route := range routeTable {
		mux.Get(route.Pattern, http.NotFound)
	}
	return mux
}()

func matchRoute(p string) (Route, map[string]string, bool) {
	rctx := chi.NewRouteContext()
	route, ok := routesByPattern[routeMux.Find(rctx, http.MethodGet, p)]
	if !ok {
		return Route{}, nil, false
	}
	var params map[string]string
	for i, key := range rctx.URLParams.Keys {
		if params == nil {
			params = make(map[string]string, len(rctx.URLParams.Keys))
		}
		params[key] = rctx.URLParams.Values[i]
	}
	return route, params, true
}

// Routes returns a copy of the route table in declaration order.
func Routes() []Route {
	return append([]Route(nil), routeTable...)
}

func Lookup(id RouteID) (Route, bool) {
	route, ok := routesByID[id]
	return route, ok
}
