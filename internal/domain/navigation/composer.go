package navigation

import (
	"net/url"
	"path"
	"strings"
	"unicode"

	"hrportal/internal/domain/auth"
	"hrportal/internal/domain/session"
)

type Entry struct {
	ID    RouteID `json:"id"`
	Path  string  `json:"path"`
	Label string  `json:"label"`
	Icon  string  `json:"icon"`
}

// Navigation lists the menu entries the role may use.
func Navigation(role auth.Role) []Entry {
	entries := []Entry{}
	for _, route := range routeTable {
		if !route.Menu || !CanAccess(role, route.ID) {
			continue
		}
		entries = append(entries, Entry{ID: route.ID, Path: route.Pattern, Label: route.Label, Icon: route.Icon})
	}
	return entries
}

type Outcome string

const (
	OutcomeLoading  Outcome = "loading"
	OutcomeRender   Outcome = "render"
	OutcomeRedirect Outcome = "redirect"
	OutcomeNotFound Outcome = "not_found"
)

type Resolution struct {
	Outcome  Outcome           `json:"outcome"`
	Route    *Route            `json:"-"`
	RouteID  RouteID           `json:"routeId,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Location string            `json:"location,omitempty"`
}

// Resolve decides what a request for target renders. target is a local URL
// reference; its query survives the trip through login. Anonymous access to
// a protected route redirects to login; an authenticated role without access
// gets not-found.
func Resolve(view session.View, target string) Resolution {
	if view.Loading() {
		return Resolution{Outcome: OutcomeLoading}
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return Resolution{Outcome: OutcomeNotFound}
	}
	cleaned := cleanPath(parsed.Path)
	route, params, ok := matchRoute(cleaned)
	if !ok {
		return Resolution{Outcome: OutcomeNotFound}
	}
	if route.Audience == AudiencePublic {
		return render(route, params)
	}

	current, authenticated := view.Current()
	if !authenticated {
		returnTo := (&url.URL{Path: cleaned, RawQuery: parsed.RawQuery}).String()
		return Resolution{Outcome: OutcomeRedirect, Location: LoginRedirect(returnTo)}
	}
	if !CanAccess(current.Role, route.ID) {
		return Resolution{Outcome: OutcomeNotFound}
	}
	return render(route, params)
}

func render(route Route, params map[string]string) Resolution {
	return Resolution{Outcome: OutcomeRender, Route: &route, RouteID: route.ID, Params: params}
}

func LoginRedirect(returnTo string) string {
	return LoginPath + "?returnTo=" + url.QueryEscape(returnTo)
}

// SafeReturnPath only lets local paths through so a crafted returnTo cannot
// send a freshly signed-in user to another host. Checks run on the decoded
// path and the result is encoded again.
func SafeReturnPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsFunc(raw, unsafeInPath) {
		return HomePath
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" || parsed.Opaque != "" {
		return HomePath
	}
	if strings.HasPrefix(parsed.Path, "//") || strings.ContainsFunc(parsed.Path, unsafeInPath) {
		return HomePath
	}
	cleaned := cleanPath(parsed.Path)
	if strings.HasPrefix(cleaned, "//") || cleaned == LoginPath || cleaned == RegisterPath {
		return HomePath
	}
	return (&url.URL{Path: cleaned, RawQuery: parsed.RawQuery}).String()
}

// unsafeInPath flags runes browsers rewrite or drop when following a
// Location header.
func unsafeInPath(r rune) bool {
	return r == '\\' || unicode.IsControl(r)
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
