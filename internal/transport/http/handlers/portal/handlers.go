package portalhandler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"hrportal/internal/domain/navigation"
	"hrportal/internal/domain/session"
	"hrportal/internal/requestctx"
	"hrportal/internal/transport/http/middleware"
	"hrportal/internal/transport/http/shared"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageLoading  = "loading"
	pageLanding  = "landing"
	pageLogin    = "login"
	pageRegister = "register"
	pageShell    = "shell"
	pageNotFound = "notfound"
)

type ResolutionObserver interface {
	ObserveResolution(outcome string)
}

// Handler serves the server-rendered portal: every page request goes
// through navigation.Resolve, and the sign-in forms drive the caller's
// session provider.
type Handler struct {
	Registry        *session.Registry
	Observer        ResolutionObserver
	AllowSelfSignup bool
	pages           map[string]*template.Template
}

type formValues struct {
	Email    string
	FullName string
	Avatar   string
	ReturnTo string
}

type pageData struct {
	Title       string
	User        *session.Session
	Menu        []navigation.Entry
	ActivePath  string
	Params      map[string]string
	Notice      string
	DismissURL  string
	Form        formValues
	Submitting  bool
	AllowSignup bool
}

func NewHandler(registry *session.Registry, observer ResolutionObserver, allowSelfSignup bool) (*Handler, error) {
	pages := map[string]*template.Template{}
	for _, name := range []string{pageLoading, pageLanding, pageLogin, pageRegister, pageShell, pageNotFound} {
		tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Handler{Registry: registry, Observer: observer, AllowSelfSignup: allowSelfSignup, pages: pages}, nil
}

func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Post("/logout", h.HandleLogout)
	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/login", h.HandleLogin)
		r.Post("/register", h.HandleRegister)
	})
	r.Get("/", h.HandlePage)
	r.Get("/*", h.HandlePage)
}

func (h *Handler) provider(r *http.Request) *session.Provider {
	return h.Registry.Get(r.Context(), requestctx.GetClientID(r.Context()))
}

func (h *Handler) HandlePage(w http.ResponseWriter, r *http.Request) {
	p := h.provider(r)
	res := navigation.Resolve(p, r.URL.RequestURI())
	if h.Observer != nil {
		h.Observer.ObserveResolution(string(res.Outcome))
	}
	w.Header().Set("Cache-Control", "no-store")

	switch res.Outcome {
	case navigation.OutcomeLoading:
		h.render(w, r, http.StatusOK, pageLoading, pageData{Title: "Loading"})
	case navigation.OutcomeRedirect:
		http.Redirect(w, r, res.Location, http.StatusFound)
	case navigation.OutcomeNotFound:
		data := h.baseData(p, r.URL.Path)
		data.Title = "Page not found"
		h.render(w, r, http.StatusNotFound, pageNotFound, data)
	default:
		h.renderRoute(w, r, p, res)
	}
}

func (h *Handler) renderRoute(w http.ResponseWriter, r *http.Request, p *session.Provider, res navigation.Resolution) {
	data := h.baseData(p, r.URL.Path)
	data.Title = res.Route.Label
	data.Params = res.Params

	switch res.RouteID {
	case navigation.RouteLanding:
		h.render(w, r, http.StatusOK, pageLanding, data)
	case navigation.RouteLogin, navigation.RouteRegister:
		returnTo := r.URL.Query().Get("returnTo")
		if data.User != nil {
			http.Redirect(w, r, navigation.SafeReturnPath(returnTo), http.StatusFound)
			return
		}
		data.Form.ReturnTo = returnTo
		page := pageLogin
		if res.RouteID == navigation.RouteRegister {
			page = pageRegister
			if !h.AllowSelfSignup {
				data.Notice = "Self-service registration is disabled. Ask HR for an account."
			}
		}
		h.render(w, r, http.StatusOK, page, data)
	default:
		h.render(w, r, http.StatusOK, pageShell, data)
	}
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.formError(w, r, pageLogin, http.StatusBadRequest, "The form could not be read.", formValues{})
		return
	}
	form := formValues{
		Email:    strings.TrimSpace(r.PostForm.Get("email")),
		ReturnTo: r.PostForm.Get("returnTo"),
	}

	p := h.provider(r)
	next := shared.NewClientSwitch(r)
	_, err := p.Login(r.Context(), form.Email, r.PostForm.Get("password"), session.WithOTP(r.PostForm.Get("mfaCode")), next.Target())
	if err == nil {
		err = next.Commit(w, r, h.Registry)
	}
	if err != nil {
		h.fail(w, r, pageLogin, err, form)
		return
	}
	http.Redirect(w, r, navigation.SafeReturnPath(form.ReturnTo), http.StatusSeeOther)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !h.AllowSelfSignup {
		h.formError(w, r, pageRegister, http.StatusForbidden, "Self-service registration is disabled. Ask HR for an account.", formValues{})
		return
	}
	if err := r.ParseForm(); err != nil {
		h.formError(w, r, pageRegister, http.StatusBadRequest, "The form could not be read.", formValues{})
		return
	}
	form := formValues{
		FullName: strings.TrimSpace(r.PostForm.Get("fullName")),
		Email:    strings.TrimSpace(r.PostForm.Get("email")),
		Avatar:   strings.TrimSpace(r.PostForm.Get("avatar")),
	}

	p := h.provider(r)
	next := shared.NewClientSwitch(r)
	_, err := p.Register(r.Context(), session.Profile{
		FullName: form.FullName,
		Email:    form.Email,
		Password: r.PostForm.Get("password"),
		Avatar:   form.Avatar,
	}, next.Target())
	if err == nil {
		err = next.Commit(w, r, h.Registry)
	}
	if err != nil {
		h.fail(w, r, pageRegister, err, form)
		return
	}
	http.Redirect(w, r, navigation.HomePath, http.StatusSeeOther)
}

// HandleLogout always lands on the login page with a fresh client handle;
// a snapshot that could not be deleted is logged, the in-memory session is
// gone either way.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.provider(r).Logout(r.Context()); err != nil {
		middleware.GetLogger(r.Context()).Error().Err(err).Msg("logout left a snapshot behind")
	}
	if err := shared.ReleaseClient(w, r, h.Registry); err != nil {
		middleware.GetLogger(r.Context()).Error().Err(err).Msg("client handle not reissued after logout")
	}
	http.Redirect(w, r, navigation.LoginPath, http.StatusSeeOther)
}

// RejectForm answers a rate-limited form post with the form and a notice.
func (h *Handler) RejectForm(w http.ResponseWriter, r *http.Request) {
	page := pageLogin
	if r.URL.Path == navigation.RegisterPath {
		page = pageRegister
	}
	h.formError(w, r, page, http.StatusTooManyRequests, "Too many attempts. Please wait a moment and try again.", formValues{})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, page string, err error, form formValues) {
	failure := shared.Classify(err)
	if failure.Status >= http.StatusInternalServerError {
		middleware.GetLogger(r.Context()).Error().Err(err).Msg("session operation failed")
	}
	notice := failure.Message
	if failure.Code == "validation_error" || failure.Code == "invalid_credentials" {
		notice = capitalize(notice) + "."
	}
	h.formError(w, r, page, failure.Status, notice, form)
}

func (h *Handler) formError(w http.ResponseWriter, r *http.Request, page string, status int, notice string, form formValues) {
	p := h.provider(r)
	data := h.baseData(p, r.URL.Path)
	data.Title = "Sign in"
	if page == pageRegister {
		data.Title = "Create account"
	}
	data.Notice = notice
	data.Form = form
	w.Header().Set("Cache-Control", "no-store")
	h.render(w, r, status, page, data)
}

func (h *Handler) baseData(p *session.Provider, path string) pageData {
	data := pageData{
		ActivePath:  path,
		Submitting:  p.Loading(),
		AllowSignup: h.AllowSelfSignup,
		Menu:        []navigation.Entry{},
	}
	if current, ok := p.Current(); ok {
		data.User = &current
		data.Menu = navigation.Navigation(current.Role)
	}
	data.DismissURL = path
	return data
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	if data.Form.ReturnTo != "" && data.DismissURL == navigation.LoginPath {
		data.DismissURL = navigation.LoginPath + "?returnTo=" + url.QueryEscape(data.Form.ReturnTo)
	}
	var buf bytes.Buffer
	if err := h.pages[page].ExecuteTemplate(&buf, "base", data); err != nil {
		middleware.GetLogger(r.Context()).Error().Err(err).Str("page", page).Msg("render page failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
