package sessionhandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrportal/internal/domain/navigation"
	"hrportal/internal/domain/session"
	"hrportal/internal/requestctx"
	"hrportal/internal/transport/http/api"
	"hrportal/internal/transport/http/middleware"
	"hrportal/internal/transport/http/shared"
)

type ResolutionObserver interface {
	ObserveResolution(outcome string)
}

type Handler struct {
	Registry        *session.Registry
	Observer        ResolutionObserver
	AllowSelfSignup bool
}

func NewHandler(registry *session.Registry, observer ResolutionObserver, allowSelfSignup bool) *Handler {
	return &Handler{Registry: registry, Observer: observer, AllowSelfSignup: allowSelfSignup}
}

// RegisterRoutes mounts the read endpoints on r and the credential
// endpoints on a group wrapped by limit, which may be nil.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Get("/session", h.HandleGetSession)
	r.Post("/session/logout", h.HandleLogout)
	r.Get("/navigation", h.HandleNavigation)
	r.Get("/routes/resolve", h.HandleResolve)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/session/login", h.HandleLogin)
		r.Post("/session/register", h.HandleRegister)
	})
}

type sessionState struct {
	Phase         session.Phase    `json:"phase"`
	Loading       bool             `json:"loading"`
	Authenticated bool             `json:"authenticated"`
	User          *session.Session `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfaCode" validate:"omitempty,len=6,numeric"`
}

type registerRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Avatar   string `json:"avatar"`
}

func (h *Handler) provider(r *http.Request) *session.Provider {
	return h.Registry.Get(r.Context(), requestctx.GetClientID(r.Context()))
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	api.Success(w, stateOf(h.provider(r)), requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := requestctx.GetRequestID(r.Context())
	var payload loginRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, reqID) {
		return
	}

	p := h.provider(r)
	next := shared.NewClientSwitch(r)
	if _, err := p.Login(r.Context(), payload.Email, payload.Password, session.WithOTP(payload.MFACode), next.Target()); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := next.Commit(w, r, h.Registry); err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, stateOf(p), reqID)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	reqID := requestctx.GetRequestID(r.Context())
	if !h.AllowSelfSignup {
		api.Fail(w, http.StatusForbidden, "signup_disabled", "self-service registration is disabled", reqID)
		return
	}
	var payload registerRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}

	p := h.provider(r)
	next := shared.NewClientSwitch(r)
	_, err := p.Register(r.Context(), session.Profile{
		FullName: payload.FullName,
		Email:    payload.Email,
		Password: payload.Password,
		Avatar:   payload.Avatar,
	}, next.Target())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := next.Commit(w, r, h.Registry); err != nil {
		h.fail(w, r, err)
		return
	}
	api.Created(w, stateOf(p), reqID)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	reqID := requestctx.GetRequestID(r.Context())
	p := h.provider(r)
	err := p.Logout(r.Context())
	if releaseErr := shared.ReleaseClient(w, r, h.Registry); releaseErr != nil {
		middleware.GetLogger(r.Context()).Error().Err(releaseErr).Msg("client handle not reissued after logout")
	}
	if err != nil {
		middleware.GetLogger(r.Context()).Error().Err(err).Msg("logout left a snapshot behind")
		api.Fail(w, http.StatusInternalServerError, "logout_incomplete", "signed out here, but the saved session could not be removed", reqID)
		return
	}
	api.Success(w, map[string]any{
		"status":   "logged_out",
		"location": navigation.LoginPath,
	}, reqID)
}

func (h *Handler) HandleNavigation(w http.ResponseWriter, r *http.Request) {
	p := h.provider(r)
	entries := []navigation.Entry{}
	if current, ok := p.Current(); ok {
		entries = navigation.Navigation(current.Role)
	}
	api.Success(w, map[string]any{
		"loading": p.Loading(),
		"entries": entries,
	}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	reqID := requestctx.GetRequestID(r.Context())
	target := r.URL.Query().Get("path")
	if target == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "path query parameter is required", reqID)
		return
	}
	resolution := navigation.Resolve(h.provider(r), target)
	if h.Observer != nil {
		h.Observer.ObserveResolution(string(resolution.Outcome))
	}
	api.Success(w, resolution, reqID)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	failure := shared.Classify(err)
	if failure.Status >= http.StatusInternalServerError {
		middleware.GetLogger(r.Context()).Error().Err(err).Msg("session operation failed")
	}
	api.Fail(w, failure.Status, failure.Code, failure.Message, requestctx.GetRequestID(r.Context()))
}

func stateOf(v session.View) sessionState {
	state := sessionState{
		Phase:   v.Phase(),
		Loading: v.Loading(),
	}
	if current, ok := v.Current(); ok {
		state.Authenticated = true
		state.User = &current
	}
	return state
}
