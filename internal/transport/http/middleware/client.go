package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"hrportal/internal/domain/auth"
	"hrportal/internal/requestctx"
)

const ClientCookieName = "hr_portal_client"

var ErrNoClientHandle = errors.New("client handle middleware not installed")

type ClientCookieOptions struct {
	Secret string
	TTL    time.Duration
	Secure bool
}

type clientOptionsKey struct{}

// ClientHandle binds each browser to a client id carried in a signed
// cookie. A missing, expired or tampered cookie gets a fresh id, which means
// a fresh (anonymous) snapshot slot. Handlers replace the id with
// ReissueClient whenever the browser signs in or out.
func ClientHandle(opts ClientCookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if cookie, err := r.Cookie(ClientCookieName); err == nil {
				if claims, err := auth.ParseClientToken(opts.Secret, cookie.Value); err == nil {
					clientID = claims.ClientID
				}
			}

			if clientID == "" {
				clientID = NewClientID()
				if err := setClientCookie(w, opts, clientID); err != nil {
					GetLogger(r.Context()).Error().Err(err).Msg("issue client token failed")
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
			}

			ctx := requestctx.WithClientID(r.Context(), clientID)
			ctx = context.WithValue(ctx, clientOptionsKey{}, opts)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func NewClientID() string {
	return uuid.NewString()
}

// ReissueClient sends the browser a cookie for clientID, replacing the one
// it arrived with.
func ReissueClient(w http.ResponseWriter, r *http.Request, clientID string) error {
	opts, ok := r.Context().Value(clientOptionsKey{}).(ClientCookieOptions)
	if !ok {
		return ErrNoClientHandle
	}
	return setClientCookie(w, opts, clientID)
}

func setClientCookie(w http.ResponseWriter, opts ClientCookieOptions, clientID string) error {
	token, err := auth.GenerateClientToken(opts.Secret, clientID, opts.TTL)
	if err != nil {
		return err
	}
	dropClientCookie(w.Header())
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// dropClientCookie removes a client cookie already queued on this response,
// so a reissue replaces the one ClientHandle set for a new browser.
func dropClientCookie(h http.Header) {
	values := h.Values("Set-Cookie")
	if len(values) == 0 {
		return
	}
	h.Del("Set-Cookie")
	for _, v := range values {
		if !strings.HasPrefix(v, ClientCookieName+"=") {
			h.Add("Set-Cookie", v)
		}
	}
}
