package shared

import (
	"net/http"

	"hrportal/internal/domain/session"
	"hrportal/internal/requestctx"
	"hrportal/internal/transport/http/middleware"
)

// ClientSwitch moves a browser to a new client id when it signs in, so a
// client cookie obtained before sign-in never reaches the signed-in Session.
type ClientSwitch struct {
	From string
	To   string
}

func NewClientSwitch(r *http.Request) ClientSwitch {
	return ClientSwitch{From: requestctx.GetClientID(r.Context()), To: middleware.NewClientID()}
}

// Target is the sign-in option that persists the Session under the new id.
func (c ClientSwitch) Target() session.SignInOption {
	return session.MoveTo(session.SlotFor(c.To))
}

// Commit re-keys the provider and sends the browser its new cookie. Call it
// only after the sign-in succeeded.
func (c ClientSwitch) Commit(w http.ResponseWriter, r *http.Request, registry *session.Registry) error {
	registry.Move(c.From, c.To)
	return middleware.ReissueClient(w, r, c.To)
}

// ReleaseClient detaches the browser from its provider after sign-out and
// hands it a fresh client id.
func ReleaseClient(w http.ResponseWriter, r *http.Request, registry *session.Registry) error {
	registry.Forget(requestctx.GetClientID(r.Context()))
	return middleware.ReissueClient(w, r, middleware.NewClientID())
}
