package guard

import (
	"net/http"
	"net/url"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

var denialMessages = map[Outcome]string{
	OutcomeUnauthenticated: "authentication required",
	OutcomeNeedsWorkspace:  "select or create a workspace to continue",
	OutcomeMisconfigured:   "your workspace access is misconfigured, contact the workspace owner",
	OutcomeForbidden:       "you do not have permission to perform this action",
	OutcomeInvalid:         "malformed workspace id",
}

var denialCodes = map[Outcome]string{
	OutcomeUnauthenticated: httputil.CodeUnauthenticated,
	OutcomeNeedsWorkspace:  httputil.CodeNeedsWorkspace,
	OutcomeMisconfigured:   httputil.CodeMisconfigured,
	OutcomeForbidden:       httputil.CodeForbidden,
	OutcomeInvalid:         httputil.CodeValidation,
}

// Middleware enforces Evaluate's decision. Allowed requests are forwarded
// with the principal in their context and trusted identity headers; all
// others are answered here and never reach next.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// next only sees the cleaned path the request was classified under
		if p := cleanPath(r.URL.Path); p != r.URL.Path {
			u := *r.URL
			u.Path = p
			u.RawPath = ""
			http.Redirect(w, r, u.RequestURI(), http.StatusMovedPermanently)
			return
		}

		stripIdentityHeaders(r.Header)

		raw, _, credErr := auth.ExtractCredential(r, g.cookies)
		d := g.Evaluate(r.Context(), Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			CallbackURL:   r.URL.RequestURI(),
			Credential:    raw,
			CredentialErr: credErr,
		})

		if d.Allowed() {
			if d.Principal != nil {
				injectIdentityHeaders(r.Header, d.Principal)
				r = r.WithContext(WithPrincipal(r.Context(), d.Principal))
			}
			next.ServeHTTP(w, r)
			return
		}

		g.deny(w, r, d)
	})
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, d Decision) {
	if d.Outcome == OutcomeError {
		observability.FromContext(r.Context()).
			WithError(d.Err).
			WithField("path", r.URL.Path).
			Error("Access decision failed")
	}

	if d.Route.Rule.API {
		if d.Outcome == OutcomeError {
			httputil.WriteInternalError(w)
			return
		}
		reason := d.Reason
		if d.Outcome == OutcomeUnauthenticated {
			reason = ""
		}
		httputil.WriteErrorResponse(w, d.Status(), denialCodes[d.Outcome], denialMessages[d.Outcome], reason)
		return
	}

	http.Redirect(w, r, g.redirectTarget(d), http.StatusFound)
}

// redirectTarget is where a denied page request is sent
func (g *Guard) redirectTarget(d Decision) string {
	switch d.Outcome {
	case OutcomeUnauthenticated:
		return g.signInPath + "?callbackUrl=" + url.QueryEscape(d.CallbackURL)
	case OutcomeNeedsWorkspace:
		return g.onboardingPath + "?reason=" + url.QueryEscape(d.Reason)
	default:
		return g.errorPath + "?reason=" + url.QueryEscape(d.Reason)
	}
}
