package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	// AdminPrefix is the path prefix of the administrative area.
	AdminPrefix = "/admin"
	// LoginPath is the admin login page. It is reachable without a token.
	LoginPath = "/admin/login"
	// CookieName is the cookie holding the admin session token.
	CookieName = "admin_session"
	// CallbackParam is the query parameter carrying the page to return to after login.
	CallbackParam = "callbackUrl"
)

// An Action is what the gate does with a request.
type Action int

const (
	Allow Action = iota
	Redirect
)

// A Decision is the outcome of Gate.Decide.
type Decision struct {
	Action Action
	// Target is the redirect location when Action is Redirect.
	Target string
	// Claims are set when the request carried a valid token.
	Claims *Claims
}

// A Verifier validates session tokens.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// Gate guards the administrative area.
type Gate struct {
	Verifier Verifier
	Logger   *slog.Logger
}

// IsAdminPath reports whether p is the admin root or below it.
func IsAdminPath(p string) bool {
	return p == AdminPrefix || strings.HasPrefix(p, AdminPrefix+"/")
}

// Decide returns the gate decision for a request to path. token is only called
// for admin paths.
func (g *Gate) Decide(path string, token func() string) Decision {
	if !IsAdminPath(path) {
		return Decision{Action: Allow}
	}

	claims := g.verify(token())
	authenticated := claims != nil

	if path == LoginPath {
		if authenticated {
			return Decision{Action: Redirect, Target: AdminPrefix, Claims: claims}
		}
		return Decision{Action: Allow}
	}

	if authenticated {
		return Decision{Action: Allow, Claims: claims}
	}
	q := url.Values{}
	q.Set(CallbackParam, path)
	return Decision{Action: Redirect, Target: LoginPath + "?" + q.Encode()}
}

func (g *Gate) verify(token string) *Claims {
	if token == "" || g.Verifier == nil {
		return nil
	}
	claims, err := g.Verifier.Verify(token)
	if err != nil {
		if g.Logger != nil {
			g.Logger.Debug("Rejected admin token", "error", err.Error())
		}
		return nil
	}
	return claims
}

// Middleware applies the gate to every request before passing it to next.
// Redirects keep GET and HEAD requests as they are. Other methods are sent on
// with 303 so the target is fetched with GET.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(r.URL.Path, func() string { return TokenFromRequest(r) })
		if d.Action == Redirect {
			http.Redirect(w, r, d.Target, redirectStatus(r.Method))
			return
		}
		if d.Claims != nil {
			r = r.WithContext(context.WithValue(r.Context(), subjectKey, d.Claims.Subject))
		}
		next.ServeHTTP(w, r)
	})
}

func redirectStatus(method string) int {
	if method == http.MethodGet || method == http.MethodHead {
		return http.StatusTemporaryRedirect
	}
	return http.StatusSeeOther
}

// TokenFromRequest returns the session token from the admin cookie, falling back
// to a bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

type contextKey string

const subjectKey contextKey = "subject"

// SubjectFromContext returns the authenticated token subject, if any.
func SubjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(subjectKey).(string); ok {
		return v
	}
	return ""
}
