package api

import (
	"errors"
	"html/template"
	"net/http"
	"path"
	"time"

	"github.com/edgeee/portfolio/auth"
)

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Admin login</title></head>
<body>
<form method="post" action="/admin/login">
<input type="hidden" name="callbackUrl" value="{{.CallbackURL}}">
<label>Password <input type="password" name="password" autofocus></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`))

func (a *API) loginForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct{ CallbackURL string }{
		CallbackURL: r.URL.Query().Get(auth.CallbackParam),
	}
	if err := loginPage.Execute(w, data); err != nil {
		a.Logger.Error("Could not render login page", "error", err.Error())
	}
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not parse form")
		return
	}

	if !auth.CheckPassword(a.AdminPasswordHash, r.PostFormValue("password")) {
		a.respondError(w, http.StatusUnauthorized, errors.New("invalid admin password"), "Invalid credentials", "ip", a.clientIP(r))
		return
	}
	if a.Tokens == nil {
		a.respondError(w, http.StatusInternalServerError, errors.New("no token issuer configured"), "Could not sign in")
		return
	}

	token, expiry, err := a.Tokens.Issue(auth.AdminSubject)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not sign in")
		return
	}

	a.setCookie(w, auth.CookieName, token, time.Until(expiry))
	a.Logger.Info("Admin signed in", "ip", a.clientIP(r))
	http.Redirect(w, r, loginTarget(r.PostFormValue(auth.CallbackParam)), http.StatusSeeOther)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
}

// loginTarget returns where to send the admin after login. Only admin pages
// other than the login page itself are accepted.
func loginTarget(callback string) string {
	if callback == "" {
		return auth.AdminPrefix
	}
	cleaned := path.Clean(callback)
	if !auth.IsAdminPath(cleaned) || cleaned == auth.LoginPath {
		return auth.AdminPrefix
	}
	return cleaned
}

func (a *API) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.DB.Dashboard(r.Context())
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not load dashboard")
		return
	}
	a.respond(w, http.StatusOK, d)
}
