package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

const (
	sessionCookie = "engagement_session"
	viewedCookie  = "viewed_items"

	sessionTTL = 365 * 24 * time.Hour
	viewedTTL  = 30 * 24 * time.Hour

	// The viewed set keeps at most maxViewed slugs and maxViewedBytes of
	// encoded value, dropping the oldest slugs first. Browsers reject cookies
	// over 4096 bytes and keep the previous value.
	maxViewed      = 100
	maxViewedBytes = 3800
)

func (a *API) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   a.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionID returns the engagement session carried by r, or "" when there is
// none or it is not a UUID.
func sessionID(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

func newSessionID() string {
	return uuid.NewString()
}

// viewedSlugs parses the viewed set cookie. Anything unreadable is an empty set.
func viewedSlugs(r *http.Request) []string {
	c, err := r.Cookie(viewedCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	raw, err := url.QueryUnescape(c.Value)
	if err != nil {
		return nil
	}
	var slugs []string
	if err := json.Unmarshal([]byte(raw), &slugs); err != nil {
		return nil
	}
	return slugs
}

func encodeViewed(slugs []string) string {
	if len(slugs) > maxViewed {
		slugs = slugs[len(slugs)-maxViewed:]
	}
	for {
		b, err := json.Marshal(slugs)
		if err != nil {
			return url.QueryEscape("[]")
		}
		v := url.QueryEscape(string(b))
		if len(v) <= maxViewedBytes || len(slugs) <= 1 {
			return v
		}
		slugs = slugs[1:]
	}
}
