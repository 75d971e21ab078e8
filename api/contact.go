package api

import (
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
)

func (a *API) createContactMessage(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			Name    string `json:"name" validate:"required,max=100"`
			Email   string `json:"email" validate:"required,email,max=254"`
			Subject string `json:"subject" validate:"max=200"`
			Message string `json:"message" validate:"required,min=10,max=5000"`
		}
		response struct {
			ID      string `json:"id"`
			Message string `json:"message"`
		}
	)

	ip := a.clientIP(r)
	limit, err := a.Limiter.Allow(r.Context(), "contact:"+ip)
	if err != nil {
		a.respondError(w, http.StatusServiceUnavailable, err, "Service temporarily unavailable", "ip", ip)
		return
	}
	if !limit.Allowed {
		a.Metrics.RateLimited("contact")
		a.Logger.Warn("Rate limit exceeded", "ip", ip)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limit.RetryAfter.Seconds()))))
		a.respond(w, http.StatusTooManyRequests, errorBody("Too many requests, please try again later"))
		return
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	body.Email = strings.TrimSpace(body.Email)
	body.Subject = strings.TrimSpace(body.Subject)
	body.Message = strings.TrimSpace(body.Message)
	if valid := a.validateBody(w, &body); !valid {
		return
	}

	msg, err := a.DB.InsertContactMessage(r.Context(), ContactMessage{
		Name:    body.Name,
		Email:   body.Email,
		Subject: body.Subject,
		Message: body.Message,
		IP:      ip,
	})
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not save message", "ip", ip)
		return
	}

	if a.Notifier != nil {
		if err := a.Notifier.ContactSubmitted(r.Context(), msg); err != nil {
			a.Logger.Error("Could not publish contact notification", "error", err.Error(), "id", msg.ID)
		}
	}

	a.respond(w, http.StatusCreated, response{
		ID:      msg.ID,
		Message: "Thanks for reaching out! I'll get back to you soon.",
	})
}

func (a *API) listContactMessages(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Messages []ContactMessage `json:"messages"`
	}

	msgs, err := a.DB.ListContactMessages(r.Context())
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list messages")
		return
	}
	a.respond(w, http.StatusOK, response{Messages: nonNil(msgs)})
}

func (a *API) markContactMessageRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := a.DB.MarkContactMessageRead(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		a.respond(w, http.StatusNotFound, errorBody("Message not found"))
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not update message", "id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clientIP returns the address of the client. Forwarding headers are only
// read when the connection comes from a trusted proxy. X-Forwarded-For is
// walked from the right and the first hop that is not a trusted proxy wins.
func (a *API) clientIP(r *http.Request) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if !a.trustedProxy(remote) {
		return remote
	}

	if fwd := r.Header.Values("X-Forwarded-For"); len(fwd) > 0 {
		hops := strings.Split(strings.Join(fwd, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !a.trustedProxy(hop) {
				return hop
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return remote
}

func (a *API) trustedProxy(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range a.TrustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
