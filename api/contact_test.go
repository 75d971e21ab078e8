package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgeee/portfolio/api/validator"
	"github.com/neilotoole/slogt"
)

var testProxies = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
}

const validContact = `{
	"name": "  Ada Lovelace ",
	"email": "ada@example.com",
	"subject": "Hello",
	"message": "I enjoyed your post on engines."
}`

func TestAPI_createContactMessage(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		limiter     *testlimiter
		insert      func(t *testing.T, msg ContactMessage) (ContactMessage, error)
		wantStatus  int
		wantBody    string
		wantRetry   string
		containsLog string
	}{
		{
			name:        "LimiterDown",
			body:        validContact,
			limiter:     &testlimiter{err: errors.New("dial tcp: connection refused")},
			wantStatus:  503,
			wantBody:    `{"error": "Service temporarily unavailable"}`,
			containsLog: "connection refused",
		},
		{
			name:        "RateLimited",
			body:        validContact,
			limiter:     &testlimiter{limit: Limit{Allowed: false, RetryAfter: 1500 * time.Millisecond}},
			wantStatus:  429,
			wantBody:    `{"error": "Too many requests, please try again later"}`,
			wantRetry:   "2",
			containsLog: "Rate limit exceeded",
		},
		{
			name:       "InvalidJSON",
			body:       `{"name":`,
			limiter:    &testlimiter{limit: Limit{Allowed: true, Remaining: 4}},
			wantStatus: 400,
			wantBody:   `{"error": "Could not decode request body"}`,
		},
		{
			name:       "InvalidEmail",
			body:       `{"name": "Ada", "email": "nope", "message": "I enjoyed your post."}`,
			limiter:    &testlimiter{limit: Limit{Allowed: true, Remaining: 4}},
			wantStatus: 400,
			wantBody:   `{"errors": [{"Field": "Email", "Message": "Key: 'request.Email' Error:Field validation for 'Email' failed on the 'email' tag"}]}`,
		},
		{
			name:       "ShortMessage",
			body:       `{"name": "Ada", "email": "ada@example.com", "message": "   hi      "}`,
			limiter:    &testlimiter{limit: Limit{Allowed: true, Remaining: 4}},
			wantStatus: 400,
			wantBody:   `{"errors": [{"Field": "Message", "Message": "Key: 'request.Message' Error:Field validation for 'Message' failed on the 'min' tag"}]}`,
		},
		{
			name:    "DBError",
			body:    validContact,
			limiter: &testlimiter{limit: Limit{Allowed: true, Remaining: 4}},
			insert: func(t *testing.T, msg ContactMessage) (ContactMessage, error) {
				return ContactMessage{}, errors.New("disk full")
			},
			wantStatus:  500,
			wantBody:    `{"error": "Could not save message"}`,
			containsLog: "disk full",
		},
		{
			name:    "OK",
			body:    validContact,
			limiter: &testlimiter{limit: Limit{Allowed: true, Remaining: 4}},
			insert: func(t *testing.T, msg ContactMessage) (ContactMessage, error) {
				if msg.Name != "Ada Lovelace" {
					t.Errorf("Got name %q, want it trimmed", msg.Name)
				}
				if msg.IP != "203.0.113.7" {
					t.Errorf("Got IP %q, want 203.0.113.7", msg.IP)
				}
				msg.ID = "m1"
				return msg, nil
			},
			wantStatus: 201,
			wantBody:   `{"id": "m1", "message": "Thanks for reaching out! I'll get back to you soon."}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			api := &API{
				DB:             &testdb{T: t, insertContactMessage: tt.insert},
				Limiter:        tt.limiter,
				Logger:         slog.New(slog.NewTextHandler(buf, nil)),
				Val:            validator.New(),
				TrustedProxies: testProxies,
			}
			srv := httptest.NewServer(api)
			defer srv.Close()

			req, err := http.NewRequest(http.MethodPost, srv.URL+"/contact", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
			checkLog(t, buf, tt.containsLog)

			if got := resp.Header.Get("Retry-After"); got != tt.wantRetry {
				t.Errorf("Got Retry-After %q, want %q", got, tt.wantRetry)
			}
			if key := tt.limiter.lastKey(); key != "contact:203.0.113.7" {
				t.Errorf("Got limiter key %q, want contact:203.0.113.7", key)
			}
		})
	}
}

func TestAPI_createContactMessage_notifies(t *testing.T) {
	notified := make(chan ContactMessage, 1)
	api := &API{
		DB: &testdb{
			T: t,
			insertContactMessage: func(t *testing.T, msg ContactMessage) (ContactMessage, error) {
				msg.ID = "m1"
				return msg, nil
			},
		},
		Limiter: &testlimiter{limit: Limit{Allowed: true}},
		Notifier: &testnotifier{
			contactSubmitted: func(msg ContactMessage) error {
				notified <- msg
				return errors.New("nats: no responders")
			},
		},
		Logger: slogt.New(t),
		Val:    validator.New(),
	}
	srv := httptest.NewServer(api)
	defer srv.Close()

	resp := post(t, http.DefaultClient, srv.URL+"/contact", validContact)
	checkStatus(t, resp.StatusCode, 201)
	resp.Body.Close()

	msg := <-notified
	if msg.ID != "m1" || msg.Email != "ada@example.com" {
		t.Errorf("Got notification %+v", msg)
	}
}

func TestAPI_createContactMessage_spoofedForwardedFor(t *testing.T) {
	limiter := &testlimiter{limit: Limit{Allowed: false, RetryAfter: time.Second}}
	api := &API{
		DB:      &testdb{T: t},
		Limiter: limiter,
		Logger:  slogt.New(t),
		Val:     validator.New(),
	}
	srv := httptest.NewServer(api)
	defer srv.Close()

	// Without trusted proxies every request is keyed by the connection.
	for _, fwd := range []string{"198.51.100.1", "198.51.100.2"} {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/contact", strings.NewReader(validContact))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("X-Forwarded-For", fwd)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		checkStatus(t, resp.StatusCode, 429)
		resp.Body.Close()
		if key := limiter.lastKey(); key != "contact:127.0.0.1" {
			t.Errorf("Got limiter key %q, want contact:127.0.0.1", key)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:    "ForwardedFor",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.1", "X-Real-IP": "10.0.0.9"},
			remote:  "10.0.0.1:5555",
			want:    "198.51.100.2",
		},
		{
			name:    "SpoofedLeftmostHop",
			headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.2, 10.0.0.7"},
			remote:  "10.0.0.1:5555",
			want:    "198.51.100.2",
		},
		{
			name:    "AllHopsTrusted",
			headers: map[string]string{"X-Forwarded-For": "10.0.0.8, 10.0.0.7"},
			remote:  "10.0.0.1:5555",
			want:    "10.0.0.8",
		},
		{
			name:    "UntrustedRemote",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.2", "X-Real-IP": "198.51.100.3"},
			remote:  "192.0.2.10:41234",
			want:    "192.0.2.10",
		},
		{
			name:    "RealIP",
			headers: map[string]string{"X-Real-IP": "198.51.100.3"},
			remote:  "10.0.0.1:5555",
			want:    "198.51.100.3",
		},
		{
			name:   "RemoteAddr",
			remote: "192.0.2.10:41234",
			want:   "192.0.2.10",
		},
		{
			name:   "RemoteAddrWithoutPort",
			remote: "192.0.2.11",
			want:   "192.0.2.11",
		},
	}

	api := &API{TrustedProxies: testProxies}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/contact", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := api.clientIP(req); got != tt.want {
				t.Errorf("Got IP %q, want %q", got, tt.want)
			}
		})
	}
}

type testlimiter struct {
	limit Limit
	err   error

	mu  sync.Mutex
	key string
}

func (l *testlimiter) Allow(_ context.Context, key string) (Limit, error) {
	l.mu.Lock()
	l.key = key
	l.mu.Unlock()
	return l.limit, l.err
}

func (l *testlimiter) lastKey() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.key
}
