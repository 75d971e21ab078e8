package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"

	"github.com/edgeee/portfolio/api/validator"
	"github.com/edgeee/portfolio/auth"
	"github.com/edgeee/portfolio/metrics"
)

// A DB provides a storage layer that persists posts, reactions and contact messages.
type DB interface {
	ListPosts(ctx context.Context, publishedOnly bool) ([]Post, error)
	GetPost(ctx context.Context, slug string) (Post, error)
	InsertPost(ctx context.Context, post Post) (Post, error)
	DeletePost(ctx context.Context, slug string) error

	// IncrementViews adds one to a published post's view counter and returns
	// the new total. Drafts are ErrNotFound.
	IncrementViews(ctx context.Context, slug string) (int, error)

	ListReactions(ctx context.Context, postID string) ([]Reaction, error)
	// ToggleReaction removes the reaction if it exists and creates it otherwise,
	// keeping the post's likes counter in step.
	ToggleReaction(ctx context.Context, reaction Reaction) (ReactionToggle, error)

	InsertContactMessage(ctx context.Context, msg ContactMessage) (ContactMessage, error)
	ListContactMessages(ctx context.Context) ([]ContactMessage, error)
	MarkContactMessageRead(ctx context.Context, id string) error

	Dashboard(ctx context.Context) (Dashboard, error)
}

// A Cache provides a storage layer that caches the published post list.
type Cache interface {
	ListPosts(ctx context.Context) ([]Post, error)
	// PostsVersion changes whenever InvalidatePosts runs. StorePosts skips
	// the write when the version no longer matches.
	PostsVersion(ctx context.Context) (int64, error)
	StorePosts(ctx context.Context, version int64, posts []Post) error
	InvalidatePosts(ctx context.Context) error
}

// A Limiter counts hits per key within a time window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Limit, error)
}

// A Notifier forwards events to interested parties, such as the site owner.
type Notifier interface {
	ContactSubmitted(ctx context.Context, msg ContactMessage) error
	ReactionToggled(ctx context.Context, event ReactionEvent) error
}

// API provides the REST endpoints for the application.
type API struct {
	Logger   *slog.Logger
	DB       DB
	Cache    Cache
	Limiter  Limiter
	Notifier Notifier
	Val      *validator.Validator
	Metrics  *metrics.Metrics

	// Tokens issues and verifies admin session tokens.
	Tokens *auth.Tokens
	// AdminPasswordHash is the bcrypt hash of the admin password.
	AdminPasswordHash string
	// SecureCookies marks every cookie Secure. Enabled in production.
	SecureCookies bool
	// TrustedProxies lists the reverse proxies allowed to set
	// X-Forwarded-For and X-Real-IP. Empty means the remote address is used.
	TrustedProxies []netip.Prefix

	once    sync.Once
	handler http.Handler
}

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.health)

	mux.HandleFunc("GET /posts", a.listPosts)
	mux.HandleFunc("GET /posts/{slug}", a.getPost)
	mux.HandleFunc("GET /posts/{slug}/views", a.getViews)
	mux.HandleFunc("POST /posts/{slug}/views", a.recordView)
	mux.HandleFunc("GET /posts/{slug}/reactions", a.getReactions)
	mux.HandleFunc("POST /posts/{slug}/reactions", a.toggleReaction)

	mux.HandleFunc("POST /contact", a.createContactMessage)

	mux.HandleFunc("GET /admin", a.dashboard)
	mux.HandleFunc("GET /admin/login", a.loginForm)
	mux.HandleFunc("POST /admin/login", a.login)
	mux.HandleFunc("POST /admin/logout", a.logout)
	mux.HandleFunc("GET /admin/posts", a.adminListPosts)
	mux.HandleFunc("POST /admin/posts", a.createPost)
	mux.HandleFunc("DELETE /admin/posts/{slug}", a.deletePost)
	mux.HandleFunc("GET /admin/messages", a.listContactMessages)
	mux.HandleFunc("POST /admin/messages/{id}/read", a.markContactMessageRead)

	if a.Metrics != nil {
		mux.Handle("GET /metrics", a.Metrics.Handler())
	}

	gate := &auth.Gate{Logger: a.Logger}
	if a.Tokens != nil {
		gate.Verifier = a.Tokens
	}
	a.handler = gate.Middleware(mux)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.handler.ServeHTTP(w, r)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

// respondError logs err with the optional key/value pairs in args and writes
// msg as the client-facing error.
func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string, args ...any) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", append([]any{"error", err.Error(), "status", status}, args...)...)
	a.respond(w, status, response{Error: msg})
}

func (a *API) validateBody(w http.ResponseWriter, s interface{}) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	a.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
