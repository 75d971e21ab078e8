package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgeee/portfolio/api/validator"
	"github.com/neilotoole/slogt"
)

func TestAPI_listPosts(t *testing.T) {
	hello := Post{
		ID:        "1",
		Slug:      "hello",
		Title:     "Hello",
		Published: true,
		Views:     4,
		Likes:     1,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	helloJSON := `{
		"id": "1",
		"slug": "hello",
		"title": "Hello",
		"summary": "",
		"content": "",
		"published": true,
		"views": 4,
		"likes": 1,
		"created_at": "2024-01-01T00:00:00Z",
		"updated_at": "2024-01-01T00:00:00Z"
	}`

	tests := []struct {
		name        string
		db          *testdb
		cache       *testcache
		wantStatus  int
		wantBody    string
		containsLog string
	}{
		{
			name: "Cache",
			cache: &testcache{
				listPosts: func(t *testing.T) ([]Post, error) {
					return []Post{hello}, nil
				},
			},
			db:         &testdb{},
			wantStatus: 200,
			wantBody:   `{"posts": [` + helloJSON + `]}`,
		},
		{
			name: "CacheMiss",
			cache: &testcache{
				listPosts: func(t *testing.T) ([]Post, error) {
					return nil, ErrCacheMiss
				},
				postsVersion: func(t *testing.T) (int64, error) {
					return 7, nil
				},
				storePosts: func(t *testing.T, version int64, posts []Post) error {
					if version != 7 {
						t.Errorf("Got cache version %d, want 7", version)
					}
					if len(posts) != 1 || posts[0].Slug != "hello" {
						t.Errorf("Got cached posts %+v, want hello", posts)
					}
					return nil
				},
			},
			db: &testdb{
				listPosts: func(t *testing.T, publishedOnly bool) ([]Post, error) {
					if !publishedOnly {
						t.Error("Public listing asked for drafts")
					}
					return []Post{hello}, nil
				},
			},
			wantStatus: 200,
			wantBody:   `{"posts": [` + helloJSON + `]}`,
		},
		{
			name: "CacheError",
			cache: &testcache{
				listPosts: func(t *testing.T) ([]Post, error) {
					return nil, errors.New("connection refused")
				},
				storePosts: func(t *testing.T, version int64, posts []Post) error {
					return errors.New("connection refused")
				},
			},
			db: &testdb{
				listPosts: func(t *testing.T, publishedOnly bool) ([]Post, error) {
					return nil, nil
				},
			},
			wantStatus:  200,
			wantBody:    `{"posts": []}`,
			containsLog: "Could not cache posts",
		},
		{
			name: "CacheVersionError",
			cache: &testcache{
				listPosts: func(t *testing.T) ([]Post, error) {
					return nil, ErrCacheMiss
				},
				postsVersion: func(t *testing.T) (int64, error) {
					return 0, errors.New("connection refused")
				},
				storePosts: func(t *testing.T, version int64, posts []Post) error {
					t.Error("Stored posts without a cache version")
					return nil
				},
			},
			db: &testdb{
				listPosts: func(t *testing.T, publishedOnly bool) ([]Post, error) {
					return []Post{hello}, nil
				},
			},
			wantStatus:  200,
			wantBody:    `{"posts": [` + helloJSON + `]}`,
			containsLog: "Could not read cache version",
		},
		{
			name: "DBError",
			cache: &testcache{
				listPosts: func(t *testing.T) ([]Post, error) {
					return nil, ErrCacheMiss
				},
			},
			db: &testdb{
				listPosts: func(t *testing.T, publishedOnly bool) ([]Post, error) {
					return nil, errors.New("something went wrong")
				},
			},
			wantStatus: 500,
			wantBody:   `{"error": "Could not list posts"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.db.T = t
			tt.cache.T = t
			api := &API{
				DB:     tt.db,
				Cache:  tt.cache,
				Logger: slog.New(slog.NewTextHandler(buf, nil)),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/posts")
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
			checkLog(t, buf, tt.containsLog)
		})
	}
}

func TestAPI_getPost(t *testing.T) {
	tests := []struct {
		name       string
		getPost    func(t *testing.T, slug string) (Post, error)
		wantStatus int
		wantBody   string
	}{
		{
			name: "NotFound",
			getPost: func(t *testing.T, slug string) (Post, error) {
				return Post{}, ErrNotFound
			},
			wantStatus: 404,
			wantBody:   `{"error": "Post not found"}`,
		},
		{
			name: "Draft",
			getPost: func(t *testing.T, slug string) (Post, error) {
				return Post{ID: "1", Slug: slug, Published: false}, nil
			},
			wantStatus: 404,
			wantBody:   `{"error": "Post not found"}`,
		},
		{
			name: "DBError",
			getPost: func(t *testing.T, slug string) (Post, error) {
				return Post{}, errors.New("something went wrong")
			},
			wantStatus: 500,
			wantBody:   `{"error": "Could not get post"}`,
		},
		{
			name: "OK",
			getPost: func(t *testing.T, slug string) (Post, error) {
				if slug != "hello" {
					t.Errorf("Got slug %q, want hello", slug)
				}
				return Post{
					ID:        "1",
					Slug:      slug,
					Title:     "Hello",
					Content:   "Body",
					Published: true,
					Views:     2,
					CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
					UpdatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
				}, nil
			},
			wantStatus: 200,
			wantBody: `{
				"id": "1",
				"slug": "hello",
				"title": "Hello",
				"summary": "",
				"content": "Body",
				"published": true,
				"views": 2,
				"likes": 0,
				"created_at": "2024-01-01T00:00:00Z",
				"updated_at": "2024-01-02T00:00:00Z"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &API{
				DB:     &testdb{T: t, getPost: tt.getPost},
				Logger: slogt.New(t),
			}

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/posts/hello")
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_health(t *testing.T) {
	api := &API{Logger: slogt.New(t)}
	srv := httptest.NewServer(api)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	checkStatus(t, resp.StatusCode, 200)
	checkBody(t, resp, `{"status": "ok"}`)
}

func newTestAPI(t *testing.T, db DB) *API {
	t.Helper()
	return &API{
		DB:     db,
		Cache:  &testcache{T: t},
		Logger: slogt.New(t),
		Val:    validator.New(),
	}
}

type testdb struct {
	T                      *testing.T
	listPosts              func(t *testing.T, publishedOnly bool) ([]Post, error)
	getPost                func(t *testing.T, slug string) (Post, error)
	insertPost             func(t *testing.T, post Post) (Post, error)
	deletePost             func(t *testing.T, slug string) error
	incrementViews         func(t *testing.T, slug string) (int, error)
	listReactions          func(t *testing.T, postID string) ([]Reaction, error)
	toggleReaction         func(t *testing.T, reaction Reaction) (ReactionToggle, error)
	insertContactMessage   func(t *testing.T, msg ContactMessage) (ContactMessage, error)
	listContactMessages    func(t *testing.T) ([]ContactMessage, error)
	markContactMessageRead func(t *testing.T, id string) error
	dashboard              func(t *testing.T) (Dashboard, error)
}

func (db *testdb) ListPosts(_ context.Context, publishedOnly bool) ([]Post, error) {
	return db.listPosts(db.T, publishedOnly)
}

func (db *testdb) GetPost(_ context.Context, slug string) (Post, error) {
	return db.getPost(db.T, slug)
}

func (db *testdb) InsertPost(_ context.Context, post Post) (Post, error) {
	return db.insertPost(db.T, post)
}

func (db *testdb) DeletePost(_ context.Context, slug string) error {
	return db.deletePost(db.T, slug)
}

func (db *testdb) IncrementViews(_ context.Context, slug string) (int, error) {
	return db.incrementViews(db.T, slug)
}

func (db *testdb) ListReactions(_ context.Context, postID string) ([]Reaction, error) {
	return db.listReactions(db.T, postID)
}

func (db *testdb) ToggleReaction(_ context.Context, reaction Reaction) (ReactionToggle, error) {
	return db.toggleReaction(db.T, reaction)
}

func (db *testdb) InsertContactMessage(_ context.Context, msg ContactMessage) (ContactMessage, error) {
	return db.insertContactMessage(db.T, msg)
}

func (db *testdb) ListContactMessages(_ context.Context) ([]ContactMessage, error) {
	return db.listContactMessages(db.T)
}

func (db *testdb) MarkContactMessageRead(_ context.Context, id string) error {
	return db.markContactMessageRead(db.T, id)
}

func (db *testdb) Dashboard(_ context.Context) (Dashboard, error) {
	return db.dashboard(db.T)
}

type testcache struct {
	T               *testing.T
	listPosts       func(t *testing.T) ([]Post, error)
	postsVersion    func(t *testing.T) (int64, error)
	storePosts      func(t *testing.T, version int64, posts []Post) error
	invalidatePosts func(t *testing.T) error
	invalidated     atomic.Int32
}

func (c *testcache) ListPosts(_ context.Context) ([]Post, error) {
	return c.listPosts(c.T)
}

func (c *testcache) PostsVersion(_ context.Context) (int64, error) {
	if c.postsVersion == nil {
		return 0, nil
	}
	return c.postsVersion(c.T)
}

func (c *testcache) StorePosts(_ context.Context, version int64, posts []Post) error {
	if c.storePosts == nil {
		return nil
	}
	return c.storePosts(c.T, version, posts)
}

func (c *testcache) InvalidatePosts(_ context.Context) error {
	c.invalidated.Add(1)
	if c.invalidatePosts == nil {
		return nil
	}
	return c.invalidatePosts(c.T)
}

func checkStatus(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("Got HTTP status %d, want %d", got, want)
	}
}

func checkBody(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	gotBody := normalizeJSON(t, resp.Body)
	wantBody := normalizeJSON(t, bytes.NewReader([]byte(want)))
	if gotBody != wantBody {
		t.Errorf("Body does not match\nGot\n  %s\n\nWant\n  %s", gotBody, wantBody)
	}
}

func checkLog(t *testing.T, buffer *bytes.Buffer, want string) {
	t.Helper()

	if s := buffer.String(); want != "" && !strings.Contains(s, want) {
		t.Errorf("Log does not contain  %s\n", want)
	}
}

func normalizeJSON(t *testing.T, r io.Reader) string {
	t.Helper()
	var buf bytes.Buffer
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Could not read JSON: %v", err)
	}
	if err := json.Indent(&buf, b, "  ", "  "); err != nil {
		t.Fatalf("Could not indent JSON: %v", err)
	}
	return strings.TrimSpace(buf.String())
}
