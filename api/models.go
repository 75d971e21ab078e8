package api

import (
	"errors"
	"time"
)

// ErrNotFound is returned by a DB when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by a DB when a record with the same unique key exists.
var ErrConflict = errors.New("conflict")

// ErrCacheMiss is returned by a Cache when nothing is cached for the key.
var ErrCacheMiss = errors.New("cache miss")

// A Post represents a published or draft blog post.
type Post struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Content   string    `json:"content"`
	Published bool      `json:"published"`
	Views     int       `json:"views"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// A ReactionType is one of the fixed kinds of reaction a session can leave on a post.
type ReactionType string

// Supported reaction types.
const (
	ReactionLike ReactionType = "like"
	ReactionLove ReactionType = "love"
	ReactionFire ReactionType = "fire"
	ReactionClap ReactionType = "clap"
)

// ReactionTypes lists every supported reaction type in display order.
var ReactionTypes = []ReactionType{ReactionLike, ReactionLove, ReactionFire, ReactionClap}

// Valid reports whether t is a supported reaction type.
func (t ReactionType) Valid() bool {
	for _, rt := range ReactionTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// A Reaction represents one session's reaction of a given type to a post.
// At most one exists per (post, session, type).
type Reaction struct {
	ID        string       `json:"id"`
	PostID    string       `json:"post_id"`
	SessionID string       `json:"session_id"`
	Type      ReactionType `json:"type"`
	CreatedAt time.Time    `json:"created_at"`
}

// A ReactionAction tells whether a toggle created or removed a reaction.
type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
)

// A ReactionToggle is the outcome of toggling a reaction.
type ReactionToggle struct {
	Action ReactionAction
	// Likes is the post's likes counter after the toggle.
	Likes int
}

// A ReactionEvent is published after a reaction was toggled.
type ReactionEvent struct {
	Slug       string         `json:"slug"`
	Type       ReactionType   `json:"type"`
	Action     ReactionAction `json:"action"`
	TotalLikes int            `json:"total_likes"`
	At         time.Time      `json:"at"`
}

// A ContactMessage is a message submitted through the contact form.
type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	IP        string    `json:"-"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Dashboard holds the aggregate numbers shown on the admin landing page.
type Dashboard struct {
	Posts          int `json:"posts"`
	TotalViews     int `json:"total_views"`
	TotalLikes     int `json:"total_likes"`
	UnreadMessages int `json:"unread_messages"`
}

// A Limit is the outcome of a rate limit check.
type Limit struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}
