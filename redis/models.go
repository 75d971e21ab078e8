package redis

import (
	"time"

	"github.com/edgeee/portfolio/api"
)

// A post represents a cached post. Timestamps are unix nanoseconds since hash
// scanning has no time.Time support.
type post struct {
	ID        string `redis:"id"`
	Slug      string `redis:"slug"`
	Title     string `redis:"title"`
	Summary   string `redis:"summary"`
	Content   string `redis:"content"`
	Published bool   `redis:"published"`
	Views     int    `redis:"views"`
	Likes     int    `redis:"likes"`
	CreatedAt int64  `redis:"created_at"`
	UpdatedAt int64  `redis:"updated_at"`
}

func newPost(p api.Post) *post {
	return &post{
		ID:        p.ID,
		Slug:      p.Slug,
		Title:     p.Title,
		Summary:   p.Summary,
		Content:   p.Content,
		Published: p.Published,
		Views:     p.Views,
		Likes:     p.Likes,
		CreatedAt: p.CreatedAt.UnixNano(),
		UpdatedAt: p.UpdatedAt.UnixNano(),
	}
}

func (p post) APIPost() api.Post {
	return api.Post{
		ID:        p.ID,
		Slug:      p.Slug,
		Title:     p.Title,
		Summary:   p.Summary,
		Content:   p.Content,
		Published: p.Published,
		Views:     p.Views,
		Likes:     p.Likes,
		CreatedAt: time.Unix(0, p.CreatedAt).UTC(),
		UpdatedAt: time.Unix(0, p.UpdatedAt).UTC(),
	}
}
