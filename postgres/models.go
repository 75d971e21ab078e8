package postgres

import (
	"time"

	"github.com/edgeee/portfolio/api"
	"github.com/uptrace/bun"
)

// A post represents a blog post in the database.
type post struct {
	bun.BaseModel `bun:"table:posts"`

	ID        string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	Slug      string    `bun:",unique,notnull"`
	Title     string    `bun:",notnull"`
	Summary   string    `bun:",notnull"`
	Content   string    `bun:",notnull"`
	Published bool      `bun:",notnull"`
	Views     int       `bun:",notnull,default:0"`
	Likes     int       `bun:",notnull,default:0"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:now()"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:now()"`
}

// A reaction is unique per (post, session, type).
type reaction struct {
	bun.BaseModel `bun:"table:reactions"`

	ID        string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	PostID    string    `bun:",notnull,type:uuid,unique:reactions_post_session_type"`
	SessionID string    `bun:",notnull,unique:reactions_post_session_type"`
	Type      string    `bun:",notnull,unique:reactions_post_session_type"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:now()"`
}

type contactMessage struct {
	bun.BaseModel `bun:"table:contact_messages"`

	ID        string    `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	Name      string    `bun:",notnull"`
	Email     string    `bun:",notnull"`
	Subject   string    `bun:",notnull"`
	Message   string    `bun:",notnull"`
	IP        string    `bun:"ip,notnull"`
	Read      bool      `bun:",notnull"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:now()"`
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
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (r reaction) APIReaction() api.Reaction {
	return api.Reaction{
		ID:        r.ID,
		PostID:    r.PostID,
		SessionID: r.SessionID,
		Type:      api.ReactionType(r.Type),
		CreatedAt: r.CreatedAt,
	}
}

func (m contactMessage) APIContactMessage() api.ContactMessage {
	return api.ContactMessage{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Subject:   m.Subject,
		Message:   m.Message,
		IP:        m.IP,
		Read:      m.Read,
		CreatedAt: m.CreatedAt,
	}
}
