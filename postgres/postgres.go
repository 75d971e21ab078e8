package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/edgeee/portfolio/api"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Postgres error codes this package branches on.
const (
	codeUniqueViolation = "23505"
	codeInvalidTextRepr = "22P02"
)

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Close closes the underlying connection pool.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// CreateSchema creates the tables and indexes if they do not exist yet.
func (pg *Postgres) CreateSchema(ctx context.Context) error {
	if _, err := pg.bun.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}

	if _, err := pg.bun.NewCreateTable().Model((*post)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create posts: %w", err)
	}
	if _, err := pg.bun.NewCreateTable().Model((*reaction)(nil)).IfNotExists().
		ForeignKey(`("post_id") REFERENCES "posts" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("create reactions: %w", err)
	}
	if _, err := pg.bun.NewCreateTable().Model((*contactMessage)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create contact_messages: %w", err)
	}

	indexes := []*bun.CreateIndexQuery{
		pg.bun.NewCreateIndex().Model((*post)(nil)).Index("posts_created_at_idx").Column("created_at").IfNotExists(),
		pg.bun.NewCreateIndex().Model((*contactMessage)(nil)).Index("contact_messages_created_at_idx").Column("created_at").IfNotExists(),
	}
	for _, q := range indexes {
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// ListPosts returns posts, newest first.
func (pg *Postgres) ListPosts(ctx context.Context, publishedOnly bool) ([]api.Post, error) {
	var posts []post
	q := pg.bun.NewSelect().
		Model(&posts).
		Order("created_at DESC")
	if publishedOnly {
		q = q.Where("published = TRUE")
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]api.Post, len(posts))
	for i, p := range posts {
		out[i] = p.APIPost()
	}
	return out, nil
}

// GetPost returns the post with the given slug, or api.ErrNotFound.
func (pg *Postgres) GetPost(ctx context.Context, slug string) (api.Post, error) {
	var p post
	err := pg.bun.NewSelect().Model(&p).Where("slug = ?", slug).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Post{}, fmt.Errorf("post %q: %w", slug, api.ErrNotFound)
	}
	if err != nil {
		return api.Post{}, fmt.Errorf("scan: %w", err)
	}
	return p.APIPost(), nil
}

// InsertPost inserts a post into the database. The returned post holds auto
// generated fields, such as the post id.
func (pg *Postgres) InsertPost(ctx context.Context, p api.Post) (api.Post, error) {
	m := &post{
		Slug:      p.Slug,
		Title:     p.Title,
		Summary:   p.Summary,
		Content:   p.Content,
		Published: p.Published,
	}
	if _, err := pg.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		if hasCode(err, codeUniqueViolation) {
			return api.Post{}, fmt.Errorf("post %q: %w", p.Slug, api.ErrConflict)
		}
		return api.Post{}, fmt.Errorf("insert: %w", err)
	}
	return m.APIPost(), nil
}

// DeletePost deletes a post and, through the foreign key, its reactions.
func (pg *Postgres) DeletePost(ctx context.Context, slug string) error {
	res, err := pg.bun.NewDelete().Model((*post)(nil)).Where("slug = ?", slug).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("post %q: %w", slug, api.ErrNotFound)
	}
	return nil
}

// IncrementViews adds one to the view counter of a published post in a single
// statement and returns the new value. Drafts are api.ErrNotFound.
func (pg *Postgres) IncrementViews(ctx context.Context, slug string) (int, error) {
	var views int
	err := pg.bun.NewUpdate().
		Model((*post)(nil)).
		Set("views = views + 1").
		Where("slug = ?", slug).
		Where("published = TRUE").
		Returning("views").
		Scan(ctx, &views)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("post %q: %w", slug, api.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	return views, nil
}

// ListReactions returns every reaction of a post, oldest first.
func (pg *Postgres) ListReactions(ctx context.Context, postID string) ([]api.Reaction, error) {
	var reactions []reaction
	err := pg.bun.NewSelect().
		Model(&reactions).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]api.Reaction, len(reactions))
	for i, r := range reactions {
		out[i] = r.APIReaction()
	}
	return out, nil
}

// ToggleReaction deletes the reaction keyed by (post, session, type) or
// creates it when absent. Like reactions move the post's likes counter by one
// in the same transaction.
func (pg *Postgres) ToggleReaction(ctx context.Context, r api.Reaction) (api.ReactionToggle, error) {
	var out api.ReactionToggle
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*reaction)(nil)).
			Where("post_id = ?", r.PostID).
			Where("session_id = ?", r.SessionID).
			Where("type = ?", string(r.Type)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}

		delta := 0
		if n, _ := res.RowsAffected(); n > 0 {
			out.Action = api.ReactionRemoved
			delta = -1
		} else {
			res, err := tx.NewInsert().
				Model(&reaction{
					PostID:    r.PostID,
					SessionID: r.SessionID,
					Type:      string(r.Type),
				}).
				On("CONFLICT (post_id, session_id, type) DO NOTHING").
				Returning("NULL").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("insert: %w", err)
			}
			out.Action = api.ReactionAdded
			// A concurrent toggle may have inserted the same row first.
			if n, _ := res.RowsAffected(); n > 0 {
				delta = 1
			}
		}
		if r.Type != api.ReactionLike {
			delta = 0
		}

		if delta == 0 {
			return tx.NewSelect().
				Model((*post)(nil)).
				Column("likes").
				Where("id = ?", r.PostID).
				Scan(ctx, &out.Likes)
		}
		return tx.NewUpdate().
			Model((*post)(nil)).
			Set("likes = likes + ?", delta).
			Where("id = ?", r.PostID).
			Returning("likes").
			Scan(ctx, &out.Likes)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return api.ReactionToggle{}, fmt.Errorf("post %s: %w", r.PostID, api.ErrNotFound)
	}
	if err != nil {
		return api.ReactionToggle{}, fmt.Errorf("toggle reaction: %w", err)
	}
	return out, nil
}

// InsertContactMessage stores a contact form submission.
func (pg *Postgres) InsertContactMessage(ctx context.Context, msg api.ContactMessage) (api.ContactMessage, error) {
	m := &contactMessage{
		Name:    msg.Name,
		Email:   msg.Email,
		Subject: msg.Subject,
		Message: msg.Message,
		IP:      msg.IP,
	}
	if _, err := pg.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		return api.ContactMessage{}, fmt.Errorf("insert: %w", err)
	}
	return m.APIContactMessage(), nil
}

// ListContactMessages returns every contact message, newest first.
func (pg *Postgres) ListContactMessages(ctx context.Context) ([]api.ContactMessage, error) {
	var msgs []contactMessage
	if err := pg.bun.NewSelect().Model(&msgs).Order("created_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]api.ContactMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m.APIContactMessage()
	}
	return out, nil
}

// MarkContactMessageRead flags a contact message as read.
func (pg *Postgres) MarkContactMessageRead(ctx context.Context, id string) error {
	res, err := pg.bun.NewUpdate().
		Model((*contactMessage)(nil)).
		Set("read = TRUE").
		Where("id = ?", id).
		Exec(ctx)
	if hasCode(err, codeInvalidTextRepr) {
		return fmt.Errorf("message %q: %w", id, api.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("message %q: %w", id, api.ErrNotFound)
	}
	return nil
}

// Dashboard aggregates the numbers shown on the admin landing page.
func (pg *Postgres) Dashboard(ctx context.Context) (api.Dashboard, error) {
	var d api.Dashboard
	err := pg.bun.NewSelect().
		Model((*post)(nil)).
		ColumnExpr("count(*)").
		ColumnExpr("coalesce(sum(views), 0)").
		ColumnExpr("coalesce(sum(likes), 0)").
		Scan(ctx, &d.Posts, &d.TotalViews, &d.TotalLikes)
	if err != nil {
		return api.Dashboard{}, fmt.Errorf("scan posts: %w", err)
	}

	unread, err := pg.bun.NewSelect().
		Model((*contactMessage)(nil)).
		Where("read = FALSE").
		Count(ctx)
	if err != nil {
		return api.Dashboard{}, fmt.Errorf("count messages: %w", err)
	}
	d.UnreadMessages = unread
	return d, nil
}

func hasCode(err error, code string) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == code
}
