package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"
)

func (a *API) getViews(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Views int `json:"views"`
	}

	slug := r.PathValue("slug")
	post, err := a.publishedPost(r.Context(), slug)
	if errors.Is(err, ErrNotFound) {
		a.respond(w, http.StatusNotFound, errorBody("Post not found"))
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not get views", "slug", slug)
		return
	}

	a.respond(w, http.StatusOK, response{Views: post.Views})
}

// recordView counts a view at most once per viewed set cookie.
func (a *API) recordView(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Views         int  `json:"views"`
		AlreadyViewed bool `json:"alreadyViewed"`
	}

	slug := r.PathValue("slug")
	viewed := viewedSlugs(r)

	if slices.Contains(viewed, slug) {
		post, err := a.publishedPost(r.Context(), slug)
		if errors.Is(err, ErrNotFound) {
			a.respond(w, http.StatusNotFound, errorBody("Post not found"))
			return
		}
		if err != nil {
			a.respondError(w, http.StatusInternalServerError, err, "Could not record view", "slug", slug)
			return
		}
		a.respond(w, http.StatusOK, response{Views: post.Views, AlreadyViewed: true})
		return
	}

	views, err := a.DB.IncrementViews(r.Context(), slug)
	if errors.Is(err, ErrNotFound) {
		a.respond(w, http.StatusNotFound, errorBody("Post not found"))
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not record view", "slug", slug)
		return
	}
	a.Metrics.ViewRecorded()

	a.setCookie(w, viewedCookie, encodeViewed(append(viewed, slug)), viewedTTL)
	a.respond(w, http.StatusOK, response{Views: views, AlreadyViewed: false})
}

func (a *API) getReactions(w http.ResponseWriter, r *http.Request) {
	type response struct {
		TotalLikes    int            `json:"totalLikes"`
		Reactions     map[string]int `json:"reactions"`
		UserReactions []string       `json:"userReactions"`
	}

	slug := r.PathValue("slug")
	session := sessionID(r)

	post, err := a.publishedPost(r.Context(), slug)
	if errors.Is(err, ErrNotFound) {
		a.respond(w, http.StatusNotFound, errorBody("Post not found"))
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not get reactions", "slug", slug)
		return
	}

	reactions, err := a.DB.ListReactions(r.Context(), post.ID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not get reactions", "slug", slug)
		return
	}

	counts, mine := countReactions(reactions, session)
	a.respond(w, http.StatusOK, response{
		TotalLikes:    post.Likes,
		Reactions:     counts,
		UserReactions: mine,
	})
}

// toggleReaction adds the session's reaction of the given type, or removes it
// when it already exists. It is the only handler that creates sessions.
func (a *API) toggleReaction(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			Type string `json:"type" validate:"required,oneof=like love fire clap"`
		}
		response struct {
			Action     ReactionAction `json:"action"`
			TotalLikes int            `json:"totalLikes"`
			Reactions  map[string]int `json:"reactions"`
		}
	)

	slug := r.PathValue("slug")
	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body", "slug", slug)
		return
	}
	if valid := a.validateBody(w, &body); !valid {
		return
	}

	session, minted := sessionID(r), false
	if session == "" {
		session, minted = newSessionID(), true
	}

	post, err := a.publishedPost(r.Context(), slug)
	if errors.Is(err, ErrNotFound) {
		a.respond(w, http.StatusNotFound, errorBody("Post not found"))
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not toggle reaction", "slug", slug, "session", session)
		return
	}

	rt := ReactionType(body.Type)
	toggled, err := a.DB.ToggleReaction(r.Context(), Reaction{
		PostID:    post.ID,
		SessionID: session,
		Type:      rt,
	})
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not toggle reaction", "slug", slug, "session", session)
		return
	}
	a.Metrics.ReactionToggled(string(rt), string(toggled.Action))

	reactions, err := a.DB.ListReactions(r.Context(), post.ID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not toggle reaction", "slug", slug, "session", session)
		return
	}
	counts, _ := countReactions(reactions, session)

	if a.Notifier != nil {
		err := a.Notifier.ReactionToggled(r.Context(), ReactionEvent{
			Slug:       slug,
			Type:       rt,
			Action:     toggled.Action,
			TotalLikes: toggled.Likes,
			At:         time.Now(),
		})
		if err != nil {
			a.Logger.Error("Could not publish reaction event", "error", err.Error(), "slug", slug)
		}
	}

	if minted {
		a.setCookie(w, sessionCookie, session, sessionTTL)
	}
	a.respond(w, http.StatusOK, response{
		Action:     toggled.Action,
		TotalLikes: toggled.Likes,
		Reactions:  counts,
	})
}

// countReactions returns the per-type counts of reactions, with every type
// present, and the types the given session has applied.
func countReactions(reactions []Reaction, session string) (map[string]int, []string) {
	counts := make(map[string]int, len(ReactionTypes))
	for _, rt := range ReactionTypes {
		counts[string(rt)] = 0
	}
	mine := make([]string, 0)
	for _, r := range reactions {
		counts[string(r.Type)]++
		if session != "" && r.SessionID == session {
			mine = append(mine, string(r.Type))
		}
	}
	return counts, mine
}

// publishedPost returns the post with the given slug. Drafts are reported as
// ErrNotFound so public endpoints do not reveal them.
func (a *API) publishedPost(ctx context.Context, slug string) (Post, error) {
	post, err := a.DB.GetPost(ctx, slug)
	if err != nil {
		return Post{}, err
	}
	if !post.Published {
		return Post{}, fmt.Errorf("post %q is a draft: %w", slug, ErrNotFound)
	}
	return post, nil
}

func errorBody(msg string) any {
	return struct {
		Error string `json:"error"`
	}{Error: msg}
}
