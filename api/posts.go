package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

func (a *API) listPosts(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Posts []Post `json:"posts"`
	}

	posts, err := a.Cache.ListPosts(r.Context())
	if err == nil {
		a.Logger.Info("Got posts from cache", "count", len(posts))
		a.respond(w, http.StatusOK, response{Posts: nonNil(posts)})
		return
	}
	if !errors.Is(err, ErrCacheMiss) {
		a.Logger.Error("Could not read posts from cache", "error", err.Error())
	}

	version, verr := a.Cache.PostsVersion(r.Context())
	if verr != nil {
		a.Logger.Error("Could not read cache version", "error", verr.Error())
	}

	posts, err = a.DB.ListPosts(r.Context(), true)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list posts")
		return
	}
	a.Logger.Info("Got posts from DB", "count", len(posts))

	if verr == nil {
		if err := a.Cache.StorePosts(r.Context(), version, posts); err != nil {
			a.Logger.Error("Could not cache posts", "error", err.Error())
		}
	}

	a.respond(w, http.StatusOK, response{Posts: nonNil(posts)})
}

func (a *API) getPost(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	post, err := a.DB.GetPost(r.Context(), slug)
	if errors.Is(err, ErrNotFound) || (err == nil && !post.Published) {
		a.respond(w, http.StatusNotFound, errorBody("Post not found"))
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not get post", "slug", slug)
		return
	}

	a.respond(w, http.StatusOK, post)
}

func (a *API) adminListPosts(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Posts []Post `json:"posts"`
	}

	posts, err := a.DB.ListPosts(r.Context(), false)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list posts")
		return
	}
	a.respond(w, http.StatusOK, response{Posts: nonNil(posts)})
}

func (a *API) createPost(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Slug      string `json:"slug" validate:"required,max=200,slug"`
		Title     string `json:"title" validate:"required,max=300"`
		Summary   string `json:"summary" validate:"max=1000"`
		Content   string `json:"content"`
		Published bool   `json:"published"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	if valid := a.validateBody(w, &body); !valid {
		return
	}

	post, err := a.DB.InsertPost(r.Context(), Post{
		Slug:      body.Slug,
		Title:     body.Title,
		Summary:   body.Summary,
		Content:   body.Content,
		Published: body.Published,
	})
	if errors.Is(err, ErrConflict) {
		a.respond(w, http.StatusConflict, errorBody("A post with this slug already exists"))
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not insert post", "slug", body.Slug)
		return
	}

	if err := a.Cache.InvalidatePosts(r.Context()); err != nil {
		a.Logger.Error("Could not invalidate post cache", "error", err.Error())
	}

	a.respond(w, http.StatusCreated, post)
}

func (a *API) deletePost(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	err := a.DB.DeletePost(r.Context(), slug)
	if errors.Is(err, ErrNotFound) {
		a.respond(w, http.StatusNotFound, errorBody("Post not found"))
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not delete post", "slug", slug)
		return
	}

	if err := a.Cache.InvalidatePosts(r.Context()); err != nil {
		a.Logger.Error("Could not invalidate post cache", "error", err.Error())
	}

	w.WriteHeader(http.StatusNoContent)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
