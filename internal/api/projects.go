package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/portfolio-api/internal/log"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/store"
)

type projectCreate struct {
	Slug            string   `json:"slug" validate:"required,max=100,slug"`
	Title           string   `json:"title" validate:"required,max=200"`
	Description     string   `json:"description" validate:"required"`
	LongDescription *string  `json:"long_description"`
	Category        string   `json:"category" validate:"required,max=50"`
	Tags            []string `json:"tags" validate:"max=20"`
	Date            string   `json:"date" validate:"required,min=4,max=20"`
	Image           *string  `json:"image" validate:"omitnil,safeurl"`
	Github          *string  `json:"github" validate:"omitnil,safeurl"`
	Demo            *string  `json:"demo" validate:"omitnil,safeurl"`
	Featured        bool     `json:"featured"`
}

type projectUpdate struct {
	Title           *string   `json:"title" validate:"omitnil,min=1,max=200"`
	Description     *string   `json:"description" validate:"omitnil,min=1"`
	LongDescription *string   `json:"long_description"`
	Category        *string   `json:"category" validate:"omitnil,min=1,max=50"`
	Tags            *[]string `json:"tags" validate:"omitnil,max=20"`
	Date            *string   `json:"date" validate:"omitnil,min=4,max=20"`
	Image           *string   `json:"image" validate:"omitnil,safeurl"`
	Github          *string   `json:"github" validate:"omitnil,safeurl"`
	Demo            *string   `json:"demo" validate:"omitnil,safeurl"`
	Featured        *bool     `json:"featured"`
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

func projectError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return respond.NewError(http.StatusNotFound, "Project not found")
	case errors.Is(err, store.ErrConflict):
		return respond.BadRequest("Slug already exists")
	default:
		return err
	}
}

func (api *API) listProjects(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	f := store.ProjectFilter{Category: q.Get("category")}
	if v := q.Get("featured"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return respond.NewError(http.StatusUnprocessableEntity, "Invalid field: featured")
		}
		f.Featured = &b
	}

	items, err := api.store.ListProjects(r.Context(), f)
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
	return nil
}

func (api *API) listCategories(w http.ResponseWriter, r *http.Request) error {
	cats, err := api.store.Categories(r.Context())
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, map[string]any{"categories": cats})
	return nil
}

func (api *API) getProject(w http.ResponseWriter, r *http.Request) error {
	p, err := api.store.ProjectBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		return projectError(err)
	}
	respond.JSON(w, http.StatusOK, p)
	return nil
}

func (api *API) createProject(w http.ResponseWriter, r *http.Request) error {
	var in projectCreate
	if err := decodeJSON(r, &in); err != nil {
		return err
	}
	if err := api.check(r, in); err != nil {
		return err
	}

	p := &store.Project{
		Slug:            in.Slug,
		Title:           in.Title,
		Description:     in.Description,
		LongDescription: in.LongDescription,
		Category:        in.Category,
		Tags:            normalizeTags(in.Tags),
		Date:            in.Date,
		Image:           trimmed(in.Image),
		Github:          trimmed(in.Github),
		Demo:            trimmed(in.Demo),
		Featured:        in.Featured,
	}
	if err := api.store.CreateProject(r.Context(), p); err != nil {
		return projectError(err)
	}
	ctx := r.Context()
	log.FromContext(ctx).Info(ctx, "project created", "slug", p.Slug)
	respond.JSON(w, http.StatusCreated, p)
	return nil
}

func (api *API) updateProject(w http.ResponseWriter, r *http.Request) error {
	var in projectUpdate
	if err := decodeJSON(r, &in); err != nil {
		return err
	}
	if err := api.check(r, in); err != nil {
		return err
	}

	patch := store.ProjectPatch{
		Title:           in.Title,
		Description:     in.Description,
		LongDescription: in.LongDescription,
		Category:        in.Category,
		Date:            in.Date,
		Image:           trimmed(in.Image),
		Github:          trimmed(in.Github),
		Demo:            trimmed(in.Demo),
		Featured:        in.Featured,
	}
	if in.Tags != nil {
		tags := store.Tags(normalizeTags(*in.Tags))
		patch.Tags = &tags
	}

	slug := chi.URLParam(r, "slug")
	p, err := api.store.UpdateProject(r.Context(), slug, patch)
	if err != nil {
		return projectError(err)
	}
	ctx := r.Context()
	log.FromContext(ctx).Info(ctx, "project updated", "slug", slug)
	respond.JSON(w, http.StatusOK, p)
	return nil
}

func (api *API) deleteProject(w http.ResponseWriter, r *http.Request) error {
	slug := chi.URLParam(r, "slug")
	if err := api.store.DeleteProject(r.Context(), slug); err != nil {
		return projectError(err)
	}
	ctx := r.Context()
	log.FromContext(ctx).Info(ctx, "project deleted", "slug", slug)
	w.WriteHeader(http.StatusNoContent)
	return nil
}
