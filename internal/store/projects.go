package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keithlinneman/portfolio-api/internal/xerrors"
)

// Tags is stored as a JSON array in a TEXT column.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	return string(b), err
}

func (t *Tags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("tags: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		// stored value is not ours to fail a read over
		out = []string{}
	}
	*t = out
	return nil
}

type Project struct {
	ID              int64     `db:"id" json:"id"`
	Slug            string    `db:"slug" json:"slug"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description" json:"description"`
	LongDescription *string   `db:"long_description" json:"long_description"`
	Category        string    `db:"category" json:"category"`
	Tags            Tags      `db:"tags" json:"tags"`
	Date            string    `db:"date" json:"date"`
	Image           *string   `db:"image" json:"image"`
	Github          *string   `db:"github" json:"github"`
	Demo            *string   `db:"demo" json:"demo"`
	Featured        bool      `db:"featured" json:"featured"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ProjectFilter narrows ListProjects. Zero values match everything.
type ProjectFilter struct {
	Category string
	Featured *bool
}

// ProjectPatch holds the fields to change; nil fields are left alone.
type ProjectPatch struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	LongDescription *string `json:"long_description"`
	Category        *string `json:"category"`
	Tags            *Tags   `json:"tags"`
	Date            *string `json:"date"`
	Image           *string `json:"image"`
	Github          *string `json:"github"`
	Demo            *string `json:"demo"`
	Featured        *bool   `json:"featured"`
}

func (p ProjectPatch) assignments() ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.LongDescription != nil {
		add("long_description", *p.LongDescription)
	}
	if p.Category != nil {
		add("category", *p.Category)
	}
	if p.Tags != nil {
		add("tags", *p.Tags)
	}
	if p.Date != nil {
		add("date", *p.Date)
	}
	if p.Image != nil {
		add("image", *p.Image)
	}
	if p.Github != nil {
		add("github", *p.Github)
	}
	if p.Demo != nil {
		add("demo", *p.Demo)
	}
	if p.Featured != nil {
		add("featured", *p.Featured)
	}
	return sets, args
}

const projectColumns = `id, slug, title, description, long_description, category, tags, date,
	image, github, demo, featured, created_at, updated_at`

func (s *Store) ListProjects(ctx context.Context, f ProjectFilter) ([]Project, error) {
	var where []string
	var args []any
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Featured != nil {
		where = append(where, "featured = ?")
		args = append(args, *f.Featured)
	}
	q := "SELECT " + projectColumns + " FROM projects"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	out := []Project{}
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, xerrors.Wrap(err, "list projects")
	}
	return out, nil
}

// Categories returns the distinct project categories in name order.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	out := []string{}
	if err := s.db.SelectContext(ctx, &out, "SELECT DISTINCT category FROM projects ORDER BY category"); err != nil {
		return nil, xerrors.Wrap(err, "list categories")
	}
	return out, nil
}

func (s *Store) ProjectBySlug(ctx context.Context, slug string) (Project, error) {
	var p Project
	err := s.db.GetContext(ctx, &p, "SELECT "+projectColumns+" FROM projects WHERE slug = ?", slug)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, xerrors.Wrapf(err, "get project %q", slug)
	}
	return p, nil
}

// CreateProject inserts p and fills in its ID and timestamps. A duplicate
// slug returns ErrConflict.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	var exists int
	if err := s.db.GetContext(ctx, &exists, "SELECT COUNT(1) FROM projects WHERE slug = ?", p.Slug); err != nil {
		return xerrors.Wrap(err, "check slug")
	}
	if exists > 0 {
		return ErrConflict
	}

	now := time.Now().UTC()
	if p.Tags == nil {
		p.Tags = Tags{}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (slug, title, description, long_description, category, tags, date,
			image, github, demo, featured, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Slug, p.Title, p.Description, p.LongDescription, p.Category, p.Tags, p.Date,
		p.Image, p.Github, p.Demo, p.Featured, now, now,
	)
	if err != nil {
		return xerrors.Wrapf(err, "insert project %q", p.Slug)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return xerrors.Wrap(err, "project id")
	}
	p.ID, p.CreatedAt, p.UpdatedAt = id, now, now
	return nil
}

// UpdateProject applies patch to the project with slug and returns the
// stored result.
func (s *Store) UpdateProject(ctx context.Context, slug string, patch ProjectPatch) (Project, error) {
	if _, err := s.ProjectBySlug(ctx, slug); err != nil {
		return Project{}, err
	}
	sets, args := patch.assignments()
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), slug)

	q := "UPDATE projects SET " + strings.Join(sets, ", ") + " WHERE slug = ?"
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return Project{}, xerrors.Wrapf(err, "update project %q", slug)
	}
	return s.ProjectBySlug(ctx, slug)
}

func (s *Store) DeleteProject(ctx context.Context, slug string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE slug = ?", slug)
	if err != nil {
		return xerrors.Wrapf(err, "delete project %q", slug)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
