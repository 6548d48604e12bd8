// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package seed loads reference data from a YAML file.
//
// Rows that already exist are left alone, so a seed file can be applied
// on every deploy:
//
//	admin:
//	  username: admin
//	  full_name: Portal Admin
//	  password: change-me-now
//	regions:
//	  - name: North
//	    level: district
//	    children:
//	      - name: Zone 1
//	        level: zone
//	categories:
//	  - {name: Public Works, code: PW}
//	statuses:
//	  - {name: Open, code: OPEN, sort_order: 1}
//	  - {name: Closed, code: CLOSED, is_terminal: true, sort_order: 9}
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/danielhkuo/works-portal/auth"
	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/efiling"
	"github.com/danielhkuo/works-portal/models"
)

type File struct {
	Admin      *Admin     `yaml:"admin"`
	Regions    []Region   `yaml:"regions"`
	Categories []Category `yaml:"categories"`
	Statuses   []Status   `yaml:"statuses"`
	Templates  []Template `yaml:"templates"`
}

type Admin struct {
	Username string `yaml:"username"`
	FullName string `yaml:"full_name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type Region struct {
	Name     string   `yaml:"name"`
	Level    string   `yaml:"level"`
	Children []Region `yaml:"children"`
}

type Category struct {
	Name        string `yaml:"name"`
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
}

type Status struct {
	Name       string `yaml:"name"`
	Code       string `yaml:"code"`
	IsTerminal bool   `yaml:"is_terminal"`
	SortOrder  int    `yaml:"sort_order"`
}

type Template struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"` // category code, optional
	Subject  string `yaml:"subject"`
	Body     string `yaml:"body"`
}

// Result counts the rows a seed run inserted.
type Result struct {
	Users      int
	Regions    int
	Categories int
	Statuses   int
	Templates  int
}

// Parse decodes a seed file, rejecting unknown keys.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return File{}, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return f, nil
}

// Load reads and parses the seed file at path.
func Load(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer fh.Close()
	return Parse(fh)
}

type seeder struct {
	ctx   context.Context
	store *db.Store
	tx    *sqlx.Tx
	now   time.Time
	res   Result
}

// Apply inserts everything in f that is missing, in one transaction.
func Apply(ctx context.Context, store *db.Store, log *zap.Logger, f File) (Result, error) {
	var res Result
	err := store.WithTx(ctx, func(tx *sqlx.Tx) error {
		s := &seeder{ctx: ctx, store: store, tx: tx, now: time.Now().UTC()}

		if f.Admin != nil {
			if err := s.admin(*f.Admin); err != nil {
				return err
			}
		}
		for _, r := range f.Regions {
			if err := s.region(r, "", nil); err != nil {
				return err
			}
		}
		for _, c := range f.Categories {
			if err := s.category(c); err != nil {
				return err
			}
		}
		for _, st := range f.Statuses {
			if err := s.status(st); err != nil {
				return err
			}
		}
		for _, t := range f.Templates {
			if err := s.template(t); err != nil {
				return err
			}
		}

		res = s.res
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	log.Info("seed applied",
		zap.Int("users", res.Users),
		zap.Int("regions", res.Regions),
		zap.Int("categories", res.Categories),
		zap.Int("statuses", res.Statuses),
		zap.Int("templates", res.Templates))
	return res, nil
}

// childLevel is the level directly below each level.
var childLevel = map[string]string{
	"":                   models.LevelDistrict,
	models.LevelDistrict: models.LevelZone,
	models.LevelZone:     models.LevelWard,
}

func (s *seeder) region(r Region, parentLevel string, parentID *string) error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return fmt.Errorf("region without a name")
	}
	if want := childLevel[parentLevel]; r.Level != want {
		return fmt.Errorf("region %q: level %q where %q was expected", name, r.Level, want)
	}

	where := sq.Eq{"name": name, "level": r.Level, "parent_id": parentID}
	var id string
	err := db.Get(s.ctx, s.tx, &id, s.store.SQL.Select("id").From("regions").Where(where))
	switch {
	case db.IsNotFound(err):
		id = auth.NewID()
		ins := s.store.SQL.Insert("regions").
			Columns("id", "name", "level", "parent_id", "created_at").
			Values(id, name, r.Level, parentID, s.now)
		if _, err := db.Exec(s.ctx, s.tx, ins); err != nil {
			return fmt.Errorf("region %q: %w", name, err)
		}
		s.res.Regions++
	case err != nil:
		return err
	}

	for _, child := range r.Children {
		if err := s.region(child, r.Level, &id); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) category(c Category) error {
	code, err := efiling.NormalizeCode(c.Code)
	if err != nil {
		return fmt.Errorf("category %q: %w", c.Name, err)
	}
	exists, err := s.exists("efile_categories", sq.Eq{"code": code})
	if err != nil || exists {
		return err
	}
	ins := s.store.SQL.Insert("efile_categories").
		Columns("id", "name", "code", "description", "active", "created_at").
		Values(auth.NewID(), c.Name, code, c.Description, true, s.now)
	if _, err := db.Exec(s.ctx, s.tx, ins); err != nil {
		return fmt.Errorf("category %q: %w", code, err)
	}
	s.res.Categories++
	return nil
}

func (s *seeder) status(st Status) error {
	code, err := efiling.NormalizeCode(st.Code)
	if err != nil {
		return fmt.Errorf("status %q: %w", st.Name, err)
	}
	exists, err := s.exists("efile_statuses", sq.Eq{"code": code})
	if err != nil || exists {
		return err
	}
	ins := s.store.SQL.Insert("efile_statuses").
		Columns("id", "name", "code", "is_terminal", "sort_order", "created_at").
		Values(auth.NewID(), st.Name, code, st.IsTerminal, st.SortOrder, s.now)
	if _, err := db.Exec(s.ctx, s.tx, ins); err != nil {
		return fmt.Errorf("status %q: %w", code, err)
	}
	s.res.Statuses++
	return nil
}

func (s *seeder) template(t Template) error {
	if err := efiling.Validate(t.Subject, t.Body); err != nil {
		return fmt.Errorf("template %q: %w", t.Name, err)
	}
	exists, err := s.exists("efile_templates", sq.Eq{"name": t.Name})
	if err != nil || exists {
		return err
	}

	var categoryID *string
	if t.Category != "" {
		var id string
		err := db.Get(s.ctx, s.tx, &id, s.store.SQL.Select("id").From("efile_categories").
			Where(sq.Eq{"code": strings.ToUpper(t.Category)}))
		if err != nil {
			return fmt.Errorf("template %q: unknown category %q: %w", t.Name, t.Category, err)
		}
		categoryID = &id
	}

	// Seeded templates are attributed to the first admin.
	var owner string
	err = db.Get(s.ctx, s.tx, &owner, s.store.SQL.Select("id").From("users").
		Where(sq.Eq{"role": models.RoleAdmin}).
		OrderBy("created_at", "id").
		Limit(1))
	if err != nil {
		return fmt.Errorf("template %q needs an admin user to own it: %w", t.Name, err)
	}

	ins := s.store.SQL.Insert("efile_templates").
		Columns("id", "name", "category_id", "subject", "body", "created_by", "created_at", "updated_at").
		Values(auth.NewID(), t.Name, categoryID, t.Subject, t.Body, owner, s.now, s.now)
	if _, err := db.Exec(s.ctx, s.tx, ins); err != nil {
		return fmt.Errorf("template %q: %w", t.Name, err)
	}
	s.res.Templates++
	return nil
}

func (s *seeder) admin(a Admin) error {
	if a.Username == "" {
		return fmt.Errorf("admin without a username")
	}
	exists, err := s.exists("users", sq.Eq{"username": a.Username})
	if err != nil || exists {
		return err
	}
	hash, err := auth.HashPassword(a.Password)
	if err != nil {
		return fmt.Errorf("admin %q: %w", a.Username, err)
	}
	name := a.FullName
	if name == "" {
		name = a.Username
	}
	ins := s.store.SQL.Insert("users").
		Columns("id", "username", "full_name", "email", "password_hash", "role", "region_id", "active", "created_at", "updated_at").
		Values(auth.NewID(), a.Username, name, a.Email, hash, models.RoleAdmin, nil, true, s.now, s.now)
	if _, err := db.Exec(s.ctx, s.tx, ins); err != nil {
		return fmt.Errorf("admin %q: %w", a.Username, err)
	}
	s.res.Users++
	return nil
}

func (s *seeder) exists(table string, where sq.Eq) (bool, error) {
	n, err := db.Count(s.ctx, s.tx, s.store.SQL.Select("COUNT(*)").From(table).Where(where))
	return n > 0, err
}
