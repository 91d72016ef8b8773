package menu

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/adminhub/pkg/observability"
)

// SeedFile is a nested menu definition
//
//	menus:
//	  - name: System
//	    type: CATALOG
//	    path: /system
//	    children:
//	      - name: Users
//	        type: MENU
//	        path: user
//	        component: system/user/index
type SeedFile struct {
	Menus []SeedEntry `yaml:"menus"`
}

// SeedEntry is one menu and its children
type SeedEntry struct {
	MenuCreate `yaml:",inline"`
	Children   []SeedEntry `yaml:"children"`
}

// ParseSeed decodes a seed file
func ParseSeed(r io.Reader) (*SeedFile, error) {
	var f SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse menu seed: %w", err)
	}
	return &f, nil
}

// Seed creates the menus of f that do not exist yet, matched by name.
// Existing entries are left untouched but still parent their children.
func (s *Store) Seed(ctx context.Context, f *SeedFile) (created int, err error) {
	for _, entry := range f.Menus {
		n, err := s.seed(ctx, entry, nil)
		created += n
		if err != nil {
			return created, err
		}
	}
	observability.FromContext(ctx, s.logger).WithField("created", created).Info("menu seed applied")
	return created, nil
}

func (s *Store) seed(ctx context.Context, entry SeedEntry, parent *int64) (int, error) {
	created := 0
	m, err := s.GetByName(ctx, entry.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		in := entry.MenuCreate
		in.ParentID = parent
		m, err = s.Create(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("failed to seed menu %q: %w", entry.Name, err)
		}
		created++
	case err != nil:
		return 0, err
	}

	id := m.ID
	for _, child := range entry.Children {
		n, err := s.seed(ctx, child, &id)
		created += n
		if err != nil {
			return created, err
		}
	}
	return created, nil
}
