package menu

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/adminhub/pkg/cache"
	"github.com/platinummonkey/adminhub/pkg/observability"
)

var (
	fullTreeKey    = cache.EntityKey("MenuTree", "full")
	catalogTreeKey = cache.EntityKey("MenuTree", "catalog")
	routeTreeKey   = cache.EntityKey("MenuTree", "routes")

	treeKeys = []string{fullTreeKey, catalogTreeKey, routeTreeKey}
)

// index links rows by parent in memory
type index struct {
	roots    []*Menu
	children map[int64][]*Menu
}

func newIndex(menus []*Menu) *index {
	ix := &index{children: make(map[int64][]*Menu)}
	for _, m := range menus {
		if m.ParentID == nil {
			ix.roots = append(ix.roots, m)
		} else {
			ix.children[*m.ParentID] = append(ix.children[*m.ParentID], m)
		}
	}
	sortSiblings(ix.roots)
	for _, siblings := range ix.children {
		sortSiblings(siblings)
	}
	return ix
}

// sortSiblings orders by sort ascending, unsorted last, then id
func sortSiblings(menus []*Menu) {
	sort.SliceStable(menus, func(i, j int) bool {
		a, b := menus[i], menus[j]
		switch {
		case a.Sort == nil && b.Sort != nil:
			return false
		case a.Sort != nil && b.Sort == nil:
			return true
		case a.Sort != nil && b.Sort != nil && *a.Sort != *b.Sort:
			return *a.Sort < *b.Sort
		}
		return a.ID < b.ID
	})
}

func (ix *index) childrenOf(parent *int64) []*Menu {
	if parent == nil {
		return ix.roots
	}
	return ix.children[*parent]
}

// walk visits the subtree under parent depth first. keep decides whether a
// node and its subtree are included; emit builds the output node from the
// node and its already built children.
func walk[T any](ix *index, parent *int64, visited map[int64]bool, keep func(*Menu) bool, emit func(m *Menu, parent *int64, children []T) T) []T {
	out := []T{}
	for _, m := range ix.childrenOf(parent) {
		if visited[m.ID] || !keep(m) {
			continue
		}
		visited[m.ID] = true
		id := m.ID
		children := walk(ix, &id, visited, keep, emit)
		out = append(out, emit(m, parent, children))
	}
	return out
}

// FullTree returns the children of root (nil for the top level) with every
// field. When search is set each level is filtered on its own by a case
// insensitive name match, so a match below a non-matching parent is not
// returned.
func (s *Store) FullTree(ctx context.Context, root *int64, search string) ([]*Node, error) {
	search = strings.ToLower(strings.TrimSpace(search))
	build := func(ix *index) []*Node {
		keep := func(m *Menu) bool {
			return search == "" || strings.Contains(strings.ToLower(m.Name), search)
		}
		return walk(ix, root, map[int64]bool{}, keep, func(m *Menu, parent *int64, children []*Node) *Node {
			return &Node{
				ID:            m.ID,
				Name:          m.Name,
				ParentID:      parent,
				Children:      children,
				Type:          m.Type,
				Path:          m.Path,
				Icon:          m.Icon,
				Redirect:      m.Redirect,
				Component:     m.Component,
				PermissionKey: m.PermissionKey,
				ExternalLink:  m.ExternalLink,
				Active:        m.Active,
				Sort:          m.Sort,
			}
		})
	}
	if root != nil || search != "" {
		return buildProjection(ctx, s, "full", build)
	}
	return projection(ctx, s, fullTreeKey, "full", build)
}

// CatalogTree returns active CATALOG and MENU entries under root. Other
// types and inactive entries are dropped with their subtrees.
func (s *Store) CatalogTree(ctx context.Context, root *int64) ([]*CatalogNode, error) {
	build := func(ix *index) []*CatalogNode {
		keep := func(m *Menu) bool {
			return m.Active && (m.Type == TypeCatalog || m.Type == TypeMenu)
		}
		return walk(ix, root, map[int64]bool{}, keep, func(m *Menu, _ *int64, children []*CatalogNode) *CatalogNode {
			return &CatalogNode{Value: m.ID, Label: m.Name, Children: children}
		})
	}
	if root != nil {
		return buildProjection(ctx, s, "catalog", build)
	}
	return projection(ctx, s, catalogTreeKey, "catalog", build)
}

// RouteTree returns router entries for every active navigable menu
func (s *Store) RouteTree(ctx context.Context) ([]*Route, error) {
	build := func(ix *index) []*Route {
		keep := func(m *Menu) bool {
			return m.Active && m.Type != TypeButton
		}
		return walk(ix, nil, map[int64]bool{}, keep, func(m *Menu, _ *int64, children []*Route) *Route {
			path := m.Path
			if m.Type == TypeExternalLink && m.ExternalLink != "" {
				path = m.ExternalLink
			}
			return &Route{
				Path:      path,
				Name:      m.Name,
				Component: m.Component,
				Redirect:  m.Redirect,
				Meta:      RouteMeta{Title: m.Name, Icon: m.Icon, KeepAlive: true},
				Children:  children,
			}
		})
	}
	return projection(ctx, s, routeTreeKey, "routes", build)
}

// WarmTrees rebuilds the cached top-level projections so readers do not pay
// for a build after the entries expire
func (s *Store) WarmTrees(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	s.invalidate(ctx)
	if _, err := s.FullTree(ctx, nil, ""); err != nil {
		return err
	}
	if _, err := s.CatalogTree(ctx, nil); err != nil {
		return err
	}
	_, err := s.RouteTree(ctx)
	return err
}

func buildProjection[T any](ctx context.Context, s *Store, name string, build func(*index) []T) ([]T, error) {
	ctx, span := otel.Tracer(observability.TracerName).Start(ctx, "menu.BuildTree")
	defer span.End()
	span.SetAttributes(attribute.String("menu.projection", name))

	start := time.Now()
	menus, err := s.loadAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load menus")
		return nil, err
	}
	span.SetAttributes(attribute.Int("menu.rows", len(menus)))
	out := build(newIndex(menus))
	if s.metrics != nil {
		s.metrics.MenuTreeBuildsTotal.WithLabelValues(name).Inc()
		s.metrics.MenuTreeBuildDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	return out, nil
}

// projection serves a top-level projection from cache, building and storing
// it on a miss. Cache failures fall through to the store.
func projection[T any](ctx context.Context, s *Store, key, name string, build func(*index) []T) ([]T, error) {
	logger := observability.FromContext(ctx, s.logger)
	gen := s.gen.Load()
	if s.cache != nil {
		var cached []T
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			logger.WithError(err).Warn("menu tree cache read failed")
		} else if found && cached != nil {
			return cached, nil
		}
	}

	out, err := buildProjection(ctx, s, name, build)
	if err != nil {
		return nil, err
	}

	// a write landed while building; caching out could outlive it
	if s.cache != nil && s.gen.Load() == gen {
		if err := s.cache.Set(ctx, key, out, s.ttl); err != nil {
			logger.WithError(err).Warn("menu tree cache write failed")
		}
	}
	return out, nil
}
