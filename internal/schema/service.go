package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/grokking-vietnam/querybench/internal/engine"
	"github.com/grokking-vietnam/querybench/pkg/logger"
)

// Introspector obtains a flat schema snapshot for one connection.
type Introspector interface {
	Introspect(ctx context.Context, desc *engine.ConnectionDescriptor) (*engine.IntrospectionResult, error)
}

// ConnectionSource resolves connection ids to descriptors. Implemented by
// the connection-management layer.
type ConnectionSource interface {
	Get(connectionID string) (*engine.ConnectionDescriptor, error)
}

// SearchFilters restrict a schema search. A filter that matches nothing
// yields an empty result, never an error.
type SearchFilters struct {
	Types   []NodeType
	Schemas []string
}

// SearchResult is the outcome of one SearchSchema call.
type SearchResult struct {
	Nodes      []*TreeNode
	TotalCount int
	SearchTime time.Duration
}

// Options configure a Service.
type Options struct {
	TTL time.Duration
	// DemoMode serves a deterministic synthetic schema when live
	// introspection fails, instead of propagating the error. Off by
	// default: masking a real outage with fake data is an explicit
	// opt-in, not the baseline.
	DemoMode bool
	Logger   *logger.Logger
}

// Service owns the schema tree cache and exposes the browsing API the
// workbench shell calls into.
type Service struct {
	intr     Introspector
	source   ConnectionSource
	cache    *Cache
	group    singleflight.Group
	demoMode bool
	log      *logrus.Entry
}

// NewService wires a schema service from its collaborators.
func NewService(intr Introspector, source ConnectionSource, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		intr:     intr,
		source:   source,
		cache:    NewCache(opts.TTL),
		demoMode: opts.DemoMode,
		log:      log.Component("schema"),
	}
}

// GetConnectionSchema returns the root nodes for a connection, loading and
// caching the tree on first use. Concurrent callers for the same connection
// id share one introspection call.
func (s *Service) GetConnectionSchema(ctx context.Context, connectionID string) ([]*TreeNode, error) {
	entry, err := s.entry(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return entry.tree.roots(), nil
}

// GetSchemaChildren returns the children of the node at path. Unknown or
// non-expandable nodes yield an empty slice rather than an error. Nodes with
// HasChildren set but nothing materialized go through the lazy per-type
// loader, which is the expansion point for incremental loading.
func (s *Service) GetSchemaChildren(ctx context.Context, connectionID string, path []string) ([]*TreeNode, error) {
	entry, err := s.entry(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	id, ok := entry.tree.byPath[strings.Join(path, ".")]
	if !ok {
		return nil, nil
	}
	node := entry.tree.nodes[id]
	if node == nil || !node.HasChildren {
		return nil, nil
	}
	if len(node.ChildIDs) == 0 {
		loaded := s.loadChildren(ctx, connectionID, node)
		for _, child := range loaded {
			entry.tree.add(child, false)
		}
	}
	return entry.tree.children(id), nil
}

// loadChildren is the per-node-type lazy loader. The current snapshots are
// built fully materialized, so this returns nothing yet.
func (s *Service) loadChildren(ctx context.Context, connectionID string, node *TreeNode) []*TreeNode {
	s.log.Debugf("lazy child load for %s (%s)", node.ID, node.Type)
	return nil
}

// SearchSchema finds nodes whose name contains the query, case-insensitive.
// Separator characters are ignored when matching, so "users" finds
// "user_sessions". Exact name matches rank first, then node type priority.
func (s *Service) SearchSchema(ctx context.Context, connectionID, query string, filters *SearchFilters) (*SearchResult, error) {
	start := time.Now()

	entry, err := s.entry(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	seen := make(map[string]struct{})
	var matches []*TreeNode
	for name, ids := range entry.tree.byName {
		if needle != "" && !nameMatches(name, needle) {
			continue
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			node := entry.tree.nodes[id]
			if !filterAllows(node, filters) {
				continue
			}
			matches = append(matches, node)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		iExact := strings.EqualFold(matches[i].Name, needle)
		jExact := strings.EqualFold(matches[j].Name, needle)
		if iExact != jExact {
			return iExact
		}
		ip, jp := typePriority(matches[i].Type), typePriority(matches[j].Type)
		if ip != jp {
			return ip < jp
		}
		return matches[i].ID < matches[j].ID
	})

	return &SearchResult{
		Nodes:      matches,
		TotalCount: len(matches),
		SearchTime: time.Since(start),
	}, nil
}

// GetTableMetadata returns the metadata bag of the node at path, or nil for
// an unknown node.
func (s *Service) GetTableMetadata(ctx context.Context, connectionID string, path []string) (map[string]any, error) {
	entry, err := s.entry(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	id, ok := entry.tree.byPath[strings.Join(path, ".")]
	if !ok {
		return nil, nil
	}
	return entry.tree.nodes[id].Metadata, nil
}

// RefreshSchema evicts the cached tree and loads a fresh snapshot.
func (s *Service) RefreshSchema(ctx context.Context, connectionID string) error {
	s.cache.Evict(connectionID)
	_, err := s.entry(ctx, connectionID)
	return err
}

func (s *Service) entry(ctx context.Context, connectionID string) (*cacheEntry, error) {
	if entry, ok := s.cache.get(connectionID); ok {
		return entry, nil
	}

	// Coalesce concurrent loads for the same connection so a second caller
	// cannot race a duplicate introspection query into the cache.
	v, err, _ := s.group.Do(connectionID, func() (any, error) {
		if entry, ok := s.cache.get(connectionID); ok {
			return entry, nil
		}
		result, err := s.load(ctx, connectionID)
		if err != nil {
			return nil, err
		}
		return s.cache.put(connectionID, buildTree(connectionID, result)), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cacheEntry), nil
}

func (s *Service) load(ctx context.Context, connectionID string) (*engine.IntrospectionResult, error) {
	desc, err := s.source.Get(connectionID)
	if err != nil {
		return nil, fmt.Errorf("unknown connection %q: %w", connectionID, err)
	}

	result, err := s.intr.Introspect(ctx, desc)
	if err == nil {
		return result, nil
	}
	if s.demoMode {
		s.log.Warnf("introspection for %s failed, serving synthetic schema: %v", connectionID, err)
		return SyntheticIntrospection(desc.Engine, desc.Database), nil
	}
	return nil, fmt.Errorf("schema introspection for %q failed: %w", connectionID, err)
}

// nameMatches reports whether a lowercase node name matches a lowercase
// needle, comparing once verbatim and once with name separators removed.
func nameMatches(name, needle string) bool {
	if strings.Contains(name, needle) {
		return true
	}
	strip := func(s string) string {
		return strings.Map(func(r rune) rune {
			if r == '_' || r == '-' || r == '.' {
				return -1
			}
			return r
		}, s)
	}
	return strings.Contains(strip(name), strip(needle))
}

func filterAllows(node *TreeNode, filters *SearchFilters) bool {
	if filters == nil {
		return true
	}
	if len(filters.Types) > 0 {
		found := false
		for _, t := range filters.Types {
			if node.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(filters.Schemas) > 0 {
		// Path layout is database, schema, relation, column.
		if len(node.Path) < 2 {
			return false
		}
		found := false
		for _, schemaName := range filters.Schemas {
			if strings.EqualFold(node.Path[1], schemaName) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Search ordering: relations first, structural nodes later.
func typePriority(t NodeType) int {
	switch t {
	case NodeTable:
		return 0
	case NodeView:
		return 1
	case NodeColumn:
		return 2
	case NodeSchema:
		return 3
	case NodeDatabase:
		return 4
	case NodeIndex:
		return 5
	case NodeConstraint:
		return 6
	default:
		return 7
	}
}

// RegistryIntrospector adapts the engine registry into an Introspector by
// routing to the connection's engine plugin.
type RegistryIntrospector struct {
	registry *engine.Registry
}

// NewRegistryIntrospector wraps a registry.
func NewRegistryIntrospector(registry *engine.Registry) *RegistryIntrospector {
	return &RegistryIntrospector{registry: registry}
}

// Introspect resolves the descriptor's engine plugin and asks its schema
// provider for a snapshot.
func (r *RegistryIntrospector) Introspect(ctx context.Context, desc *engine.ConnectionDescriptor) (*engine.IntrospectionResult, error) {
	plugin, err := r.registry.Get(desc.Engine)
	if err != nil {
		return nil, err
	}
	return plugin.Schemas().Schema(ctx, desc.ID)
}
