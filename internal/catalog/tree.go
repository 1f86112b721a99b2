// Package catalog flattens the upstream category tree and indexes it by id and
// by computed full path.
package catalog

import (
	"strings"

	"storefront/catalog/internal/domain"

	log "github.com/sirupsen/logrus"
)

// MaxDepth bounds traversal of untrusted upstream trees.
const MaxDepth = 32

// Flatten walks the tree depth-first in pre-order and returns every node once,
// parents before children, each carrying its computed FullPath. Children are
// dropped from the returned entries; the hierarchy survives in ParentID.
// Branches deeper than MaxDepth and ids seen earlier are skipped.
func Flatten(roots []domain.Category) []domain.Category {
	flat := make([]domain.Category, 0, len(roots))
	seen := make(map[domain.FlexInt]struct{})

	var walk func(nodes []domain.Category, parent *domain.Category, depth int)
	walk = func(nodes []domain.Category, parent *domain.Category, depth int) {
		if depth >= MaxDepth {
			log.Warnf("⚠️ Category tree deeper than %d levels, dropping %d nodes under %q", MaxDepth, len(nodes), parent.FullPath)
			return
		}
		for i := range nodes {
			node := nodes[i]
			if _, dup := seen[node.ID]; dup {
				log.Warnf("⚠️ Category %d appears twice in the tree, skipping", node.ID)
				continue
			}
			seen[node.ID] = struct{}{}

			node.FullPath = node.Segment()
			if parent != nil {
				node.FullPath = parent.FullPath + "/" + node.Segment()
				// Nesting is authoritative over a missing or stale parent_id
				node.ParentID = parent.ID
			}

			children := node.Children
			node.Children = nil
			flat = append(flat, node)

			walk(children, &node, depth+1)
		}
	}

	walk(roots, nil, 0)
	return flat
}

// Index provides O(1) lookups over a flattened tree.
type Index struct {
	all      []domain.Category
	byID     map[domain.FlexInt]*domain.Category
	byPath   map[string]*domain.Category
	children map[domain.FlexInt][]*domain.Category
}

func NewIndex(flat []domain.Category) *Index {
	idx := &Index{
		all:      flat,
		byID:     make(map[domain.FlexInt]*domain.Category, len(flat)),
		byPath:   make(map[string]*domain.Category, len(flat)),
		children: make(map[domain.FlexInt][]*domain.Category),
	}
	for i := range flat {
		c := &flat[i]
		idx.byID[c.ID] = c
		if _, dup := idx.byPath[c.FullPath]; !dup {
			idx.byPath[c.FullPath] = c
		}
		if !c.IsRoot() {
			idx.children[c.ParentID] = append(idx.children[c.ParentID], c)
		}
	}
	return idx
}

// BuildIndex flattens roots and indexes the result.
func BuildIndex(roots []domain.Category) *Index {
	return NewIndex(Flatten(roots))
}

func (idx *Index) All() []domain.Category {
	return idx.all
}

func (idx *Index) Len() int {
	return len(idx.all)
}

func (idx *Index) ByID(id int64) (*domain.Category, bool) {
	c, ok := idx.byID[domain.FlexInt(id)]
	return c, ok
}

// ByPath matches a full path exactly, ignoring leading and trailing slashes.
func (idx *Index) ByPath(path string) (*domain.Category, bool) {
	c, ok := idx.byPath[strings.Trim(path, "/")]
	return c, ok
}

// Children returns the direct subcategories of id in tree order.
func (idx *Index) Children(id int64) []*domain.Category {
	return idx.children[domain.FlexInt(id)]
}

// Ancestors returns the chain from the root down to id, inclusive. The walk is
// bounded by MaxDepth so a parent cycle cannot loop forever.
func (idx *Index) Ancestors(id int64) []*domain.Category {
	var chain []*domain.Category
	current, ok := idx.byID[domain.FlexInt(id)]
	for steps := 0; ok && steps <= MaxDepth; steps++ {
		chain = append(chain, current)
		if current.IsRoot() {
			break
		}
		current, ok = idx.byID[current.ParentID]
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// PathFor re-derives the full path of id from its parent chain.
func (idx *Index) PathFor(id int64) string {
	chain := idx.Ancestors(id)
	segments := make([]string, 0, len(chain))
	for _, c := range chain {
		segments = append(segments, c.Segment())
	}
	return strings.Join(segments, "/")
}
