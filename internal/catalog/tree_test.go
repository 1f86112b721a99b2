package catalog

import (
	"strings"
	"testing"

	"storefront/catalog/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() []domain.Category {
	return []domain.Category{
		{
			ID: 1, Name: "Catalog", URLSegment: "catalog",
			Children: []domain.Category{
				{ID: 42, Name: "Air conditioners", URLSegment: "air-conditioners", Children: []domain.Category{
					{ID: 43, Name: "Split systems", URLSegment: "split"},
					{ID: 44, Name: "No slug"},
				}},
				{ID: 50, Name: "Heaters", URLSegment: "heaters"},
			},
		},
		{ID: 2, Name: "Sale", URLSegment: "sale"},
	}
}

func TestFlatten_PreOrderWithPaths(t *testing.T) {
	flat := Flatten(sampleTree())

	ids := make([]domain.FlexInt, 0, len(flat))
	paths := make(map[domain.FlexInt]string)
	for _, c := range flat {
		ids = append(ids, c.ID)
		paths[c.ID] = c.FullPath
		assert.Nil(t, c.Children)
	}

	assert.Equal(t, []domain.FlexInt{1, 42, 43, 44, 50, 2}, ids)
	assert.Equal(t, "catalog", paths[1])
	assert.Equal(t, "catalog/air-conditioners", paths[42])
	assert.Equal(t, "catalog/air-conditioners/split", paths[43])
	assert.Equal(t, "catalog/air-conditioners/44", paths[44])
	assert.Equal(t, "sale", paths[2])
}

func TestFlatten_ParentsBeforeChildren(t *testing.T) {
	flat := Flatten(sampleTree())

	position := make(map[domain.FlexInt]int)
	for i, c := range flat {
		position[c.ID] = i
	}
	for _, c := range flat {
		if c.IsRoot() {
			continue
		}
		parentPos, ok := position[c.ParentID]
		require.True(t, ok, "parent of %d missing", c.ID)
		assert.Less(t, parentPos, position[c.ID])
	}
}

func TestFlatten_DepthBound(t *testing.T) {
	// A chain far deeper than MaxDepth, as a malformed upstream could send.
	var build func(depth int) domain.Category
	build = func(depth int) domain.Category {
		c := domain.Category{ID: domain.FlexInt(depth + 1), URLSegment: "n"}
		if depth < 200 {
			c.Children = []domain.Category{build(depth + 1)}
		}
		return c
	}

	flat := Flatten([]domain.Category{build(0)})

	assert.Len(t, flat, MaxDepth)
	assert.Equal(t, MaxDepth, strings.Count(flat[len(flat)-1].FullPath, "n"))
}

func TestFlatten_DuplicateIDsVisitedOnce(t *testing.T) {
	roots := []domain.Category{
		{ID: 1, URLSegment: "a", Children: []domain.Category{{ID: 1, URLSegment: "again"}}},
		{ID: 2, URLSegment: "b"},
	}

	flat := Flatten(roots)
	require.Len(t, flat, 2)
	assert.Equal(t, "a", flat[0].FullPath)
}

func TestIndex_Lookups(t *testing.T) {
	idx := BuildIndex(sampleTree())

	c, ok := idx.ByPath("catalog/air-conditioners")
	require.True(t, ok)
	assert.Equal(t, domain.FlexInt(42), c.ID)

	c, ok = idx.ByPath("/catalog/air-conditioners/")
	require.True(t, ok)
	assert.Equal(t, domain.FlexInt(42), c.ID)

	_, ok = idx.ByPath("air-conditioners")
	assert.False(t, ok, "prefix or partial paths must not match")

	c, ok = idx.ByID(50)
	require.True(t, ok)
	assert.Equal(t, "catalog/heaters", c.FullPath)

	children := idx.Children(42)
	require.Len(t, children, 2)
	assert.Equal(t, domain.FlexInt(43), children[0].ID)
	assert.Empty(t, idx.Children(2))
	assert.Equal(t, 6, idx.Len())
}

func TestIndex_PathRoundTrip(t *testing.T) {
	idx := BuildIndex(sampleTree())

	for _, c := range idx.All() {
		assert.Equal(t, c.FullPath, idx.PathFor(int64(c.ID)), "category %d", c.ID)
	}
}

func TestIndex_AncestorsRootFirst(t *testing.T) {
	idx := BuildIndex(sampleTree())

	chain := idx.Ancestors(43)
	require.Len(t, chain, 3)
	assert.Equal(t, domain.FlexInt(1), chain[0].ID)
	assert.Equal(t, domain.FlexInt(42), chain[1].ID)
	assert.Equal(t, domain.FlexInt(43), chain[2].ID)

	assert.Empty(t, idx.Ancestors(999))
}

func TestIndex_AncestorsTerminateOnParentCycle(t *testing.T) {
	idx := NewIndex([]domain.Category{
		{ID: 1, ParentID: 2, URLSegment: "a", FullPath: "a"},
		{ID: 2, ParentID: 1, URLSegment: "b", FullPath: "b"},
	})

	chain := idx.Ancestors(1)
	assert.LessOrEqual(t, len(chain), MaxDepth+1)
}
