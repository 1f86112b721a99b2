package domain

import "strconv"

// Category is a node of the upstream category tree.
type Category struct {
	ID           FlexInt    `json:"id"`
	Name         string     `json:"name"`
	ParentID     FlexInt    `json:"parent_id,omitempty"`
	URLSegment   string     `json:"url,omitempty"`
	FullPath     string     `json:"full_path,omitempty"` // Computed while flattening, overrides upstream
	ProductCount FlexInt    `json:"count,omitempty"`
	Children     []Category `json:"categories,omitempty"`
}

// Segment returns the url segment of the category, falling back to its id.
func (c *Category) Segment() string {
	if c.URLSegment != "" {
		return c.URLSegment
	}
	return strconv.FormatInt(int64(c.ID), 10)
}

func (c *Category) IsRoot() bool {
	return c.ParentID == 0
}
