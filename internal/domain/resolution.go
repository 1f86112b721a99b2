package domain

type ResolutionKind string

const (
	ResolutionCategory ResolutionKind = "category"
	ResolutionProduct  ResolutionKind = "product"
	ResolutionNotFound ResolutionKind = "not_found"
)

// Resolution is the outcome of resolving a storefront path. Exactly one of
// Category and Product is set, matching Kind; both are nil for not_found.
type Resolution struct {
	Kind     ResolutionKind `json:"kind"`
	Category *Category      `json:"category,omitempty"`
	Product  *Product       `json:"product,omitempty"`
}

func CategoryResolution(c *Category) Resolution {
	return Resolution{Kind: ResolutionCategory, Category: c}
}

func ProductResolution(p *Product) Resolution {
	return Resolution{Kind: ResolutionProduct, Product: p}
}

func NotFound() Resolution {
	return Resolution{Kind: ResolutionNotFound}
}

func (r Resolution) IsNotFound() bool {
	return r.Kind == ResolutionNotFound
}
