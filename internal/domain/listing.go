package domain

// ProductQuery holds listing parameters for a category.
type ProductQuery struct {
	Page     int
	PageSize int
	Sort     string // price, name, create_datetime, total_sales
	Order    string // asc, desc
}

// ProductPage is one page of a category listing.
type ProductPage struct {
	Products   []Product `json:"products"`
	TotalCount int       `json:"count"`
	// Estimated is set when the upstream sent no count and TotalCount is a
	// lower bound that only guarantees one more page.
	Estimated bool `json:"estimated,omitempty"`
}
