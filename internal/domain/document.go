package domain

// IndexDocument is a product as stored in the search index.
type IndexDocument struct {
	ID          int64   `json:"-"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	URL         string  `json:"url"`
	ImageURL    string  `json:"image_url"`
}

// SearchHit is a single search index match.
type SearchHit struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	URL      string  `json:"url"`
	Image    string  `json:"image"`
	Category string  `json:"category"`
}
