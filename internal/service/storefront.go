package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/catalog/internal/catalog"
	"storefront/catalog/internal/domain"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPageSize = 24
	MinPageSize     = 6
	MaxPageSize     = 60
	paginationSpan  = 2
)

var ErrPageNotFound = errors.New("page not found")

// StorefrontCatalog is the part of the catalog client page rendering needs.
type StorefrontCatalog interface {
	FetchCategoryTree(ctx context.Context) []domain.Category
	FetchCategoryProducts(ctx context.Context, categoryID int64, query domain.ProductQuery) (*domain.ProductPage, error)
}

// Resolver resolves segments against a category index the caller built.
type Resolver interface {
	ResolveWithIndex(ctx context.Context, idx *catalog.Index, segments []string) domain.Resolution
}

// ListingQuery is the page, page size and sort a visitor asked for.
type ListingQuery struct {
	Page  int
	Limit int
	Sort  string
	Order string
}

// Normalize applies defaults and clamps the page size.
func (q ListingQuery) Normalize() ListingQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultPageSize
	case q.Limit < MinPageSize:
		q.Limit = MinPageSize
	case q.Limit > MaxPageSize:
		q.Limit = MaxPageSize
	}
	if q.Sort == "" {
		q.Order = ""
	} else if q.Order == "" {
		q.Order = "asc"
	}
	return q
}

type Breadcrumb struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int   `json:"total"`
	TotalPages int   `json:"total_pages"`
	Prev       int   `json:"prev,omitempty"`
	Next       int   `json:"next,omitempty"`
	Window     []int `json:"window"`
}

// NewPagination computes page math for total items shown limit per page.
// A page beyond TotalPages is reported as requested, with no Next.
func NewPagination(page, limit, total int) Pagination {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	totalPages := max(1, (total+limit-1)/limit)
	page = max(page, 1)

	// Page stays as requested so it always describes the products shown; a
	// page past the end links back to the last one.
	p := Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
	if page > 1 {
		p.Prev = min(page-1, totalPages)
	}
	if page < totalPages {
		p.Next = page + 1
	}
	anchor := min(page, totalPages)
	for n := max(1, anchor-paginationSpan); n <= min(totalPages, anchor+paginationSpan); n++ {
		p.Window = append(p.Window, n)
	}
	return p
}

type ProductCard struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Path         string          `json:"path"`
	Image        string          `json:"image,omitempty"`
	Price        decimal.Decimal `json:"price"`
	ComparePrice decimal.Decimal `json:"compare_price"`
	Available    bool            `json:"available"`
}

func NewProductCard(p *domain.Product) ProductCard {
	card := ProductCard{
		ID:    int64(p.ID),
		Name:  p.Name,
		Path:  p.FrontendPath,
		Price: p.Price(),
	}
	if card.Path == "" {
		card.Path = p.URLSegment
	}
	if img := p.PrimaryImage(); img != nil {
		card.Image = img.Thumb
	}
	if sku := p.RepresentativeSKU(); sku != nil {
		card.Available = bool(sku.Available)
		card.ComparePrice = sku.ComparePrice.Decimal
	}
	return card
}

type CategoryView struct {
	Category      domain.Category   `json:"category"`
	Breadcrumbs   []Breadcrumb      `json:"breadcrumbs"`
	Subcategories []domain.Category `json:"subcategories"`
	Products      []ProductCard     `json:"products"`
	Pagination    Pagination        `json:"pagination"`
	Sort          string            `json:"sort,omitempty"`
	Order         string            `json:"order,omitempty"`
	// ListingError is set when the product listing could not be loaded; the
	// rest of the page still renders.
	ListingError string `json:"listing_error,omitempty"`
}

type ProductView struct {
	Product     ProductCard    `json:"product"`
	Breadcrumbs []Breadcrumb   `json:"breadcrumbs"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Images      []domain.Image `json:"images,omitempty"`
}

// Page is the read model behind a storefront URL.
type Page struct {
	Kind     domain.ResolutionKind `json:"kind"`
	Category *CategoryView         `json:"category,omitempty"`
	Product  *ProductView          `json:"product,omitempty"`
}

type StorefrontService struct {
	catalog  StorefrontCatalog
	resolver Resolver
}

func NewStorefrontService(c StorefrontCatalog, r Resolver) *StorefrontService {
	return &StorefrontService{
		catalog:  c,
		resolver: r,
	}
}

// Page resolves segments and assembles the category or product page. The
// tree is fetched once per request so resolution, breadcrumbs and
// subcategories all see the same catalog.
func (s *StorefrontService) Page(ctx context.Context, segments []string, query ListingQuery) (*Page, error) {
	idx := catalog.BuildIndex(s.catalog.FetchCategoryTree(ctx))
	resolution := s.resolver.ResolveWithIndex(ctx, idx, segments)

	switch resolution.Kind {
	case domain.ResolutionCategory:
		view := s.categoryView(ctx, idx, resolution.Category, query.Normalize())
		return &Page{Kind: resolution.Kind, Category: view}, nil
	case domain.ResolutionProduct:
		view := productView(idx, resolution.Product)
		return &Page{Kind: resolution.Kind, Product: view}, nil
	default:
		return nil, fmt.Errorf("%w: /%s", ErrPageNotFound, strings.Join(segments, "/"))
	}
}

func (s *StorefrontService) categoryView(ctx context.Context, idx *catalog.Index, category *domain.Category, query ListingQuery) *CategoryView {
	view := &CategoryView{
		Category:      *category,
		Breadcrumbs:   categoryBreadcrumbs(idx, int64(category.ID)),
		Subcategories: []domain.Category{},
		Products:      []ProductCard{},
		Sort:          query.Sort,
		Order:         query.Order,
	}
	for _, child := range idx.Children(int64(category.ID)) {
		view.Subcategories = append(view.Subcategories, *child)
	}

	page, err := s.catalog.FetchCategoryProducts(ctx, int64(category.ID), domain.ProductQuery{
		Page:     query.Page,
		PageSize: query.Limit,
		Sort:     query.Sort,
		Order:    query.Order,
	})
	if err != nil {
		log.Warnf("⚠️ Listing for category %d unavailable: %v", category.ID, err)
		view.ListingError = "products are temporarily unavailable"
		view.Pagination = NewPagination(query.Page, query.Limit, 0)
		return view
	}

	for i := range page.Products {
		view.Products = append(view.Products, NewProductCard(&page.Products[i]))
	}
	view.Pagination = NewPagination(query.Page, query.Limit, page.TotalCount)
	return view
}

func productView(idx *catalog.Index, p *domain.Product) *ProductView {
	crumbs := categoryBreadcrumbs(idx, int64(p.CategoryID))
	crumbs = append(crumbs, Breadcrumb{Name: p.Name})

	return &ProductView{
		Product:     NewProductCard(p),
		Breadcrumbs: crumbs,
		Summary:     domain.StripTemplateVars(p.Summary),
		Description: p.CleanDescription(),
		Images:      p.Images,
	}
}

// categoryBreadcrumbs lists the chain from the root to categoryID inclusive.
func categoryBreadcrumbs(idx *catalog.Index, categoryID int64) []Breadcrumb {
	chain := idx.Ancestors(categoryID)
	crumbs := make([]Breadcrumb, 0, len(chain)+1)
	for _, c := range chain {
		crumbs = append(crumbs, Breadcrumb{Name: c.Name, Path: "/" + c.FullPath + "/"})
	}
	return crumbs
}
