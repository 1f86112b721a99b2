// Package resolver maps storefront URL paths to a category, a product or
// nothing.
//
// Categories are matched by exact computed full path. Products are fetched
// directly by id or slug and, failing that, looked up through upstream
// full-text search where only an exact slug or frontend path match counts.
package resolver

import (
	"context"
	"strconv"
	"strings"

	"storefront/catalog/internal/catalog"
	"storefront/catalog/internal/domain"

	log "github.com/sirupsen/logrus"
)

const htmlSuffix = ".html"

// Catalog is the part of the catalog client the resolver needs.
type Catalog interface {
	FetchCategoryTree(ctx context.Context) []domain.Category
	FetchProduct(ctx context.Context, idOrSlug string) (*domain.Product, error)
	FetchProductByID(ctx context.Context, id int64) (*domain.Product, error)
	SearchProducts(ctx context.Context, query string, page int) ([]domain.Product, error)
}

type Option func(*Resolver)

// WithLooseMatching makes the search fallback return the first search hit
// when no exact match exists. Results may be unrelated products; use only
// where a best-effort page is preferable to a 404.
func WithLooseMatching() Option {
	return func(r *Resolver) {
		r.loose = true
	}
}

type Resolver struct {
	catalog Catalog
	loose   bool
}

func New(c Catalog, opts ...Option) *Resolver {
	r := &Resolver{catalog: c}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve decides what segments name. Errors from the upstream are logged and
// folded into a not_found result.
func (r *Resolver) Resolve(ctx context.Context, segments []string) domain.Resolution {
	return r.ResolveWithIndex(ctx, catalog.BuildIndex(r.catalog.FetchCategoryTree(ctx)), segments)
}

// ResolveWithIndex is Resolve against an already built category index.
func (r *Resolver) ResolveWithIndex(ctx context.Context, idx *catalog.Index, segments []string) domain.Resolution {
	segments = cleanSegments(segments)
	if len(segments) == 0 {
		return domain.NotFound()
	}

	path := strings.Join(segments, "/")
	if category, ok := idx.ByPath(path); ok {
		log.Debugf("Resolved %q to category %d", path, category.ID)
		return domain.CategoryResolution(category)
	}

	slug := segments[len(segments)-1]
	if isFileLike(slug) {
		log.Debugf("Rejected file-like path %q", path)
		return domain.NotFound()
	}

	if product := r.fetchDirect(ctx, slug); product != nil {
		return domain.ProductResolution(product)
	}

	if product := r.searchFallback(ctx, slug); product != nil {
		return domain.ProductResolution(product)
	}

	log.Debugf("Nothing found for %q", path)
	return domain.NotFound()
}

func (r *Resolver) fetchDirect(ctx context.Context, slug string) *domain.Product {
	var (
		product *domain.Product
		err     error
	)
	if isDigits(slug) {
		id, convErr := strconv.ParseInt(slug, 10, 64)
		if convErr != nil {
			return nil
		}
		product, err = r.catalog.FetchProductByID(ctx, id)
	} else {
		product, err = r.catalog.FetchProduct(ctx, slug)
	}
	if err != nil {
		log.Debugf("Direct product lookup for %q failed: %v", slug, err)
		return nil
	}
	return product
}

func (r *Resolver) searchFallback(ctx context.Context, slug string) *domain.Product {
	fullQuery := FullQuery(slug)
	if fullQuery == "" {
		return nil
	}

	targets := matchTargets(slug)
	var firstHit *domain.Product

	queries := []string{fullQuery}
	if last := LastQuery(slug); last != "" && last != fullQuery {
		queries = append(queries, last)
	}

	for _, query := range queries {
		products, err := r.catalog.SearchProducts(ctx, query, 0)
		if err != nil {
			log.Warnf("⚠️ Search fallback for %q failed: %v", query, err)
			continue
		}
		if match := findExact(products, targets); match != nil {
			log.Debugf("Resolved %q via search %q to product %d", slug, query, match.ID)
			return match
		}
		if firstHit == nil && len(products) > 0 {
			firstHit = &products[0]
		}
	}

	if r.loose && firstHit != nil {
		log.Warnf("⚠️ Loose match: %q served by product %d", slug, firstHit.ID)
		return firstHit
	}
	return nil
}

// FullQuery turns a slug into the free-text query for the first search pass.
func FullQuery(slug string) string {
	q := strings.TrimSuffix(slug, htmlSuffix)
	q = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(q)
	return strings.Join(strings.Fields(q), " ")
}

// LastQuery joins the final two hyphen or slash delimited parts of the slug,
// or returns "" when the slug has fewer than two parts.
func LastQuery(slug string) string {
	parts := strings.FieldsFunc(strings.TrimSuffix(slug, htmlSuffix), func(r rune) bool {
		return r == '-' || r == '/'
	})
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2] + " " + parts[len(parts)-1]
}

func findExact(products []domain.Product, targets []string) *domain.Product {
	for i := range products {
		if matchesExactly(&products[i], targets) {
			return &products[i]
		}
	}
	return nil
}

func matchesExactly(p *domain.Product, targets []string) bool {
	segment := normalize(p.URLSegment)
	frontend := normalize(p.FrontendPath)
	for _, target := range targets {
		if segment != "" && segment == target {
			return true
		}
		if frontend != "" && (frontend == target || strings.HasSuffix(frontend, "/"+target)) {
			return true
		}
	}
	return false
}

// matchTargets is the slug as requested plus, for "name.html", the bare name.
func matchTargets(slug string) []string {
	target := normalize(slug)
	targets := []string{target}
	if trimmed := strings.TrimSuffix(target, htmlSuffix); trimmed != target && trimmed != "" {
		targets = append(targets, trimmed)
	}
	return targets
}

func normalize(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), "/"))
}

func isFileLike(slug string) bool {
	return strings.Contains(slug, ".") && !strings.HasSuffix(slug, htmlSuffix)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func cleanSegments(segments []string) []string {
	cleaned := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}

// SplitPath splits a raw URL path into segments.
func SplitPath(path string) []string {
	return cleanSegments(strings.Split(path, "/"))
}
