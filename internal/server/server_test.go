package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"storefront/catalog/internal/client"
	"storefront/catalog/internal/domain"
	"storefront/catalog/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalog struct {
	tree       []domain.Category
	page       *domain.ProductPage
	listingErr error
	products   map[string]*domain.Product

	lastQuery domain.ProductQuery
}

func (s *stubCatalog) FetchCategoryTree(ctx context.Context) []domain.Category {
	return s.tree
}

func (s *stubCatalog) LoadCategoryTree(ctx context.Context) ([]domain.Category, error) {
	return s.tree, nil
}

func (s *stubCatalog) FetchCategoryProducts(ctx context.Context, categoryID int64, query domain.ProductQuery) (*domain.ProductPage, error) {
	s.lastQuery = query
	if s.listingErr != nil {
		return nil, s.listingErr
	}
	return s.page, nil
}

func (s *stubCatalog) FetchProduct(ctx context.Context, idOrSlug string) (*domain.Product, error) {
	if p, ok := s.products[idOrSlug]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("failed to fetch product %s: %w", idOrSlug, client.ErrNotFound)
}

func (s *stubCatalog) FetchProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	return s.FetchProduct(ctx, fmt.Sprint(id))
}

func (s *stubCatalog) SearchProducts(ctx context.Context, query string, page int) ([]domain.Product, error) {
	return nil, nil
}

type stubResolver struct {
	resolution domain.Resolution
	segments   []string
}

func (r *stubResolver) Resolve(ctx context.Context, segments []string) domain.Resolution {
	r.segments = segments
	return r.resolution
}

type stubStorefront struct {
	page  *service.Page
	err   error
	query service.ListingQuery
}

func (s *stubStorefront) Page(ctx context.Context, segments []string, query service.ListingQuery) (*service.Page, error) {
	s.query = query
	return s.page, s.err
}

type stubIndex struct {
	hits    []domain.SearchHit
	err     error
	queries []string
}

func (i *stubIndex) Reset(ctx context.Context) error {
	return nil
}

func (i *stubIndex) BulkUpsert(ctx context.Context, docs []domain.IndexDocument) error {
	return nil
}

func (i *stubIndex) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	i.queries = append(i.queries, query)
	return i.hits, i.err
}

type fixture struct {
	catalog    *stubCatalog
	resolver   *stubResolver
	storefront *stubStorefront
	index      *stubIndex
	server     *Server
}

func newFixture() *fixture {
	f := &fixture{
		catalog: &stubCatalog{
			tree: []domain.Category{
				{ID: 1, Name: "Catalog", URLSegment: "catalog", Children: []domain.Category{
					{ID: 42, Name: "Air conditioners", URLSegment: "air-conditioners"},
				}},
			},
			page:     &domain.ProductPage{Products: []domain.Product{{ID: 7, Name: "Ballu"}}, TotalCount: 30},
			products: map[string]*domain.Product{"ballu": {ID: 7, Name: "Ballu"}},
		},
		resolver:   &stubResolver{resolution: domain.NotFound()},
		storefront: &stubStorefront{},
		index:      &stubIndex{},
	}
	f.server = New(f.catalog, f.resolver, f.storefront, f.index, 10)
	return f
}

func (f *fixture) get(t *testing.T, target string) (int, map[string]any) {
	t.Helper()
	resp, err := f.server.App().Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return resp.StatusCode, body
}

func TestCategories(t *testing.T) {
	f := newFixture()

	status, body := f.get(t, "/api/catalog/categories")

	require.Equal(t, http.StatusOK, status)
	categories := body["categories"].([]any)
	require.Len(t, categories, 2)
	assert.Equal(t, "catalog/air-conditioners", categories[1].(map[string]any)["full_path"])
}

func TestCategoryProducts(t *testing.T) {
	f := newFixture()

	status, body := f.get(t, "/api/catalog/category/42?page=2&limit=12&sort=price&order=desc")

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.ProductQuery{Page: 2, PageSize: 12, Sort: "price", Order: "desc"}, f.catalog.lastQuery)
	assert.EqualValues(t, 30, body["count"])
	pagination := body["pagination"].(map[string]any)
	assert.EqualValues(t, 3, pagination["total_pages"])
}

func TestCategoryProducts_Defaults(t *testing.T) {
	f := newFixture()

	status, _ := f.get(t, "/api/catalog/category/42")

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.ProductQuery{Page: 1, PageSize: 24}, f.catalog.lastQuery)
}

func TestCategoryProducts_Validation(t *testing.T) {
	tests := []string{
		"/api/catalog/category/abc",
		"/api/catalog/category/0",
		"/api/catalog/category/42?page=0",
		"/api/catalog/category/42?limit=5",
		"/api/catalog/category/42?limit=61",
		"/api/catalog/category/42?sort=rating",
		"/api/catalog/category/42?sort=price&order=up",
		"/api/catalog/category/42?page=x",
	}

	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			status, body := newFixture().get(t, target)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCategoryProducts_UpstreamFailure(t *testing.T) {
	f := newFixture()
	f.catalog.listingErr = &client.TransportError{StatusCode: 503, URL: "http://upstream/category/42/products"}

	status, body := f.get(t, "/api/catalog/category/42")

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "catalog upstream unavailable", body["error"])
}

func TestProduct(t *testing.T) {
	f := newFixture()

	status, body := f.get(t, "/api/catalog/product/ballu")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ballu", body["name"])

	status, body = f.get(t, "/api/catalog/product/missing")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not found", body["error"])
}

func TestResolve(t *testing.T) {
	f := newFixture()
	f.resolver.resolution = domain.CategoryResolution(&domain.Category{ID: 42, FullPath: "catalog/air-conditioners"})

	status, body := f.get(t, "/api/resolve/catalog/air-conditioners/")

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "category", body["kind"])
	assert.Equal(t, []string{"catalog", "air-conditioners"}, f.resolver.segments)
}

func TestResolve_NotFound(t *testing.T) {
	f := newFixture()

	status, body := f.get(t, "/api/resolve/robots.txt")

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["kind"])
}

func TestPage(t *testing.T) {
	f := newFixture()
	f.storefront.page = &service.Page{Kind: domain.ResolutionProduct, Product: &service.ProductView{}}

	status, body := f.get(t, "/api/page/ballu?limit=100")

	require.Equal(t, http.StatusBadRequest, status, "limit above the maximum is rejected")
	assert.NotEmpty(t, body["error"])

	status, body = f.get(t, "/api/page/ballu?page=3")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "product", body["kind"])
	assert.Equal(t, service.ListingQuery{Page: 3, Limit: 24}, f.storefront.query)
}

func TestPage_NotFound(t *testing.T) {
	f := newFixture()
	f.storefront.err = fmt.Errorf("%w: /nowhere", service.ErrPageNotFound)

	status, _ := f.get(t, "/api/page/nowhere")

	assert.Equal(t, http.StatusNotFound, status)
}

func TestSearch(t *testing.T) {
	f := newFixture()
	f.index.hits = []domain.SearchHit{{ID: 7, Name: "Ballu"}}

	status, body := f.get(t, "/api/search?q=ballu")

	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["results"], 1)
	assert.Equal(t, []string{"ballu"}, f.index.queries)
}

func TestSearch_ShortQuery(t *testing.T) {
	f := newFixture()

	for _, target := range []string{"/api/search", "/api/search?q=a", "/api/search?q=%20%D0%B1%20"} {
		status, body := f.get(t, target)
		require.Equal(t, http.StatusOK, status)
		assert.Empty(t, body["results"])
	}
	assert.Empty(t, f.index.queries)
}

func TestSearch_IndexFailure(t *testing.T) {
	f := newFixture()
	f.index.err = errors.New("connection refused")

	status, body := f.get(t, "/api/search?q=ballu")

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body["error"])
}

func TestResolve_PercentEncodedPath(t *testing.T) {
	f := newFixture()
	f.resolver.resolution = domain.CategoryResolution(&domain.Category{ID: 42, FullPath: "каталог/кондиционеры"})

	target := "/api/resolve/" + url.PathEscape("каталог") + "/" + url.PathEscape("кондиционеры") + "/"
	status, body := f.get(t, target)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "category", body["kind"])
	assert.Equal(t, []string{"каталог", "кондиционеры"}, f.resolver.segments)
}

func TestProduct_PercentEncodedSlug(t *testing.T) {
	f := newFixture()
	f.catalog.products["кондиционер-ballu"] = &domain.Product{ID: 9, Name: "Кондиционер Ballu"}

	status, body := f.get(t, "/api/catalog/product/"+url.PathEscape("кондиционер-ballu"))

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Кондиционер Ballu", body["name"])
}
