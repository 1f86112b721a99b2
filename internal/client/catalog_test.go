package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"storefront/catalog/internal/config"
	"storefront/catalog/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstreamRoute struct {
	status      int
	contentType string
	body        string
	delay       time.Duration
}

func newUpstream(t *testing.T, routes map[string]upstreamRoute) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		route, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if route.delay > 0 {
			time.Sleep(route.delay)
		}
		contentType := route.contentType
		if contentType == "" {
			contentType = "application/json; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		status := route.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(route.body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(baseURL string, cacheEnabled bool) CatalogClient {
	return NewCatalogClient(
		config.UpstreamConfig{BaseURL: baseURL, Timeout: 2},
		config.CacheConfig{Enabled: cacheEnabled, Size: 16, CategoryTTL: 60, ListingTTL: 60, ProductTTL: 60, SearchTTL: 60},
	)
}

func TestFetchCategoryTree_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "wrapped object", body: `{"categories":[{"id":1,"name":"A","categories":[{"id":2,"name":"B","parent_id":"1"}]}]}`, want: 1},
		{name: "bare array", body: `[{"id":"1","name":"A"},{"id":3,"name":"C"}]`, want: 2},
		{name: "empty object", body: `{}`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newUpstream(t, map[string]upstreamRoute{"/categories": {body: tt.body}})
			c := newTestClient(srv.URL, false)

			got := c.FetchCategoryTree(context.Background())
			require.NotNil(t, got)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestFetchCategoryTree_NestedChildren(t *testing.T) {
	srv, _ := newUpstream(t, map[string]upstreamRoute{"/categories": {
		body: `{"categories":[{"id":1,"name":"Catalog","url":"catalog","categories":[{"id":42,"name":"AC","url":"air-conditioners","parent_id":1}]}]}`,
	}})
	c := newTestClient(srv.URL, false)

	got := c.FetchCategoryTree(context.Background())
	require.Len(t, got, 1)
	require.Len(t, got[0].Children, 1)
	assert.Equal(t, domain.FlexInt(42), got[0].Children[0].ID)
	assert.Equal(t, domain.FlexInt(1), got[0].Children[0].ParentID)
}

func TestFetchCategoryTree_SwallowsFailures(t *testing.T) {
	tests := []struct {
		name  string
		route upstreamRoute
	}{
		{name: "server error", route: upstreamRoute{status: http.StatusBadGateway, body: "bad gateway"}},
		{name: "html answer", route: upstreamRoute{contentType: "text/html", body: "<html>login</html>"}},
		{name: "broken json", route: upstreamRoute{body: `{"categories":[`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newUpstream(t, map[string]upstreamRoute{"/categories": tt.route})
			c := newTestClient(srv.URL, false)

			got := c.FetchCategoryTree(context.Background())
			assert.NotNil(t, got)
			assert.Empty(t, got)

			_, err := c.LoadCategoryTree(context.Background())
			assert.True(t, IsTransport(err))
		})
	}
}

func TestFetchCategoryProducts(t *testing.T) {
	t.Run("wrapped with count", func(t *testing.T) {
		srv, _ := newUpstream(t, map[string]upstreamRoute{"/category/7/products": {
			body: `{"count":"57","products":[{"id":1,"name":"One","skus":[{"price_str":"1 000 руб.","available":1}]}]}`,
		}})
		c := newTestClient(srv.URL, false)

		page, err := c.FetchCategoryProducts(context.Background(), 7, domain.ProductQuery{Page: 2, PageSize: 24})
		require.NoError(t, err)
		assert.Equal(t, 57, page.TotalCount)
		require.Len(t, page.Products, 1)
		assert.True(t, bool(page.Products[0].SKUs[0].Available))
	})

	t.Run("bare array", func(t *testing.T) {
		srv, _ := newUpstream(t, map[string]upstreamRoute{"/category/7/products": {body: `[{"id":1},{"id":2}]`}})
		c := newTestClient(srv.URL, false)

		page, err := c.FetchCategoryProducts(context.Background(), 7, domain.ProductQuery{})
		require.NoError(t, err)
		assert.Equal(t, 2, page.TotalCount)
	})

	t.Run("not found", func(t *testing.T) {
		srv, _ := newUpstream(t, map[string]upstreamRoute{})
		c := newTestClient(srv.URL, false)

		_, err := c.FetchCategoryProducts(context.Background(), 7, domain.ProductQuery{})
		assert.True(t, IsNotFound(err))
		assert.False(t, IsTransport(err))
	})

	t.Run("invalid id", func(t *testing.T) {
		c := newTestClient("http://127.0.0.1:1", false)

		_, err := c.FetchCategoryProducts(context.Background(), 0, domain.ProductQuery{})
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestFetchCategoryProducts_QueryParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"products":[],"count":0}`))
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(srv.URL, false)

	_, err := c.FetchCategoryProducts(context.Background(), 3, domain.ProductQuery{Page: 2, PageSize: 24, Sort: "price", Order: "desc"})
	require.NoError(t, err)
	assert.Equal(t, "limit=24&order=desc&page=2&sort=price&with=images%2Cskus", gotQuery)
}

func TestFetchProduct_ErrorTaxonomy(t *testing.T) {
	longBody := make([]byte, 1000)
	for i := range longBody {
		longBody[i] = 'x'
	}

	srv, _ := newUpstream(t, map[string]upstreamRoute{
		"/product/12345":  {body: `{"id":"12345","name":"Split system","description":"Cool {$wa->title} air"}`},
		"/product/500":    {status: http.StatusInternalServerError, body: string(longBody)},
		"/product/html":   {contentType: "text/html", body: "<html></html>"},
		"/product/noid":   {body: `{"name":"ghost"}`},
		"/product/arrays": {body: `[{"id":1}]`},
	})
	c := newTestClient(srv.URL, false)
	ctx := context.Background()

	product, err := c.FetchProductByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, domain.FlexInt(12345), product.ID)
	assert.Equal(t, "Cool  air", product.CleanDescription())

	_, err = c.FetchProduct(ctx, "missing-slug")
	assert.True(t, IsNotFound(err))

	_, err = c.FetchProduct(ctx, "500")
	require.True(t, IsTransport(err))
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)
	assert.Len(t, transportErr.Excerpt, excerptLimit)

	for _, ref := range []string{"html", "noid", "arrays"} {
		_, err = c.FetchProduct(ctx, ref)
		assert.True(t, IsTransport(err), ref)
		assert.False(t, IsNotFound(err), ref)
	}

	_, err = c.FetchProductByID(ctx, -1)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestFetchProduct_TimeoutIsTransportError(t *testing.T) {
	srv, _ := newUpstream(t, map[string]upstreamRoute{"/product/1": {body: `{"id":1}`, delay: 200 * time.Millisecond}})
	c := newTestClient(srv.URL, false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchProduct(ctx, "1")
	assert.True(t, IsTransport(err))
}

func TestSearchProducts(t *testing.T) {
	srv, _ := newUpstream(t, map[string]upstreamRoute{"/products/search": {
		body: `{"products":[{"id":1,"url":"a"},{"id":2,"url":"b"}]}`,
	}})
	c := newTestClient(srv.URL, false)

	products, err := c.SearchProducts(context.Background(), "split system", 0)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestCache_AvoidsSecondCall(t *testing.T) {
	srv, calls := newUpstream(t, map[string]upstreamRoute{"/product/9": {body: `{"id":9}`}})
	c := newTestClient(srv.URL, true)
	ctx := context.Background()

	_, err := c.FetchProduct(ctx, "9")
	require.NoError(t, err)
	_, err = c.FetchProduct(ctx, "9")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_DoesNotStoreFailures(t *testing.T) {
	srv, calls := newUpstream(t, map[string]upstreamRoute{"/product/9": {contentType: "text/plain", body: "oops"}})
	c := newTestClient(srv.URL, true)
	ctx := context.Background()

	_, err := c.FetchProduct(ctx, "9")
	require.Error(t, err)
	_, err = c.FetchProduct(ctx, "9")
	require.Error(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchCategoryProducts_MissingCount(t *testing.T) {
	full := `{"products":[{"id":1},{"id":2}]}`
	short := `{"products":[{"id":5}]}`

	t.Run("full page without count promises another page", func(t *testing.T) {
		srv, _ := newUpstream(t, map[string]upstreamRoute{"/category/7/products": {body: full}})
		c := newTestClient(srv.URL, false)

		page, err := c.FetchCategoryProducts(context.Background(), 7, domain.ProductQuery{Page: 3, PageSize: 2})
		require.NoError(t, err)
		assert.True(t, page.Estimated)
		assert.Equal(t, 7, page.TotalCount)
	})

	t.Run("short page without count is exact", func(t *testing.T) {
		srv, _ := newUpstream(t, map[string]upstreamRoute{"/category/7/products": {body: short}})
		c := newTestClient(srv.URL, false)

		page, err := c.FetchCategoryProducts(context.Background(), 7, domain.ProductQuery{Page: 3, PageSize: 2})
		require.NoError(t, err)
		assert.False(t, page.Estimated)
		assert.Equal(t, 5, page.TotalCount)
	})

	t.Run("explicit count wins", func(t *testing.T) {
		srv, _ := newUpstream(t, map[string]upstreamRoute{"/category/7/products": {body: `{"count":2,"products":[{"id":1},{"id":2}]}`}})
		c := newTestClient(srv.URL, false)

		page, err := c.FetchCategoryProducts(context.Background(), 7, domain.ProductQuery{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.False(t, page.Estimated)
		assert.Equal(t, 2, page.TotalCount)
	})
}

func TestFetchProduct_UnicodeSlugEscapedOnce(t *testing.T) {
	var rawPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":9,"name":"Кондиционер"}`))
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(srv.URL, false)

	product, err := c.FetchProduct(context.Background(), "кондиционер")
	require.NoError(t, err)
	assert.Equal(t, domain.FlexInt(9), product.ID)
	assert.Equal(t, "/product/%D0%BA%D0%BE%D0%BD%D0%B4%D0%B8%D1%86%D0%B8%D0%BE%D0%BD%D0%B5%D1%80", rawPath)
}

func TestExcerpt_KeepsRunesWhole(t *testing.T) {
	body := "a" + strings.Repeat("я", 300)

	got := excerpt(body)

	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, excerptLimit-1)
	assert.Equal(t, "short", excerpt("short"))
}
