package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/catalog/internal/config"
	"storefront/catalog/internal/domain"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

const productRelations = "images,skus"

type CatalogClient interface {
	// FetchCategoryTree never fails: the site must render without a catalog,
	// so any error yields an empty tree.
	FetchCategoryTree(ctx context.Context) []domain.Category
	LoadCategoryTree(ctx context.Context) ([]domain.Category, error)
	FetchCategoryProducts(ctx context.Context, categoryID int64, query domain.ProductQuery) (*domain.ProductPage, error)
	FetchProduct(ctx context.Context, idOrSlug string) (*domain.Product, error)
	FetchProductByID(ctx context.Context, id int64) (*domain.Product, error)
	SearchProducts(ctx context.Context, query string, page int) ([]domain.Product, error)
}

type catalogClient struct {
	rl         ratelimit.Limiter
	baseURL    string
	httpClient *resty.Client
	cache      *responseCache
}

func NewCatalogClient(cfg config.UpstreamConfig, cacheCfg config.CacheConfig) CatalogClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	rl := ratelimit.NewUnlimited()
	if cfg.MaxRequestsPerSecond > 0 {
		rl = ratelimit.New(cfg.MaxRequestsPerSecond)
	}

	return &catalogClient{
		rl:         rl,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: client,
		cache:      newResponseCache(cacheCfg),
	}
}

func (c *catalogClient) FetchCategoryTree(ctx context.Context) []domain.Category {
	categories, err := c.LoadCategoryTree(ctx)
	if err != nil {
		log.Warnf("⚠️ Category tree unavailable, continuing without catalog: %v", err)
		return []domain.Category{}
	}
	return categories
}

func (c *catalogClient) LoadCategoryTree(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	err := c.fetch(ctx, endpointCategories, "/categories", url.Values{"tree": {"1"}}, func(body []byte) error {
		var err error
		categories, err = decodeCategories(body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch category tree: %w", err)
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	return categories, nil
}

func (c *catalogClient) FetchCategoryProducts(ctx context.Context, categoryID int64, query domain.ProductQuery) (*domain.ProductPage, error) {
	if categoryID <= 0 {
		return nil, fmt.Errorf("category %d: %w", categoryID, ErrInvalidID)
	}

	params := url.Values{"with": {productRelations}}
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.PageSize > 0 {
		params.Set("limit", strconv.Itoa(query.PageSize))
	}
	if query.Sort != "" {
		params.Set("sort", query.Sort)
		if query.Order != "" {
			params.Set("order", query.Order)
		}
	}

	var page *domain.ProductPage
	path := fmt.Sprintf("/category/%d/products", categoryID)
	err := c.fetch(ctx, endpointListing, path, params, func(body []byte) error {
		var err error
		page, err = decodeProductPage(body, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products of category %d: %w", categoryID, err)
	}
	if page.Estimated {
		log.Warnf("⚠️ Listing of category %d has no count and a full page %d, total estimated as %d",
			categoryID, query.Page, page.TotalCount)
	}
	return page, nil
}

func (c *catalogClient) FetchProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	if id <= 0 {
		return nil, fmt.Errorf("product %d: %w", id, ErrInvalidID)
	}
	return c.FetchProduct(ctx, strconv.FormatInt(id, 10))
}

// FetchProduct accepts a numeric id or a slug; some deployments resolve slugs
// in the id position.
func (c *catalogClient) FetchProduct(ctx context.Context, idOrSlug string) (*domain.Product, error) {
	idOrSlug = strings.Trim(idOrSlug, "/")
	if idOrSlug == "" {
		return nil, fmt.Errorf("empty product reference: %w", ErrNotFound)
	}

	var product *domain.Product
	path := "/product/" + url.PathEscape(idOrSlug)
	err := c.fetch(ctx, endpointProduct, path, url.Values{"with": {productRelations}}, func(body []byte) error {
		var err error
		product, err = decodeProduct(body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product %s: %w", idOrSlug, err)
	}
	return product, nil
}

func (c *catalogClient) SearchProducts(ctx context.Context, query string, page int) ([]domain.Product, error) {
	params := url.Values{
		"query": {query},
		"with":  {productRelations},
	}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}

	var products []domain.Product
	err := c.fetch(ctx, endpointSearch, "/products/search", params, func(body []byte) error {
		var err error
		products, _, _, err = decodeProducts(body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search products for %q: %w", query, err)
	}
	return products, nil
}

func (c *catalogClient) buildURL(path string, params url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// fetch performs a GET, validates status and content type and hands the body
// to decode. Bodies are cached only after decode succeeded.
func (c *catalogClient) fetch(ctx context.Context, ep endpoint, path string, params url.Values, decode func([]byte) error) error {
	requestURL := c.buildURL(path, params)

	if body, ok := c.cache.get(ep, requestURL); ok {
		log.Debugf("Cache hit (%s) for %s", ep, requestURL)
		return decode(body)
	}

	c.rl.Take()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(requestURL)
	if err != nil {
		if ctx.Err() != nil {
			return &TransportError{URL: requestURL, Err: fmt.Errorf("request cancelled: %w", ctx.Err())}
		}
		return &TransportError{URL: requestURL, Err: err}
	}

	bodyText := resp.String()
	status := resp.StatusCode()

	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, requestURL)
	}
	if status < 200 || status >= 300 {
		return &TransportError{StatusCode: status, URL: requestURL, Excerpt: excerpt(bodyText)}
	}

	contentType := resp.Header().Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		if contentType == "" {
			contentType = "unknown"
		}
		return &TransportError{
			StatusCode: status,
			URL:        requestURL,
			Excerpt:    excerpt(bodyText),
			Err:        fmt.Errorf("expected JSON but got %s", contentType),
		}
	}

	body := []byte(bodyText)
	if err := decode(body); err != nil {
		return &TransportError{StatusCode: status, URL: requestURL, Excerpt: excerpt(bodyText), Err: err}
	}

	c.cache.put(ep, requestURL, body)
	log.Debugf("Fetched %s (%d)", requestURL, status)
	return nil
}
