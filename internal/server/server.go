package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"storefront/catalog/internal/catalog"
	"storefront/catalog/internal/client"
	"storefront/catalog/internal/domain"
	"storefront/catalog/internal/resolver"
	"storefront/catalog/internal/search"
	"storefront/catalog/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

const minSearchQuery = 2

type PathResolver interface {
	Resolve(ctx context.Context, segments []string) domain.Resolution
}

type Storefront interface {
	Page(ctx context.Context, segments []string, query service.ListingQuery) (*service.Page, error)
}

// listingRequest is the query string of listing and page routes.
type listingRequest struct {
	Page  int    `query:"page" validate:"omitempty,min=1"`
	Limit int    `query:"limit" validate:"omitempty,min=6,max=60"`
	Sort  string `query:"sort" validate:"omitempty,oneof=price name create_datetime total_sales"`
	Order string `query:"order" validate:"omitempty,oneof=asc desc"`
}

func (r listingRequest) toQuery() service.ListingQuery {
	return service.ListingQuery{Page: r.Page, Limit: r.Limit, Sort: r.Sort, Order: r.Order}.Normalize()
}

type Server struct {
	app         *fiber.App
	validate    *validator.Validate
	catalog     client.CatalogClient
	resolver    PathResolver
	storefront  Storefront
	index       search.Index
	searchLimit int
}

func New(
	catalog client.CatalogClient,
	resolver PathResolver,
	storefront Storefront,
	index search.Index,
	searchLimit int,
) *Server {
	if searchLimit <= 0 {
		searchLimit = 10
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			ErrorHandler:          errorHandler,
			DisableStartupMessage: true,
			UnescapePath:          true,
		}),
		validate:    validator.New(),
		catalog:     catalog,
		resolver:    resolver,
		storefront:  storefront,
		index:       index,
		searchLimit: searchLimit,
	}

	s.RegisterRoutes(s.app.Group("/api"))
	return s
}

func (s *Server) RegisterRoutes(route fiber.Router) {
	route.Get("/catalog/categories", s.handleGetCategories)
	route.Get("/catalog/category/:id", s.handleGetCategoryProducts)
	route.Get("/catalog/product/:id", s.handleGetProduct)
	route.Get("/resolve/*", s.handleResolve)
	route.Get("/page/*", s.handlePage)
	route.Get("/search", s.handleSearch)
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	log.Infof("🚀 Storefront API listening on %s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleGetCategories(c *fiber.Ctx) error {
	categories := catalog.Flatten(s.catalog.FetchCategoryTree(c.UserContext()))
	return c.JSON(fiber.Map{
		"categories": categories,
	})
}

func (s *Server) handleGetCategoryProducts(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "category id must be a positive integer")
	}

	req, err := s.parseListing(c)
	if err != nil {
		return err
	}
	query := req.toQuery()

	page, err := s.catalog.FetchCategoryProducts(c.UserContext(), int64(id), domain.ProductQuery{
		Page:     query.Page,
		PageSize: query.Limit,
		Sort:     query.Sort,
		Order:    query.Order,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"products":   page.Products,
		"count":      page.TotalCount,
		"pagination": service.NewPagination(query.Page, query.Limit, page.TotalCount),
	})
}

func (s *Server) handleGetProduct(c *fiber.Ctx) error {
	product, err := s.catalog.FetchProduct(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(product)
}

func (s *Server) handleResolve(c *fiber.Ctx) error {
	resolution := s.resolver.Resolve(c.UserContext(), resolver.SplitPath(c.Params("*")))
	if resolution.IsNotFound() {
		return c.Status(fiber.StatusNotFound).JSON(resolution)
	}
	return c.JSON(resolution)
}

func (s *Server) handlePage(c *fiber.Ctx) error {
	req, err := s.parseListing(c)
	if err != nil {
		return err
	}

	page, err := s.storefront.Page(c.UserContext(), resolver.SplitPath(c.Params("*")), req.toQuery())
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) handleSearch(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if utf8.RuneCountInString(q) < minSearchQuery {
		return c.JSON(fiber.Map{"results": []domain.SearchHit{}})
	}

	hits, err := s.index.Search(c.UserContext(), q, s.searchLimit)
	if err != nil {
		return fmt.Errorf("search for %q failed: %w", q, err)
	}
	return c.JSON(fiber.Map{"results": hits})
}

func (s *Server) parseListing(c *fiber.Ctx) (listingRequest, error) {
	var req listingRequest
	if err := c.QueryParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := s.validate.Struct(req); err != nil {
		return req, err
	}
	return req, nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	status, message := classify(err)
	if status >= fiber.StatusInternalServerError {
		log.Errorf("❌ %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func classify(err error) (int, string) {
	var (
		fiberErr      *fiber.Error
		validationErr validator.ValidationErrors
	)
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest, validationMessage(validationErr)
	case errors.Is(err, service.ErrPageNotFound), client.IsNotFound(err):
		return fiber.StatusNotFound, "not found"
	case errors.Is(err, client.ErrInvalidID):
		return fiber.StatusBadRequest, "invalid id"
	case client.IsTransport(err):
		return fiber.StatusBadGateway, "catalog upstream unavailable"
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

func validationMessage(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		param := fe.Param()
		if param != "" {
			param = "=" + param
		}
		parts = append(parts, fmt.Sprintf("%s failed %s%s", strings.ToLower(fe.Field()), fe.Tag(), param))
	}
	return strings.Join(parts, "; ")
}
