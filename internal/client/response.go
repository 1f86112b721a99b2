package client

import (
	"bytes"
	"encoding/json"
	"fmt"

	"storefront/catalog/internal/domain"
)

// The upstream answers some endpoints with a bare array and others with a
// wrapping object, depending on plugins and version. Everything is
// normalized here so callers never branch on shape.

type categoriesEnvelope struct {
	Categories []domain.Category `json:"categories"`
}

type productsEnvelope struct {
	Products []domain.Product `json:"products"`
	Count    *domain.FlexInt  `json:"count"`
}

func firstByte(body []byte) byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func decodeCategories(body []byte) ([]domain.Category, error) {
	switch firstByte(body) {
	case '[':
		var categories []domain.Category
		if err := json.Unmarshal(body, &categories); err != nil {
			return nil, fmt.Errorf("failed to decode category array: %w", err)
		}
		return categories, nil
	case '{':
		var envelope categoriesEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("failed to decode category object: %w", err)
		}
		return envelope.Categories, nil
	default:
		return nil, fmt.Errorf("unexpected categories payload")
	}
}

// decodeProductPage decodes one listing page. When the upstream omits the
// total, it is derived from the page position: exact for a short page, one
// past the page for a full one, and the page is flagged as estimated.
func decodeProductPage(body []byte, query domain.ProductQuery) (*domain.ProductPage, error) {
	products, count, known, err := decodeProducts(body)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []domain.Product{}
	}

	page := &domain.ProductPage{Products: products, TotalCount: count}
	if known {
		return page, nil
	}

	offset := 0
	if query.Page > 1 && query.PageSize > 0 {
		offset = (query.Page - 1) * query.PageSize
	}
	page.TotalCount = offset + len(products)
	if query.PageSize > 0 && len(products) >= query.PageSize {
		page.TotalCount++
		page.Estimated = true
	}
	return page, nil
}

// decodeProducts reports whether the payload carried a total count.
func decodeProducts(body []byte) ([]domain.Product, int, bool, error) {
	switch firstByte(body) {
	case '[':
		var products []domain.Product
		if err := json.Unmarshal(body, &products); err != nil {
			return nil, 0, false, fmt.Errorf("failed to decode product array: %w", err)
		}
		return products, len(products), false, nil
	case '{':
		var envelope productsEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, 0, false, fmt.Errorf("failed to decode product object: %w", err)
		}
		if envelope.Count == nil {
			return envelope.Products, len(envelope.Products), false, nil
		}
		return envelope.Products, int(*envelope.Count), true, nil
	default:
		return nil, 0, false, fmt.Errorf("unexpected products payload")
	}
}

func decodeProduct(body []byte) (*domain.Product, error) {
	if firstByte(body) != '{' {
		return nil, fmt.Errorf("unexpected product payload")
	}
	var product domain.Product
	if err := json.Unmarshal(body, &product); err != nil {
		return nil, fmt.Errorf("failed to decode product: %w", err)
	}
	if product.ID <= 0 {
		return nil, fmt.Errorf("product payload has no id")
	}
	return &product, nil
}
