package domain

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	templateVarRegex = regexp.MustCompile(`\{\$[^}]+\}`)
	priceCharsRegex  = regexp.MustCompile(`[^\d.]`)
)

type Image struct {
	Thumb string `json:"url_thumb,omitempty"`
	Crop  string `json:"url_crop,omitempty"`
	Big   string `json:"url_big,omitempty"`
}

// SKU is a purchasing unit of a product.
type SKU struct {
	PriceStr     string `json:"price_str,omitempty"`
	Available    Flag   `json:"available"`
	ComparePrice Amount `json:"compare_price"`
}

// Price parses the display price string ("12 990.00 руб.") into a decimal.
func (s *SKU) Price() decimal.Decimal {
	digits := priceCharsRegex.ReplaceAllString(strings.ReplaceAll(s.PriceStr, ",", "."), "")
	digits = strings.Trim(digits, ".")
	if digits == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Product is a read-only projection of an upstream product.
type Product struct {
	ID           FlexInt `json:"id"`
	Name         string  `json:"name,omitempty"`
	Summary      string  `json:"summary,omitempty"`
	Description  string  `json:"description,omitempty"`
	URLSegment   string  `json:"url,omitempty"`
	FrontendPath string  `json:"frontend_url,omitempty"`
	CategoryID   FlexInt `json:"category_id,omitempty"`
	ImageID      FlexInt `json:"image_id,omitempty"`
	Images       []Image `json:"images,omitempty"`
	SKUs         []SKU   `json:"skus,omitempty"`
}

// PrimaryImage returns the first image, or nil when the product has none.
func (p *Product) PrimaryImage() *Image {
	if len(p.Images) == 0 {
		return nil
	}
	return &p.Images[0]
}

// RepresentativeSKU returns the SKU used for card price and availability.
func (p *Product) RepresentativeSKU() *SKU {
	if len(p.SKUs) == 0 {
		return nil
	}
	return &p.SKUs[0]
}

func (p *Product) Price() decimal.Decimal {
	if sku := p.RepresentativeSKU(); sku != nil {
		return sku.Price()
	}
	return decimal.Zero
}

func (p *Product) CleanDescription() string {
	return StripTemplateVars(p.Description)
}

// StripTemplateVars removes {$...} placeholders left by the platform's templates.
func StripTemplateVars(html string) string {
	return templateVarRegex.ReplaceAllString(html, "")
}
