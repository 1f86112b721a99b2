package search

import (
	"fmt"
	"strings"

	"storefront/catalog/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

// NewDocument builds the index document for a product listed in categoryName.
// mediaBaseURL is the shop origin used when the product carries an image id
// but no image URLs.
func NewDocument(p *domain.Product, categoryName, mediaBaseURL string) domain.IndexDocument {
	description := p.Summary
	if description == "" {
		description = p.Description
	}

	price, _ := p.Price().Float64()

	return domain.IndexDocument{
		ID:          int64(p.ID),
		Title:       p.Name,
		Description: PlainText(description),
		Category:    categoryName,
		Price:       price,
		URL:         productURL(p),
		ImageURL:    imageURL(p, mediaBaseURL),
	}
}

// PlainText strips markup and template placeholders and collapses whitespace.
func PlainText(html string) string {
	html = domain.StripTemplateVars(html)
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func productURL(p *domain.Product) string {
	if p.FrontendPath != "" {
		return p.FrontendPath
	}
	return p.URLSegment
}

func imageURL(p *domain.Product, mediaBaseURL string) string {
	if img := p.PrimaryImage(); img != nil {
		for _, u := range []string{img.Thumb, img.Crop, img.Big} {
			if u != "" {
				return u
			}
		}
	}
	if p.ImageID == 0 || mediaBaseURL == "" {
		return ""
	}
	// Shop-Script public storage layout
	return fmt.Sprintf("%s/wa-data/public/shop/products/%d/%d/images/%d/%d.200.jpg",
		strings.TrimRight(mediaBaseURL, "/"), p.ID/1000, p.ID, p.ImageID, p.ImageID)
}
