package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"storefront/catalog/internal/config"
	"storefront/catalog/internal/domain"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	log "github.com/sirupsen/logrus"
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "title":       {"type": "text"},
      "description": {"type": "text"},
      "category":    {"type": "text"},
      "price":       {"type": "float"},
      "url":         {"type": "text"},
      "image_url":   {"type": "text"}
    }
  }
}`

var searchFields = []string{"title^3", "description", "category", "url"}

type Index interface {
	// Reset drops the index and recreates it with the product mapping.
	Reset(ctx context.Context) error
	BulkUpsert(ctx context.Context, docs []domain.IndexDocument) error
	Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)
}

type esIndex struct {
	client *elasticsearch.Client
	name   string
}

func NewElasticsearchIndex(cfg config.SearchConfig) (Index, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	name := cfg.Index
	if name == "" {
		name = "products"
	}

	return &esIndex{client: client, name: name}, nil
}

func (s *esIndex) Reset(ctx context.Context) error {
	ignore := true
	delReq := esapi.IndicesDeleteRequest{
		Index:             []string{s.name},
		IgnoreUnavailable: &ignore,
	}
	res, err := delReq.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to delete index %s: %w", s.name, err)
	}
	if res.IsError() && res.StatusCode != 404 {
		defer res.Body.Close()
		return fmt.Errorf("failed to delete index %s: %s", s.name, res.String())
	}
	res.Body.Close()

	createReq := esapi.IndicesCreateRequest{
		Index: s.name,
		Body:  bytes.NewReader([]byte(indexMapping)),
	}
	res, err = createReq.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", s.name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to create index %s: %s", s.name, res.String())
	}

	log.Infof("✅ Search index %s recreated", s.name)
	return nil
}

type bulkAction struct {
	Index struct {
		Index string `json:"_index"`
		ID    string `json:"_id"`
	} `json:"index"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

func (s *esIndex) BulkUpsert(ctx context.Context, docs []domain.IndexDocument) error {
	if len(docs) == 0 {
		return nil
	}

	body, err := encodeBulk(s.name, docs)
	if err != nil {
		return err
	}

	req := esapi.BulkRequest{
		Index: s.name,
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("error getting response for bulk upsert: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk upsert failed: %s", res.String())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if parsed.Errors {
		failed := 0
		for _, item := range parsed.Items {
			for _, result := range item {
				if result.Error != nil {
					failed++
					log.Debugf("Document %s rejected: %s %s", result.ID, result.Error.Type, result.Error.Reason)
				}
			}
		}
		return fmt.Errorf("bulk upsert rejected %d of %d documents", failed, len(docs))
	}

	log.Debugf("Indexed %d documents into %s", len(docs), s.name)
	return nil
}

// encodeBulk renders docs as NDJSON index actions keyed by product id.
func encodeBulk(index string, docs []domain.IndexDocument) ([]byte, error) {
	var buf bytes.Buffer
	for _, doc := range docs {
		var action bulkAction
		action.Index.Index = index
		action.Index.ID = strconv.FormatInt(doc.ID, 10)

		meta, err := json.Marshal(action)
		if err != nil {
			return nil, fmt.Errorf("failed to encode bulk action: %w", err)
		}
		source, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode document %d: %w", doc.ID, err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(source)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string               `json:"_id"`
			Source domain.IndexDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *esIndex) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}

	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    searchFields,
				"fuzziness": "AUTO",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.name},
		Body:  bytes.NewReader(body),
		Size:  &limit,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("error getting response for search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	return decodeSearch(res.Body)
}

func decodeSearch(r io.Reader) ([]domain.SearchHit, error) {
	var parsed searchResponse
	if err := json.NewDecoder(r).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		id, _ := strconv.ParseInt(h.ID, 10, 64)
		hits = append(hits, domain.SearchHit{
			ID:       id,
			Name:     h.Source.Title,
			Price:    h.Source.Price,
			URL:      h.Source.URL,
			Image:    h.Source.ImageURL,
			Category: h.Source.Category,
		})
	}
	return hits, nil
}
