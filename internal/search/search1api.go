package search

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/liliang-cn/search4all/internal/domain"
)

const search1APIEndpoint = "https://api.search1api.com/search/"

// Search1API calls search1api.com backed by google
type Search1API struct {
	httpSearcher
	APIKey string
}

// NewSearch1API constructs a Search1API provider
func NewSearch1API(apiKey string, client *http.Client) *Search1API {
	return &Search1API{httpSearcher: newHTTPSearcher(search1APIEndpoint, client), APIKey: apiKey}
}

// Search returns the top results for query
func (s *Search1API) Search(ctx context.Context, query string) ([]domain.SearchContext, error) {
	payload, err := json.Marshal(map[string]any{
		"max_results":    10,
		"query":          query,
		"search_service": "google",
	})
	if err != nil {
		return nil, err
	}

	res, err := s.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	return collect(res.Get("results"), s.limit(), func(item gjson.Result) domain.SearchContext {
		return domain.SearchContext{
			Name:    item.Get("title").String(),
			URL:     item.Get("link").String(),
			Snippet: item.Get("snippet").String(),
		}
	}), nil
}
