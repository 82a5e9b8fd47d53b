package search

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/liliang-cn/search4all/internal/domain"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API
type Tavily struct {
	httpSearcher
	APIKey string
	// Depth is Tavily's search_depth parameter (basic or advanced)
	Depth string
}

// NewTavily constructs a Tavily provider with basic depth
func NewTavily(apiKey string, client *http.Client) *Tavily {
	return &Tavily{httpSearcher: newHTTPSearcher(tavilyEndpoint, client), APIKey: apiKey, Depth: "basic"}
}

// Search posts query to Tavily
func (t *Tavily) Search(ctx context.Context, query string) ([]domain.SearchContext, error) {
	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      t.APIKey,
		"search_depth": t.Depth,
		"max_results":  t.limit(),
	})
	if err != nil {
		return nil, err
	}

	res, err := t.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	return collect(res.Get("results"), t.limit(), func(item gjson.Result) domain.SearchContext {
		return domain.SearchContext{
			Name:    item.Get("title").String(),
			URL:     item.Get("url").String(),
			Snippet: item.Get("content").String(),
		}
	}), nil
}
