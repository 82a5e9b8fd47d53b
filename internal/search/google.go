package search

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/liliang-cn/search4all/internal/domain"
)

const googleEndpoint = "https://customsearch.googleapis.com/customsearch/v1"

// Google calls the Custom Search JSON API
type Google struct {
	httpSearcher
	APIKey string
	CX     string
}

// NewGoogle constructs a Google provider for the search engine cx
func NewGoogle(apiKey, cx string, client *http.Client) *Google {
	return &Google{httpSearcher: newHTTPSearcher(googleEndpoint, client), APIKey: apiKey, CX: cx}
}

// Search returns the top items for query
func (g *Google) Search(ctx context.Context, query string) ([]domain.SearchContext, error) {
	res, err := g.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		u, err := url.Parse(g.Endpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("key", g.APIKey)
		q.Set("cx", g.CX)
		q.Set("q", query)
		q.Set("num", strconv.Itoa(g.limit()))
		u.RawQuery = q.Encode()
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	})
	if err != nil {
		return nil, err
	}

	return collect(res.Get("items"), g.limit(), func(item gjson.Result) domain.SearchContext {
		return domain.SearchContext{
			Name:    item.Get("title").String(),
			URL:     item.Get("link").String(),
			Snippet: item.Get("snippet").String(),
		}
	}), nil
}
