package search

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/liliang-cn/search4all/internal/domain"
)

const (
	bingEndpoint = "https://api.bing.microsoft.com/v7.0/search"
	bingMarket   = "en-US"
)

// Bing calls the Bing Web Search v7 API
type Bing struct {
	httpSearcher
	APIKey string
}

// NewBing constructs a Bing provider. A nil client uses a default with a 5s timeout.
func NewBing(apiKey string, client *http.Client) *Bing {
	return &Bing{httpSearcher: newHTTPSearcher(bingEndpoint, client), APIKey: apiKey}
}

// Search returns the top web pages for query
func (b *Bing) Search(ctx context.Context, query string) ([]domain.SearchContext, error) {
	res, err := b.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		u, err := url.Parse(b.Endpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("q", query)
		q.Set("mkt", bingMarket)
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", b.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	return collect(res.Get("webPages.value"), b.limit(), func(item gjson.Result) domain.SearchContext {
		return domain.SearchContext{
			Name:    item.Get("name").String(),
			URL:     item.Get("url").String(),
			Snippet: item.Get("snippet").String(),
		}
	}), nil
}
