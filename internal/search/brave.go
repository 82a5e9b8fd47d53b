package search

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/liliang-cn/search4all/internal/domain"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave calls the Brave Search API. Rate limiting (429) is retried when
// Attempts allows it.
type Brave struct {
	httpSearcher
	APIKey string
}

// NewBrave constructs a Brave provider
func NewBrave(apiKey string, client *http.Client) *Brave {
	return &Brave{httpSearcher: newHTTPSearcher(braveEndpoint, client), APIKey: apiKey}
}

// Search returns the top web results for query
func (b *Brave) Search(ctx context.Context, query string) ([]domain.SearchContext, error) {
	res, err := b.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		u, err := url.Parse(b.Endpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("q", query)
		q.Set("count", strconv.Itoa(b.limit()))
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Subscription-Token", b.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	return collect(res.Get("web.results"), b.limit(), func(item gjson.Result) domain.SearchContext {
		return domain.SearchContext{
			Name:    item.Get("title").String(),
			URL:     item.Get("url").String(),
			Snippet: item.Get("description").String(),
		}
	}), nil
}
