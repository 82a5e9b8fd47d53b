package search

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/liliang-cn/search4all/internal/domain"
)

const searchAPIEndpoint = "https://www.searchapi.io/api/v1/search"

// SearchAPI calls searchapi.io with the google engine
type SearchAPI struct {
	httpSearcher
	APIKey string
}

// NewSearchAPI constructs a SearchAPI provider
func NewSearchAPI(apiKey string, client *http.Client) *SearchAPI {
	return &SearchAPI{httpSearcher: newHTTPSearcher(searchAPIEndpoint, client), APIKey: apiKey}
}

// Search returns the answer box and knowledge graph entries, organic results,
// then answered related questions.
func (s *SearchAPI) Search(ctx context.Context, query string) ([]domain.SearchContext, error) {
	res, err := s.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		u, err := url.Parse(s.Endpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("q", query)
		q.Set("engine", "google")
		q.Set("num", strconv.Itoa(roundUpTen(s.limit())))
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var contexts []domain.SearchContext
	add := func(name, u, snippet string) {
		if u != "" && snippet != "" {
			contexts = append(contexts, domain.SearchContext{Name: name, URL: u, Snippet: snippet})
		}
	}

	if box := res.Get("answer_box"); box.Exists() {
		add(box.Get("title").String(), box.Get("link").String(), firstString(box, "answer", "snippet"))
	}
	if kg := res.Get("knowledge_graph"); kg.Exists() {
		add(kg.Get("title").String(), firstString(kg, "website", "source.link"), kg.Get("description").String())
	}
	res.Get("organic_results").ForEach(func(_, item gjson.Result) bool {
		add(item.Get("title").String(), item.Get("link").String(), item.Get("snippet").String())
		return true
	})
	res.Get("related_questions").ForEach(func(_, item gjson.Result) bool {
		add(item.Get("question").String(), item.Get("source.link").String(), item.Get("answer").String())
		return true
	})

	if limit := s.limit(); len(contexts) > limit {
		contexts = contexts[:limit]
	}
	return contexts, nil
}
