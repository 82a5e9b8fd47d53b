package search

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/liliang-cn/search4all/internal/domain"
)

const serperEndpoint = "https://google.serper.dev/search"

// Serper calls the serper.dev Google proxy
type Serper struct {
	httpSearcher
	APIKey string
}

// NewSerper constructs a Serper provider
func NewSerper(apiKey string, client *http.Client) *Serper {
	return &Serper{httpSearcher: newHTTPSearcher(serperEndpoint, client), APIKey: apiKey}
}

// Search returns the knowledge graph entry and answer box, when present,
// followed by organic results.
func (s *Serper) Search(ctx context.Context, query string) ([]domain.SearchContext, error) {
	payload, err := json.Marshal(map[string]any{
		"q":   query,
		"num": roundUpTen(s.limit()),
	})
	if err != nil {
		return nil, err
	}

	res, err := s.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-KEY", s.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var contexts []domain.SearchContext
	if kg := res.Get("knowledgeGraph"); kg.Exists() {
		u := firstString(kg, "descriptionUrl", "website")
		snippet := kg.Get("description").String()
		if u != "" && snippet != "" {
			contexts = append(contexts, domain.SearchContext{Name: kg.Get("title").String(), URL: u, Snippet: snippet})
		}
	}
	if box := res.Get("answerBox"); box.Exists() {
		u := box.Get("url").String()
		snippet := firstString(box, "snippet", "answer")
		if u != "" && snippet != "" {
			contexts = append(contexts, domain.SearchContext{Name: box.Get("title").String(), URL: u, Snippet: snippet})
		}
	}

	limit := s.limit()
	if len(contexts) >= limit {
		return contexts[:limit], nil
	}
	organic := collect(res.Get("organic"), limit-len(contexts), func(item gjson.Result) domain.SearchContext {
		return domain.SearchContext{
			Name:    item.Get("title").String(),
			URL:     item.Get("link").String(),
			Snippet: item.Get("snippet").String(),
		}
	})
	return append(contexts, organic...), nil
}
