package search

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"

	"github.com/liliang-cn/search4all/internal/domain"
)

// SearXNG queries a self-hosted SearXNG instance through its JSON API
type SearXNG struct {
	httpSearcher
}

// NewSearXNG constructs a SearXNG provider for the instance at baseURL
func NewSearXNG(baseURL string, client *http.Client) *SearXNG {
	return &SearXNG{httpSearcher: newHTTPSearcher(baseURL, client)}
}

// Search returns general results from bing and google, each annotated with a
// site name and favicon URL.
func (s *SearXNG) Search(ctx context.Context, query string) ([]domain.SearchContext, error) {
	res, err := s.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		endpoint := s.Endpoint + "?q=" + url.QueryEscape(":auto "+query) +
			"&category=general&format=json&engines=bing%2Cgoogle"
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, err
	}

	return collect(res.Get("results"), s.limit(), func(item gjson.Result) domain.SearchContext {
		c := domain.SearchContext{
			Name:    item.Get("title").String(),
			URL:     item.Get("url").String(),
			Snippet: item.Get("content").String(),
		}
		if u, err := url.Parse(c.URL); err == nil && u.Host != "" {
			c.SiteName = siteName(u.Hostname())
			c.IconURL = u.Scheme + "://" + u.Host + "/favicon.ico"
		}
		return c
	}), nil
}

// siteName returns the registrable label of host, e.g. "bbc" for
// "www.bbc.co.uk". IPs and single-label hosts are returned unchanged.
func siteName(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	return strings.TrimSuffix(etld1, "."+suffix)
}
