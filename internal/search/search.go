// Package search adapts web search APIs to a single Provider interface that
// returns ordered grounding contexts.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tidwall/gjson"

	"github.com/liliang-cn/search4all/internal/domain"
)

// ReferenceCount is the default number of contexts kept per search
const ReferenceCount = 8

const (
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 4 << 20
)

// Provider runs a web search. Implementations return at most their configured
// count of contexts, in rank order.
type Provider interface {
	Search(ctx context.Context, query string) ([]domain.SearchContext, error)
}

// Options selects and configures a provider
type Options struct {
	Backend  string
	APIKey   string
	CX       string // google programmable search engine id
	Endpoint string // overrides the backend's default URL; required for searxng
	Count    int
	Attempts uint
	Client   *http.Client
}

// New returns the provider named by opts.Backend
func New(opts Options) (Provider, error) {
	needKey := func(name string) error {
		if strings.TrimSpace(opts.APIKey) == "" {
			return fmt.Errorf("%s search requires an api key", name)
		}
		return nil
	}

	var p Provider
	var base *httpSearcher
	switch strings.ToLower(opts.Backend) {
	case "bing":
		if err := needKey("bing"); err != nil {
			return nil, err
		}
		b := NewBing(opts.APIKey, opts.Client)
		p, base = b, &b.httpSearcher
	case "google":
		if err := needKey("google"); err != nil {
			return nil, err
		}
		if opts.CX == "" {
			return nil, errors.New("google search requires a cx")
		}
		g := NewGoogle(opts.APIKey, opts.CX, opts.Client)
		p, base = g, &g.httpSearcher
	case "serper":
		if err := needKey("serper"); err != nil {
			return nil, err
		}
		s := NewSerper(opts.APIKey, opts.Client)
		p, base = s, &s.httpSearcher
	case "searchapi":
		if err := needKey("searchapi"); err != nil {
			return nil, err
		}
		s := NewSearchAPI(opts.APIKey, opts.Client)
		p, base = s, &s.httpSearcher
	case "search1api":
		if err := needKey("search1api"); err != nil {
			return nil, err
		}
		s := NewSearch1API(opts.APIKey, opts.Client)
		p, base = s, &s.httpSearcher
	case "searxng":
		if opts.Endpoint == "" {
			return nil, errors.New("searxng search requires a base url")
		}
		s := NewSearXNG(opts.Endpoint, opts.Client)
		p, base = s, &s.httpSearcher
	case "tavily":
		if err := needKey("tavily"); err != nil {
			return nil, err
		}
		t := NewTavily(opts.APIKey, opts.Client)
		p, base = t, &t.httpSearcher
	case "brave":
		if err := needKey("brave"); err != nil {
			return nil, err
		}
		b := NewBrave(opts.APIKey, opts.Client)
		p, base = b, &b.httpSearcher
	default:
		return nil, fmt.Errorf("unknown search backend %q", opts.Backend)
	}

	if opts.Endpoint != "" {
		base.Endpoint = opts.Endpoint
	}
	if opts.Count > 0 {
		base.Count = opts.Count
	}
	if opts.Attempts > 0 {
		base.Attempts = opts.Attempts
	}
	return p, nil
}

// StatusError is returned when a search API answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search api returned status %d: %s", e.Code, e.Body)
}

// httpSearcher holds what every HTTP-backed adapter shares
type httpSearcher struct {
	Endpoint string
	Count    int
	Attempts uint
	client   *http.Client
}

func newHTTPSearcher(endpoint string, client *http.Client) httpSearcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return httpSearcher{Endpoint: endpoint, Count: ReferenceCount, Attempts: 1, client: client}
}

func (h *httpSearcher) limit() int {
	if h.Count <= 0 {
		return ReferenceCount
	}
	return h.Count
}

// fetch sends the request built by newReq and parses the JSON reply.
// Transport errors and 429s are retried up to Attempts times.
func (h *httpSearcher) fetch(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) (gjson.Result, error) {
	attempts := h.Attempts
	if attempts == 0 {
		attempts = 1
	}

	var body []byte
	err := retry.Do(
		func() error {
			req, err := newReq(ctx)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := h.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return err
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				statusErr := &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 256)}
				if resp.StatusCode == http.StatusTooManyRequests {
					return statusErr
				}
				return retry.Unrecoverable(statusErr)
			}
			body = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %w", domain.ErrProvider, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: search api returned invalid json", domain.ErrProvider)
	}
	return gjson.ParseBytes(body), nil
}

// collect maps each element of arr to a context, skipping entries without a
// url, until limit contexts are gathered.
func collect(arr gjson.Result, limit int, fn func(gjson.Result) domain.SearchContext) []domain.SearchContext {
	out := make([]domain.SearchContext, 0, limit)
	arr.ForEach(func(_, item gjson.Result) bool {
		c := fn(item)
		if c.URL != "" {
			out = append(out, c)
		}
		return len(out) < limit
	})
	return out
}

// firstString returns the first non-empty string among paths
func firstString(v gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := v.Get(p).String(); s != "" {
			return s
		}
	}
	return ""
}

// roundUpTen rounds n up to a multiple of ten, the page size some APIs require
func roundUpTen(n int) int {
	if n%10 == 0 {
		return n
	}
	return (n/10 + 1) * 10
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
