package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liliang-cn/search4all/internal/domain"
	"github.com/liliang-cn/search4all/internal/llm"
	"github.com/liliang-cn/search4all/internal/metrics"
	"github.com/liliang-cn/search4all/internal/repository"
	"github.com/liliang-cn/search4all/internal/workerpool"
)

type fakeSearcher struct {
	results []domain.SearchContext
	err     error
	block   bool
	calls   int32
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]domain.SearchContext, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.results, f.err
}

func (f *fakeSearcher) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

type fakeBackend struct {
	// tokens returns the answer chunks for a prompt; defaults to echoing the query
	tokens     func(p llm.Prompt) []string
	startErr   error
	midErr     error
	related    []domain.RelatedQuestion
	relatedErr error

	mu           sync.Mutex
	prompts      []llm.Prompt
	streamCalls  int32
	relatedCalls int32
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Stream(ctx context.Context, p llm.Prompt) (llm.TokenStream, error) {
	atomic.AddInt32(&f.streamCalls, 1)
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()

	if f.startErr != nil {
		return nil, f.startErr
	}
	tokens := []string{"answer to ", p.Query}
	if f.tokens != nil {
		tokens = f.tokens(p)
	}
	return &fakeStream{ctx: ctx, tokens: tokens, err: f.midErr}, nil
}

func (f *fakeBackend) RelatedQuestions(ctx context.Context, query string, contexts []domain.SearchContext) ([]domain.RelatedQuestion, error) {
	atomic.AddInt32(&f.relatedCalls, 1)
	return f.related, f.relatedErr
}

func (f *fakeBackend) StreamCalls() int  { return int(atomic.LoadInt32(&f.streamCalls)) }
func (f *fakeBackend) RelatedCalls() int { return int(atomic.LoadInt32(&f.relatedCalls)) }

func (f *fakeBackend) LastPrompt() llm.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1]
}

// fakeStream yields its tokens, then err if set
type fakeStream struct {
	ctx    context.Context
	tokens []string
	i      int
	cur    string
	err    error
	failed bool
}

func (s *fakeStream) Next() bool {
	if s.ctx.Err() != nil {
		return false
	}
	if s.i >= len(s.tokens) {
		s.failed = s.err != nil
		return false
	}
	s.cur = s.tokens[s.i]
	s.i++
	return true
}

func (s *fakeStream) Current() string { return s.cur }

func (s *fakeStream) Err() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if s.failed {
		return s.err
	}
	return nil
}

func (s *fakeStream) Close() error { return nil }

// failAfterWriter accepts n writes then fails
type failAfterWriter struct {
	n      int
	writes int
	buf    []byte
}

func (w *failAfterWriter) Write(p []byte) (int, error) {
	if w.writes >= w.n {
		return 0, errors.New("client went away")
	}
	w.writes++
	w.buf = append(w.buf, p...)
	return len(p), nil
}

type harness struct {
	svc      *QueryService
	repo     *repository.SessionRepository
	pool     *workerpool.Pool
	searcher *fakeSearcher
	backend  *fakeBackend
}

func newHarness(t *testing.T, opts QueryOptions, searcher *fakeSearcher, backend *fakeBackend) *harness {
	t.Helper()

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	kv, err := repository.NewKVStore(db, 64)
	require.NoError(t, err)
	repo := repository.NewSessionRepository(kv, 10)

	pool := workerpool.New(4, zap.NewNop())
	t.Cleanup(pool.Wait)

	if opts.SearchTimeout == 0 {
		opts.SearchTimeout = time.Second
	}
	opts.SearchBackend = "fake"

	svc := NewQueryService(opts, repo, searcher, backend, pool, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	return &harness{svc: svc, repo: repo, pool: pool, searcher: searcher, backend: backend}
}
