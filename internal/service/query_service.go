package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/search4all/internal/domain"
	"github.com/liliang-cn/search4all/internal/llm"
	"github.com/liliang-cn/search4all/internal/metrics"
	"github.com/liliang-cn/search4all/internal/search"
	"github.com/liliang-cn/search4all/internal/workerpool"
)

// SessionStore is the persistence QueryService needs
type SessionStore interface {
	GetRecord(ctx context.Context, searchUUID string) (*domain.SessionRecord, error)
	PutRecord(ctx context.Context, searchUUID string, record *domain.SessionRecord) error
	GetHistory(ctx context.Context, searchUUID string) ([]domain.Turn, error)
	AppendTurn(ctx context.Context, searchUUID string, turn domain.Turn) error
}

// QueryOptions holds the feature switches of the query pipeline
type QueryOptions struct {
	ChatHistory      bool
	RelatedQuestions bool
	SearchTimeout    time.Duration
	SearchBackend    string
}

// QueryService answers queries within a session: it replays stored answers,
// reuses the previous turn's search results for follow-ups, and otherwise
// searches and streams a fresh answer.
type QueryService struct {
	opts     QueryOptions
	sessions SessionStore
	searcher search.Provider
	backend  llm.Backend
	pool     *workerpool.Pool
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewQueryService creates a new query service
func NewQueryService(
	opts QueryOptions,
	sessions SessionStore,
	searcher search.Provider,
	backend llm.Backend,
	pool *workerpool.Pool,
	m *metrics.Metrics,
	logger *zap.Logger,
) *QueryService {
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 5 * time.Second
	}
	return &QueryService{
		opts:     opts,
		sessions: sessions,
		searcher: searcher,
		backend:  backend,
		pool:     pool,
		metrics:  m,
		logger:   logger,
	}
}

// Answer resolves a request to either a stored transcript or an open
// generation. A returned generation must be finished with Deliver or Close.
// Errors are domain.ErrInvalidRequest for bad input and domain.ErrProvider
// when the answer stream cannot be started.
func (s *QueryService) Answer(ctx context.Context, req domain.QueryRequest) (*Answer, error) {
	query := SanitizeQuery(req.Query)
	if strings.TrimSpace(req.SearchUUID) == "" {
		s.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, fmt.Errorf("%w: search_uuid must be provided", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(query) == "" {
		s.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, fmt.Errorf("%w: query must be provided", domain.ErrInvalidRequest)
	}

	logger := s.logger.With(zap.String("search_uuid", req.SearchUUID))

	var contexts []domain.SearchContext
	var history []domain.Message
	reused := false

	if s.opts.ChatHistory {
		turns := s.loadHistory(ctx, logger, req.SearchUUID)
		if n := len(turns); n > 0 {
			last := turns[n-1]
			if last.Query != "" && len(last.SearchResults) > 0 {
				if last.Query != query {
					contexts = last.SearchResults
					history = FlattenHistory(turns)
					reused = true
					s.metrics.HistoryReuses.Inc()
				} else if record := s.loadRecord(ctx, logger, req.SearchUUID); record != nil && record.Query == query {
					return s.replay(record), nil
				} else {
					logger.Info("History matches but the stored record does not, generating again")
				}
			}
		}
	} else if record := s.loadRecord(ctx, logger, req.SearchUUID); record != nil && record.Query == query {
		return s.replay(record), nil
	}

	if !reused {
		contexts = s.search(ctx, logger, query)
	}

	return s.generate(ctx, logger, req, query, contexts, history)
}

func (s *QueryService) replay(record *domain.SessionRecord) *Answer {
	s.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeReplayed).Inc()
	return &Answer{replay: record.RawText, replayed: true}
}

// loadHistory reads history through the pool; any failure means no history
func (s *QueryService) loadHistory(ctx context.Context, logger *zap.Logger, searchUUID string) []domain.Turn {
	var turns []domain.Turn
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		turns, err = s.sessions.GetHistory(ctx, searchUUID)
		return err
	})
	if err != nil {
		s.logLookupError(logger, "get_history", err)
		return nil
	}
	return turns
}

// loadRecord reads the session record through the pool; any failure means none
func (s *QueryService) loadRecord(ctx context.Context, logger *zap.Logger, searchUUID string) *domain.SessionRecord {
	var record *domain.SessionRecord
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.sessions.GetRecord(ctx, searchUUID)
		return err
	})
	if err != nil {
		s.logLookupError(logger, "get_record", err)
		return nil
	}
	return record
}

func (s *QueryService) logLookupError(logger *zap.Logger, op string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		logger.Debug("Session key not found, will generate again", zap.String("operation", op))
		return
	}
	s.metrics.StoreErrors.WithLabelValues(op).Inc()
	logger.Error("Session store lookup failed, will generate again", zap.String("operation", op), zap.Error(err))
}

// search runs the provider through the pool under the search timeout. A
// failure degrades to no contexts.
func (s *QueryService) search(ctx context.Context, logger *zap.Logger, query string) []domain.SearchContext {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()

	start := time.Now()
	var contexts []domain.SearchContext
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		contexts, err = s.searcher.Search(ctx, query)
		return err
	})
	s.metrics.ObserveSearch(s.opts.SearchBackend, start, err)
	if err != nil {
		logger.Warn("Search failed, answering without contexts", zap.String("backend", s.opts.SearchBackend), zap.Error(err))
		return nil
	}
	return contexts
}
