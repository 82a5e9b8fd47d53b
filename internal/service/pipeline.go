package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/search4all/internal/domain"
	"github.com/liliang-cn/search4all/internal/llm"
	"github.com/liliang-cn/search4all/internal/metrics"
	"github.com/liliang-cn/search4all/internal/transcript"
)

// Answer is the outcome of QueryService.Answer: either a stored transcript
// to replay or a generation ready to be streamed.
type Answer struct {
	replay   string
	replayed bool

	svc        *QueryService
	logger     *zap.Logger
	searchUUID string
	query      string
	contexts   []domain.SearchContext
	stream     llm.TokenStream
	related    <-chan []domain.RelatedQuestion
	ctx        context.Context
	cancel     context.CancelFunc
	start      time.Time
}

// Replayed reports whether the answer is a stored transcript
func (a *Answer) Replayed() bool {
	return a.replayed
}

// generate starts the related-questions call, then opens the answer stream
func (s *QueryService) generate(
	ctx context.Context,
	logger *zap.Logger,
	req domain.QueryRequest,
	query string,
	contexts []domain.SearchContext,
	history []domain.Message,
) (*Answer, error) {
	start := time.Now()
	genCtx, cancel := context.WithCancel(ctx)

	var related chan []domain.RelatedQuestion
	if s.opts.RelatedQuestions && req.GenerateRelatedQuestions {
		related = make(chan []domain.RelatedQuestion, 1)
		go func() {
			questions, err := s.backend.RelatedQuestions(genCtx, query, contexts)
			if err != nil {
				if genCtx.Err() == nil {
					s.metrics.GenerationErrors.WithLabelValues("related").Inc()
					logger.Warn("Related questions failed", zap.Error(err))
				}
				questions = nil
			}
			related <- questions
		}()
	}

	stream, err := s.backend.Stream(genCtx, llm.Prompt{
		System:  BuildSystemPrompt(contexts),
		History: history,
		Query:   query,
	})
	if err != nil {
		cancel()
		s.metrics.GenerationErrors.WithLabelValues("start").Inc()
		s.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		logger.Error("Failed to start answer stream", zap.String("backend", s.backend.Name()), zap.Error(err))
		if !errors.Is(err, domain.ErrProvider) {
			err = fmt.Errorf("%w: %w", domain.ErrProvider, err)
		}
		return nil, err
	}

	return &Answer{
		svc:        s,
		logger:     logger,
		searchUUID: req.SearchUUID,
		query:      query,
		contexts:   contexts,
		stream:     stream,
		related:    related,
		ctx:        ctx,
		cancel:     cancel,
		start:      start,
	}, nil
}

// Close releases an answer that will not be delivered
func (a *Answer) Close() {
	if a.replayed {
		return
	}
	a.cancel()
	a.stream.Close()
}

// Deliver writes the answer to w. A replay is written verbatim. A generation
// is streamed as contexts, answer tokens and related questions, and the
// delivered transcript is then persisted in the background.
//
// The backend's first token is already fetched when Answer returns, so the
// contexts reach the client only after the model has started answering.
//
// If the client goes away the generation is cancelled and whatever reached
// the buffer is still persisted. If the backend fails mid-stream nothing is
// persisted and the backend error is returned.
func (a *Answer) Deliver(w io.Writer) error {
	if a.replayed {
		_, err := io.WriteString(w, a.replay)
		return err
	}

	s := a.svc
	defer a.cancel()
	s.metrics.QueriesInFlight.Inc()
	defer s.metrics.QueriesInFlight.Dec()

	tw := transcript.NewWriter(w)
	err := tw.WriteContexts(a.contexts)
	if err == nil && len(a.contexts) == 0 {
		err = tw.WriteAnswer(NoContextDisclaimer)
	}
	for err == nil && a.stream.Next() {
		err = tw.WriteAnswer(a.stream.Current())
	}
	streamErr := a.stream.Err()
	a.stream.Close()

	switch {
	case err != nil || a.ctx.Err() != nil:
		// client gone
		a.cancel()
		s.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		a.logger.Info("Client disconnected during answer", zap.Error(err))
		s.persist(a.logger, a.searchUUID, a.query, tw.String())
		if err == nil {
			err = a.ctx.Err()
		}
		return err
	case streamErr != nil:
		a.cancel()
		s.metrics.GenerationErrors.WithLabelValues("stream").Inc()
		s.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		a.logger.Error("Answer stream failed", zap.String("backend", s.backend.Name()), zap.Error(streamErr))
		return streamErr
	}

	if a.related != nil {
		if err := tw.WriteRelated(<-a.related); err != nil {
			a.logger.Info("Client disconnected before related questions", zap.Error(err))
		}
	}

	s.metrics.QueriesTotal.WithLabelValues(metrics.OutcomeGenerated).Inc()
	s.metrics.AnswerDuration.Observe(time.Since(a.start).Seconds())
	s.persist(a.logger, a.searchUUID, a.query, tw.String())
	return tw.Err()
}

// persist submits the write of a delivered transcript as a detached task
func (s *QueryService) persist(logger *zap.Logger, searchUUID, query, raw string) {
	if raw == "" {
		return
	}
	s.pool.Submit("persist_session", func(ctx context.Context) error {
		if s.opts.ChatHistory {
			turn, err := transcript.ParseTurn(query, raw)
			if err != nil {
				logger.Warn("Delivered transcript did not decode, history not updated", zap.Error(err))
			} else if err := s.sessions.AppendTurn(ctx, searchUUID, turn); err != nil {
				s.metrics.StoreErrors.WithLabelValues("append_turn").Inc()
				logger.Error("Failed to append turn", zap.Error(err))
			}
		}

		if err := s.sessions.PutRecord(ctx, searchUUID, &domain.SessionRecord{Query: query, RawText: raw}); err != nil {
			s.metrics.StoreErrors.WithLabelValues("put_record").Inc()
			return fmt.Errorf("failed to store session record: %w", err)
		}
		return nil
	})
}
