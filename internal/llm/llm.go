// Package llm streams answers and generates related questions through an
// OpenAI-compatible or Anthropic chat API.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/liliang-cn/search4all/internal/domain"
)

const (
	// AnswerMaxTokens caps the streamed answer
	AnswerMaxTokens  = 1024
	relatedMaxTokens = 1000
)

// StopWords end generation when the model starts a trailer of its own
var StopWords = []string{
	"<|im_end|>",
	"[End]",
	"[end]",
	"\nReferences:\n",
	"\nSources:\n",
	"End.",
}

// Prompt is one answer request
type Prompt struct {
	System  string
	History []domain.Message
	Query   string
}

// Backend is the generation capability the query pipeline needs
type Backend interface {
	// Stream opens an answer stream. The first chunk is fetched before Stream
	// returns so connection and auth failures surface as an error here.
	Stream(ctx context.Context, p Prompt) (TokenStream, error)
	// RelatedQuestions suggests follow-ups from the query and contexts only
	RelatedQuestions(ctx context.Context, query string, contexts []domain.SearchContext) ([]domain.RelatedQuestion, error)
	Name() string
}

// TokenStream yields answer text in order
type TokenStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// Options selects and configures a backend
type Options struct {
	Provider   string // openai, anthropic or empty to pick from the model name
	Model      string
	APIKey     string
	BaseURL    string
	MaxRetries int
}

// New returns the backend for opts
func New(opts Options) (Backend, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	switch ProviderFor(opts.Provider, opts.Model) {
	case "anthropic":
		return NewAnthropic(opts), nil
	case "openai":
		return NewOpenAI(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}

// ProviderFor resolves an empty provider from the model name: claude models
// go to anthropic, everything else to the OpenAI-compatible API.
func ProviderFor(provider, model string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != "" {
		return provider
	}
	if strings.Contains(strings.ToLower(model), "claude") {
		return "anthropic"
	}
	return "openai"
}

// sseStream is the iterator shape both SDKs' streams share
type sseStream[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// tokenStream adapts an SDK event stream to TokenStream, skipping events that
// carry no text
type tokenStream[T any] struct {
	src     sseStream[T]
	text    func(T) string
	cur     string
	pending bool
}

func startStream[T any](src sseStream[T], text func(T) string) (TokenStream, error) {
	s := &tokenStream[T]{src: src, text: text}
	if s.advance() {
		s.pending = true
		return s, nil
	}
	if err := src.Err(); err != nil {
		src.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrProvider, err)
	}
	return s, nil
}

func (s *tokenStream[T]) advance() bool {
	for s.src.Next() {
		if t := s.text(s.src.Current()); t != "" {
			s.cur = t
			return true
		}
	}
	return false
}

func (s *tokenStream[T]) Next() bool {
	if s.pending {
		s.pending = false
		return true
	}
	return s.advance()
}

func (s *tokenStream[T]) Current() string {
	return s.cur
}

func (s *tokenStream[T]) Err() error {
	if err := s.src.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProvider, err)
	}
	return nil
}

func (s *tokenStream[T]) Close() error {
	return s.src.Close()
}
