package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/liliang-cn/search4all/internal/domain"
)

// Anthropic talks to the Anthropic messages API
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic backend
func NewAnthropic(opts Options, extra ...option.RequestOption) *Anthropic {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	reqOpts = append(reqOpts, extra...)

	return &Anthropic{client: anthropic.NewClient(reqOpts...), model: opts.Model}
}

// Name returns the provider name
func (a *Anthropic) Name() string {
	return "anthropic"
}

// Stream opens a streamed message with the system prompt passed separately
func (a *Anthropic) Stream(ctx context.Context, p Prompt) (TokenStream, error) {
	messages := make([]anthropic.MessageParam, 0, len(p.History)+1)
	for _, m := range p.History {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == domain.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(p.Query)))

	stream := a.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:         anthropic.Model(a.model),
		MaxTokens:     AnswerMaxTokens,
		System:        []anthropic.TextBlockParam{{Text: p.System}},
		Messages:      messages,
		Temperature:   anthropic.Float(0),
		StopSequences: StopWords,
	})

	return startStream(stream, func(event anthropic.MessageStreamEventUnion) string {
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			return ""
		}
		text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
		if !ok {
			return ""
		}
		return text.Text
	})
}

// RelatedQuestions asks for the ask_related_questions tool and reads its
// input, falling back to a numbered list in any text block.
func (a *Anthropic) RelatedQuestions(ctx context.Context, query string, contexts []domain.SearchContext) ([]domain.RelatedQuestion, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: relatedMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: relatedPrompt(contexts)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(query)),
		},
		Tools: []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        relatedToolName,
				Description: anthropic.String(relatedToolDescription),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: relatedSchema(),
				},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProvider, err)
	}

	var text string
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			if b.Name != relatedToolName {
				continue
			}
			questions, err := parseToolArguments(b.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to decode related questions: %w", err)
			}
			return questions, nil
		case anthropic.TextBlock:
			text += b.Text + "\n"
		}
	}
	return ParseNumberedList(text), nil
}
