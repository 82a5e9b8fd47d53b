package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/liliang-cn/search4all/internal/domain"
)

// OpenAI talks to any OpenAI-compatible chat completions API
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI backend. An empty BaseURL uses api.openai.com.
func NewOpenAI(opts Options, extra ...option.RequestOption) *OpenAI {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	reqOpts = append(reqOpts, extra...)

	return &OpenAI{client: openai.NewClient(reqOpts...), model: opts.Model}
}

// Name returns the provider name
func (o *OpenAI) Name() string {
	return "openai"
}

// Stream opens a streamed chat completion: system prompt, history, then the query
func (o *OpenAI) Stream(ctx context.Context, p Prompt) (TokenStream, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(p.History)+2)
	messages = append(messages, openai.SystemMessage(p.System))
	for _, m := range p.History {
		switch m.Role {
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(p.Query))

	stream := o.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    messages,
		MaxTokens:   openai.Int(AnswerMaxTokens),
		Temperature: openai.Float(0),
		Stop:        openai.ChatCompletionNewParamsStopUnion{OfStringArray: openAIStop()},
	})

	return startStream(stream, func(chunk openai.ChatCompletionChunk) string {
		if len(chunk.Choices) == 0 {
			return ""
		}
		return chunk.Choices[0].Delta.Content
	})
}

// RelatedQuestions calls the ask_related_questions function, falling back to
// a numbered list in the message content.
func (o *OpenAI) RelatedQuestions(ctx context.Context, query string, contexts []domain.SearchContext) ([]domain.RelatedQuestion, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(relatedPrompt(contexts)),
			openai.UserMessage(query),
		},
		MaxTokens: openai.Int(relatedMaxTokens),
		Tools: []openai.ChatCompletionToolUnionParam{
			openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
				Name:        relatedToolName,
				Description: openai.String(relatedToolDescription),
				Parameters: openai.FunctionParameters{
					"type":       "object",
					"properties": relatedSchema(),
					"required":   []string{"questions"},
				},
			}),
		},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("required"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProvider, err)
	}
	if len(completion.Choices) == 0 {
		return nil, nil
	}

	msg := completion.Choices[0].Message
	for _, call := range msg.ToolCalls {
		if call.Function.Name != relatedToolName {
			continue
		}
		questions, err := parseToolArguments([]byte(call.Function.Arguments))
		if err != nil {
			return nil, fmt.Errorf("failed to decode related questions: %w", err)
		}
		return questions, nil
	}
	return ParseNumberedList(msg.Content), nil
}

// openAIStop trims StopWords to the four sequences the API accepts
func openAIStop() []string {
	if len(StopWords) > 4 {
		return StopWords[:4]
	}
	return StopWords
}
