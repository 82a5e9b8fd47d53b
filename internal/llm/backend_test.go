package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/search4all/internal/domain"
)

func drain(t *testing.T, s TokenStream) string {
	t.Helper()
	var b strings.Builder
	for s.Next() {
		b.WriteString(s.Current())
	}
	require.NoError(t, s.Err())
	require.NoError(t, s.Close())
	return b.String()
}

func openAIChunk(content string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, content)
}

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAI(Options{Model: "m", APIKey: "k", BaseURL: srv.URL + "/v1/"})
}

func TestOpenAI_Stream(t *testing.T) {
	var body map[string]any
	backend := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{"", "Hello", ", ", "world"} {
			fmt.Fprintf(w, "data: %s\n\n", openAIChunk(c))
		}
		io.WriteString(w, "data: [DONE]\n\n")
	})

	stream, err := backend.Stream(context.Background(), Prompt{
		System: "sys",
		History: []domain.Message{
			{Role: domain.RoleUser, Content: "earlier"},
			{Role: domain.RoleAssistant, Content: "reply"},
		},
		Query: "now",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", drain(t, stream))

	messages := body["messages"].([]any)
	require.Len(t, messages, 4)
	roles := make([]string, len(messages))
	for i, m := range messages {
		roles[i] = m.(map[string]any)["role"].(string)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
	assert.EqualValues(t, AnswerMaxTokens, body["max_tokens"])
	assert.EqualValues(t, 0, body["temperature"])
	assert.Equal(t, true, body["stream"])
}

func TestOpenAI_StreamStartupError(t *testing.T) {
	backend := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	_, err := backend.Stream(context.Background(), Prompt{System: "s", Query: "q"})
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestOpenAI_RelatedQuestionsToolCall(t *testing.T) {
	backend := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		tools := body["tools"].([]any)
		require.Len(t, tools, 1)
		fn := tools[0].(map[string]any)["function"].(map[string]any)
		assert.Equal(t, "ask_related_questions", fn["name"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"ask_related_questions","arguments":"{\"questions\":[\"What is Go?\",\"Who made Go?\"]}"}}]}}]}`)
	})

	got, err := backend.RelatedQuestions(context.Background(), "go", []domain.SearchContext{{Snippet: "Go is a language"}})
	require.NoError(t, err)
	assert.Equal(t, questions("What is Go?", "Who made Go?"), got)
}

func TestOpenAI_RelatedQuestionsContentFallback(t *testing.T) {
	backend := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"1. What is Go?\n2. \"Who made Go?\""}}]}`)
	})

	got, err := backend.RelatedQuestions(context.Background(), "go", nil)
	require.NoError(t, err)
	assert.Equal(t, questions("What is Go?", "Who made Go?"), got)
}

func TestAnthropic_Stream(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"m\",\"type\":\"message\",\"role\":\"assistant\",\"model\":\"claude\",\"content\":[],\"usage\":{\"input_tokens\":1,\"output_tokens\":0}}}\n\n")
		io.WriteString(w, "event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n")
		for _, c := range []string{"Hello", ", world"} {
			fmt.Fprintf(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":%q}}\n\n", c)
		}
		io.WriteString(w, "event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}\n\n")
		io.WriteString(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	backend := NewAnthropic(Options{Model: "claude", APIKey: "k", BaseURL: srv.URL + "/"})
	stream, err := backend.Stream(context.Background(), Prompt{System: "sys", Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", drain(t, stream))

	system := body["system"].([]any)
	assert.Equal(t, "sys", system[0].(map[string]any)["text"])
	assert.Len(t, body["messages"], 1)
}

func TestAnthropic_RelatedQuestionsToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"m","type":"message","role":"assistant","model":"claude","stop_reason":"tool_use","content":[{"type":"tool_use","id":"t1","name":"ask_related_questions","input":{"questions":["a","b"]}}],"usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer srv.Close()

	backend := NewAnthropic(Options{Model: "claude", APIKey: "k", BaseURL: srv.URL + "/"})
	got, err := backend.RelatedQuestions(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, questions("a", "b"), got)
}
