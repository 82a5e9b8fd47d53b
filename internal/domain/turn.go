package domain

// Message roles used when replaying conversation history to a backend
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one completed exchange within a conversation.
// Nil fields were absent from the delivered transcript.
type Turn struct {
	Query            string            `json:"query"`
	SearchResults    []SearchContext   `json:"search_results"`
	LLMResponse      *string           `json:"llm_response"`
	RelatedQuestions []RelatedQuestion `json:"related_questions"`
}

// Answer returns the recorded answer text, or "" if none was recorded.
func (t Turn) Answer() string {
	if t.LLMResponse == nil {
		return ""
	}
	return *t.LLMResponse
}

// SessionRecord caches the last full transcript delivered for a session
type SessionRecord struct {
	Query   string `json:"query"`
	RawText string `json:"txt"`
}

// Message is a single role-tagged entry of a conversation sent to a generation backend
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
