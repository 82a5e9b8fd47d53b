package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/liliang-cn/search4all/internal/domain"
)

const (
	// MaxRelatedQuestions caps the follow-ups returned per answer
	MaxRelatedQuestions = 5

	relatedToolName        = "ask_related_questions"
	relatedToolDescription = "Get a list of questions related to the original question and context."
	relatedItemDescription = "A related question to the original question and context."
)

const relatedPromptTemplate = `You are a helpful assistant that helps the user to ask related questions, based on user's original question and the related contexts. Please identify worthwhile topics that can be follow-ups, and write questions no longer than 20 words each. Please make sure that specifics, like events, names, locations, are included in follow up questions so they can be asked standalone. For example, if the original question asks about "the Manhattan project", in the follow up question, do not just say "the project", but use the full name "the Manhattan project". Your related questions must be in the same language as the original question.

Here are the contexts of the question:

%s

Remember, based on the original question and related contexts, suggest three such further questions. Do NOT repeat the original question. Each related question should be no longer than 20 words. Here is the original question:
`

var numberedLine = regexp.MustCompile(`^\s*\d+\s*[.)]\s*(.*)$`)

// relatedSchema is the JSON schema of the tool's single argument
func relatedSchema() map[string]any {
	return map[string]any{
		"questions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":        "string",
				"description": relatedItemDescription,
			},
			"description": "A list of related questions.",
		},
	}
}

// relatedPrompt builds the system prompt from the context snippets
func relatedPrompt(contexts []domain.SearchContext) string {
	snippets := make([]string, len(contexts))
	for i, c := range contexts {
		snippets[i] = c.Snippet
	}
	return fmt.Sprintf(relatedPromptTemplate, strings.Join(snippets, "\n\n"))
}

// parseToolArguments reads {"questions": [...]} from a tool call. Some models
// send the list itself JSON-encoded as a string.
func parseToolArguments(raw []byte) ([]domain.RelatedQuestion, error) {
	var args struct {
		Questions json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}

	var questions []string
	if err := json.Unmarshal(args.Questions, &questions); err != nil {
		var encoded string
		if err2 := json.Unmarshal(args.Questions, &encoded); err2 != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(encoded), &questions); err != nil {
			return nil, err
		}
	}
	return toRelated(questions), nil
}

// ParseNumberedList extracts questions from a prose reply of the form
// "1. ...\n2. ...", stripping numbering and surrounding quotes.
func ParseNumberedList(content string) []domain.RelatedQuestion {
	var questions []string
	for _, line := range strings.Split(content, "\n") {
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		q := strings.Trim(strings.TrimSpace(m[1]), `"'“”`)
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	return toRelated(questions)
}

func toRelated(questions []string) []domain.RelatedQuestion {
	out := make([]domain.RelatedQuestion, 0, MaxRelatedQuestions)
	for _, q := range questions {
		if q = strings.TrimSpace(q); q == "" {
			continue
		}
		out = append(out, domain.RelatedQuestion{Question: q})
		if len(out) == MaxRelatedQuestions {
			break
		}
	}
	return out
}
