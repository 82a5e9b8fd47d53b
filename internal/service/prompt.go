package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/liliang-cn/search4all/internal/domain"
)

// NoContextDisclaimer prefixes answers generated without search results
const NoContextDisclaimer = "(The search engine returned nothing for this query. Please take the answer with a grain of salt.)\n\n"

const ragPromptTemplate = `
You are a large language AI assistant built by AI. You are given a user question, and please write clean, concise and accurate answer to the question. You will be given a set of related contexts to the question, each starting with a reference number like [[citation:x]], where x is a number. Please use the context and cite the context at the end of each sentence if applicable.

Your answer must be correct, accurate and written by an expert using an unbiased and professional tone. Please limit to 1024 tokens. Do not give any information that is not related to the question, and do not repeat. Say "information is missing on" followed by the related topic, if the given context do not provide sufficient information.

Please cite the contexts with the reference numbers, in the format [citation:x]. If a sentence comes from multiple contexts, please list all applicable citations, like [citation:3][citation:5]. Other than code and specific names and citations, your answer must be written in the same language as the question.

Here are the set of contexts:

%s

Remember, don't blindly repeat the contexts verbatim. And here is the user question:
`

var instructionMarkers = regexp.MustCompile(`\[/?INST\]`)

// SanitizeQuery removes [INST] and [/INST] delimiters from a query
func SanitizeQuery(query string) string {
	return instructionMarkers.ReplaceAllString(query, "")
}

// BuildSystemPrompt embeds each context as [[citation:i]] with i starting at 1
func BuildSystemPrompt(contexts []domain.SearchContext) string {
	cited := make([]string, len(contexts))
	for i, c := range contexts {
		cited[i] = fmt.Sprintf("[[citation:%d]] %s", i+1, c.Snippet)
	}
	return fmt.Sprintf(ragPromptTemplate, strings.Join(cited, "\n\n"))
}

// FlattenHistory turns answered turns into alternating user and assistant
// messages, oldest first. Turns without a recorded answer are left out.
func FlattenHistory(turns []domain.Turn) []domain.Message {
	messages := make([]domain.Message, 0, len(turns)*2)
	for _, t := range turns {
		if t.Query == "" || t.LLMResponse == nil {
			continue
		}
		messages = append(messages,
			domain.Message{Role: domain.RoleUser, Content: t.Query},
			domain.Message{Role: domain.RoleAssistant, Content: *t.LLMResponse},
		)
	}
	return messages
}
