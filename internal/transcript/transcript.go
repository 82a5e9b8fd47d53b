// Package transcript implements the marker-delimited stream that carries a
// turn's search contexts, answer text and related questions as one text body.
//
// The wire and storage form is
//
//	<contexts-json>\n\n__LLM_RESPONSE__\n\n<answer>\n\n__RELATED_QUESTIONS__\n\n<related-json>
//
// where the related section is optional. Inside the service the three parts
// travel as Sections; only Writer and Encode produce the markers.
package transcript

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/liliang-cn/search4all/internal/domain"
)

// Section markers as they appear on the wire
const (
	AnswerMarker  = "\n\n__LLM_RESPONSE__\n\n"
	RelatedMarker = "\n\n__RELATED_QUESTIONS__\n\n"
)

var sectionsPattern = regexp.MustCompile(`(?s)^(.*?)__LLM_RESPONSE__(.*?)(__RELATED_QUESTIONS__(.*))?$`)

// Sections is the decoded form of a transcript.
// HasRelated is false when the related-questions marker never appeared,
// which is different from a present but empty section.
type Sections struct {
	Context    string
	Answer     string
	Related    string
	HasRelated bool
}

// Encode renders sections in wire form
func Encode(s Sections) string {
	var b strings.Builder
	b.WriteString(s.Context)
	b.WriteString(AnswerMarker)
	b.WriteString(s.Answer)
	if s.HasRelated {
		b.WriteString(RelatedMarker)
		b.WriteString(s.Related)
	}
	return b.String()
}

// Decode splits a complete transcript into its sections. Each section is
// trimmed of surrounding whitespace. A transcript without the answer marker
// cannot be split and yields ErrMalformedTranscript with all sections empty.
func Decode(raw string) (Sections, error) {
	idx := sectionsPattern.FindStringSubmatchIndex(raw)
	if idx == nil {
		return Sections{}, domain.ErrMalformedTranscript
	}

	s := Sections{
		Context: strings.TrimSpace(raw[idx[2]:idx[3]]),
		Answer:  strings.TrimSpace(raw[idx[4]:idx[5]]),
	}
	if idx[8] >= 0 {
		s.Related = strings.TrimSpace(raw[idx[8]:idx[9]])
		s.HasRelated = true
	}
	return s, nil
}

// ParseTurn decodes a delivered transcript into the Turn recorded in history
func ParseTurn(query, raw string) (domain.Turn, error) {
	s, err := Decode(raw)
	if err != nil {
		return domain.Turn{}, err
	}

	turn := domain.Turn{Query: query}
	answer := s.Answer
	turn.LLMResponse = &answer

	if s.Context != "" {
		if err := json.Unmarshal([]byte(s.Context), &turn.SearchResults); err != nil {
			return domain.Turn{}, fmt.Errorf("%w: context section: %v", domain.ErrMalformedTranscript, err)
		}
	}
	if s.HasRelated && s.Related != "" {
		if err := json.Unmarshal([]byte(s.Related), &turn.RelatedQuestions); err != nil {
			return domain.Turn{}, fmt.Errorf("%w: related section: %v", domain.ErrMalformedTranscript, err)
		}
	}
	return turn, nil
}

// MarshalContexts renders contexts as the context section. A nil list is
// rendered as an empty array.
func MarshalContexts(contexts []domain.SearchContext) (string, error) {
	if contexts == nil {
		contexts = []domain.SearchContext{}
	}
	b, err := json.Marshal(contexts)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MarshalRelated renders related questions as the related section
func MarshalRelated(questions []domain.RelatedQuestion) (string, error) {
	if questions == nil {
		questions = []domain.RelatedQuestion{}
	}
	b, err := json.Marshal(questions)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
