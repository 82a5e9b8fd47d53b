package transcript

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/liliang-cn/search4all/internal/domain"
)

// ErrOutOfOrder is returned when sections are written out of sequence
var ErrOutOfOrder = errors.New("transcript: section written out of order")

type section int

const (
	sectionNone section = iota
	sectionAnswer
	sectionRelated
)

// Writer relays a transcript to a client while recording every segment the
// client accepted. Markers are emitted exactly once each, in order. After the
// first failed client write the Writer stops relaying and recording.
type Writer struct {
	out     io.Writer
	flusher http.Flusher
	buf     strings.Builder
	state   section
	err     error
}

// NewWriter creates a Writer relaying to out. If out is an http.Flusher it is
// flushed after every write.
func NewWriter(out io.Writer) *Writer {
	w := &Writer{out: out}
	if f, ok := out.(http.Flusher); ok {
		w.flusher = f
	}
	return w
}

// WriteContexts writes the context section followed by the answer marker
func (w *Writer) WriteContexts(contexts []domain.SearchContext) error {
	if w.state != sectionNone {
		return ErrOutOfOrder
	}
	body, err := MarshalContexts(contexts)
	if err != nil {
		return err
	}
	if err := w.write(body); err != nil {
		return err
	}
	w.state = sectionAnswer
	return w.write(AnswerMarker)
}

// WriteAnswer writes a piece of answer text
func (w *Writer) WriteAnswer(text string) error {
	if w.state != sectionAnswer {
		return ErrOutOfOrder
	}
	if text == "" {
		return w.err
	}
	return w.write(text)
}

// WriteRelated writes the related-questions marker and section
func (w *Writer) WriteRelated(questions []domain.RelatedQuestion) error {
	if w.state != sectionAnswer {
		return ErrOutOfOrder
	}
	body, err := MarshalRelated(questions)
	if err != nil {
		// related questions never fail a response
		body = "[]"
	}
	w.state = sectionRelated
	if err := w.write(RelatedMarker); err != nil {
		return err
	}
	return w.write(body)
}

// String returns everything relayed so far
func (w *Writer) String() string {
	return w.buf.String()
}

// Err returns the first client write error, if any
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) write(s string) error {
	if w.err != nil {
		return w.err
	}
	if _, err := io.WriteString(w.out, s); err != nil {
		w.err = err
		return err
	}
	w.buf.WriteString(s)
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
