package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrProvider indicates a search or generation backend failure
	ErrProvider = errors.New("provider error")
	// ErrMalformedTranscript indicates a stored transcript without section markers
	ErrMalformedTranscript = errors.New("malformed transcript")
)
