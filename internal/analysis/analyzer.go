// Package analysis sends briefings to a language model and parses the
// structured answer.
package analysis

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("analysis: analyzer not configured")

	// ErrRateLimited is returned when the model API keeps answering 429.
	ErrRateLimited = errors.New("analysis: rate limited")

	// ErrEmptyResponse is returned when the model returns no choices.
	ErrEmptyResponse = errors.New("analysis: empty response")

	// ErrUnsupportedAttachment is returned for attachments that are neither
	// text nor PDF.
	ErrUnsupportedAttachment = errors.New("analysis: only text or PDF attachments are allowed")
)

// Analyzer runs a prompt against a language model.
type Analyzer interface {
	// Analyze returns the raw model output.
	Analyze(ctx context.Context, req Request) (*Response, error)
}

// Request is one analysis call.
type Request struct {
	// Model is chosen per call from the caller's plan.
	Model        string
	SystemPrompt string
	UserPrompt   string
}

// Response is the raw model answer.
type Response struct {
	Content     string
	Model       string
	TotalTokens int
}

// Unconfigured is the Analyzer used when no model API key is set. Every
// call fails with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Analyze(ctx context.Context, req Request) (*Response, error) {
	return nil, ErrNotConfigured
}
