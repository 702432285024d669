// Package llm holds the provider-agnostic contracts for model backends.
package llm

import (
	"context"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	TopK        int
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithTopK(k int) Option {
	return func(o *Options) {
		o.TopK = k
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// Availability is the local backend's answer to a capability probe.
type Availability string

const (
	AvailableReadily       Availability = "readily"
	AvailableAfterDownload Availability = "after-download"
	AvailableNo            Availability = "no"
)

type Capabilities struct {
	Available Availability `json:"available"`
}

// SessionConfig is passed to LocalBackend.Create.
type SessionConfig struct {
	SystemPrompt    string  `json:"system_prompt"`
	Temperature     float64 `json:"temperature"`       // [0,1], higher is more varied
	TopK            int     `json:"top_k"`             // [1,8]
	MaxOutputTokens int     `json:"max_output_tokens"` // hard cap on response length
	TimeoutSeconds  int     `json:"timeout_seconds"`   // bound on Create
}

// Options converts the sampling settings into per-call options.
func (c SessionConfig) Options() []Option {
	return []Option{
		WithTemperature(c.Temperature),
		WithTopK(c.TopK),
		WithMaxTokens(c.MaxOutputTokens),
	}
}

// ProgressFunc reports model download progress in bytes.
type ProgressFunc func(loaded, total int64)

// SessionHandle is a live conversational model instance.
type SessionHandle interface {
	Prompt(ctx context.Context, text string) (string, error)
	Destroy(ctx context.Context) error
}

// LocalBackend is the on-host model runtime.
type LocalBackend interface {
	Capabilities(ctx context.Context) (Capabilities, error)
	Create(ctx context.Context, cfg SessionConfig, progress ProgressFunc) (SessionHandle, error)
}
