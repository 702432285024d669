package session

import (
	"time"

	"procsight/pkg/llm"
)

type Status string

const (
	StatusChecking    Status = "checking"
	StatusReady       Status = "ready"
	StatusDownloading Status = "downloading"
	StatusUnavailable Status = "unavailable"
	StatusError       Status = "error"
)

// Label is the human readable badge text for a status.
func (s Status) Label() string {
	switch s {
	case StatusChecking:
		return "Checking Availability"
	case StatusReady:
		return "Model Ready"
	case StatusDownloading:
		return "Downloading Model"
	case StatusUnavailable:
		return "Model Unavailable"
	case StatusError:
		return "Error"
	}
	return string(s)
}

// edges lists the allowed transitions. Any status may re-enter checking.
var edges = map[Status][]Status{
	StatusChecking:    {StatusReady, StatusDownloading, StatusUnavailable, StatusError},
	StatusDownloading: {StatusReady, StatusError},
}

func canTransition(from, to Status) bool {
	if to == StatusChecking {
		return true
	}
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// State is a point-in-time view of the session for status displays.
type State struct {
	ID        string    `json:"id,omitempty"`
	Status    Status    `json:"status"`
	Label     string    `json:"label"`
	Detail    string    `json:"detail,omitempty"`
	HasHandle bool      `json:"has_handle"`
	UpdatedAt time.Time `json:"updated_at"`

	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"top_k"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	TimeoutSeconds  int     `json:"timeout_seconds"`
}

// DefaultConfig mirrors the sampling settings the assistant ships with.
func DefaultConfig(systemPrompt string) llm.SessionConfig {
	return llm.SessionConfig{
		SystemPrompt:    systemPrompt,
		Temperature:     1.0,
		TopK:            3,
		MaxOutputTokens: 10,
		TimeoutSeconds:  300,
	}
}

// Clamp bounds temperature to [0,1] and topK to [1,8].
func Clamp(cfg llm.SessionConfig) llm.SessionConfig {
	switch {
	case cfg.Temperature < 0:
		cfg.Temperature = 0
	case cfg.Temperature > 1:
		cfg.Temperature = 1
	}
	switch {
	case cfg.TopK < 1:
		cfg.TopK = 1
	case cfg.TopK > 8:
		cfg.TopK = 8
	}
	if cfg.MaxOutputTokens < 0 {
		cfg.MaxOutputTokens = 0
	}
	if cfg.TimeoutSeconds < 0 {
		cfg.TimeoutSeconds = 0
	}
	return cfg
}
