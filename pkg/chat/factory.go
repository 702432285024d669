package chat

import (
	"fmt"

	"procsight/internal/pkg/logger"
	"procsight/pkg/kv"
	"procsight/pkg/llm"
	"procsight/pkg/llm/gemini"
	"procsight/pkg/llm/ollama"
	"procsight/pkg/session"
)

const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// BackendOptions selects and configures a chat backend.
type BackendOptions struct {
	Kind string

	OllamaBaseURL string
	OllamaModel   string
	Session       llm.SessionConfig

	GeminiBaseURL string
	GeminiModel   string
	GeminiModels  []string
	GeminiAPIKey  string
}

// Model returns the model name the selected backend talks to.
func (o BackendOptions) Model() string {
	if o.Kind == BackendRemote {
		return o.GeminiModel
	}
	return o.OllamaModel
}

// NewBackend builds the backend for opts.Kind. The session manager is
// returned for the local backend only; it is nil for remote.
func NewBackend(opts BackendOptions, store kv.Store, log, trace logger.ILogger) (Backend, *session.Manager, error) {
	switch opts.Kind {
	case BackendRemote:
		client := gemini.NewClient(opts.GeminiBaseURL, opts.GeminiModels, trace)
		return NewRemoteBackend(client, opts.GeminiModel, opts.GeminiAPIKey, store), nil, nil
	case BackendLocal, "":
		baseURL := opts.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		provider := ollama.NewOllamaProvider(baseURL, opts.OllamaModel, trace)
		manager := session.NewManager(provider, opts.Session, log)
		return NewLocalBackend(manager), manager, nil
	default:
		return nil, nil, fmt.Errorf("unsupported chat backend: %s", opts.Kind)
	}
}
