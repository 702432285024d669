// Package ollama adapts an Ollama server to the local model backend contract.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"procsight/internal/pkg/logger"
	"procsight/pkg/apperr"
	"procsight/pkg/llm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type OllamaProvider struct {
	BaseURL   string
	ModelName string
	Client    *http.Client

	logger logger.ILogger
}

// Ensure OllamaProvider implements LocalBackend
var _ llm.LocalBackend = &OllamaProvider{}

func NewOllamaProvider(baseURL, modelName string, log logger.ILogger) *OllamaProvider {
	return &OllamaProvider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ModelName: modelName,
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: log,
	}
}

// --- Request/Response structs (Internal to this package) ---

type ollamaChatRequest struct {
	Model     string          `json:"model"`
	Messages  []ollamaMessage `json:"messages"`
	Stream    bool            `json:"stream"`
	Options   *ollamaOptions  `json:"options,omitempty"`
	KeepAlive *int            `json:"keep_alive,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopK        int     `json:"top_k,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

type ollamaPullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type ollamaPullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

// --- Capability probe ---

// Capabilities reports readily when the model is present locally and
// after-download when the server is up but the model has not been pulled.
func (o *OllamaProvider) Capabilities(ctx context.Context) (llm.Capabilities, error) {
	present, err := o.hasModel(ctx)
	if err != nil {
		return llm.Capabilities{Available: llm.AvailableNo}, apperr.CapabilityUnavailable("ollama.capabilities", err)
	}
	if present {
		return llm.Capabilities{Available: llm.AvailableReadily}, nil
	}
	return llm.Capabilities{Available: llm.AvailableAfterDownload}, nil
}

func (o *OllamaProvider) hasModel(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := o.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, fmt.Errorf("unmarshal tags: %w", err)
	}

	for _, m := range tags.Models {
		if sameModel(m.Name, o.ModelName) || sameModel(m.Model, o.ModelName) {
			return true, nil
		}
	}
	return false, nil
}

// sameModel treats "llama3" and "llama3:latest" as the same tag.
func sameModel(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if !strings.Contains(a, ":") {
		a += ":latest"
	}
	if !strings.Contains(b, ":") {
		b += ":latest"
	}
	return a == b
}

// --- Session creation ---

// Create pulls the model when missing, reporting progress, then loads it.
// cfg.TimeoutSeconds bounds the whole operation.
func (o *OllamaProvider) Create(ctx context.Context, cfg llm.SessionConfig, progress llm.ProgressFunc) (llm.SessionHandle, error) {
	if cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	present, err := o.hasModel(ctx)
	if err != nil {
		return nil, apperr.SessionCreation("ollama.create", err)
	}
	if !present {
		if err := o.pull(ctx, progress); err != nil {
			return nil, apperr.SessionCreation("ollama.pull", err)
		}
	}

	// An empty chat request loads the model into memory.
	load := ollamaChatRequest{Model: o.ModelName, Messages: []ollamaMessage{}}
	if _, err := o.chat(ctx, load); err != nil {
		return nil, apperr.SessionCreation("ollama.load", err)
	}

	o.logger.Info("Ollama", "Session created", map[string]interface{}{
		"model":       o.ModelName,
		"temperature": cfg.Temperature,
		"top_k":       cfg.TopK,
	})
	return &session{provider: o, cfg: cfg}, nil
}

func (o *OllamaProvider) pull(ctx context.Context, progress llm.ProgressFunc) error {
	payload, err := json.Marshal(ollamaPullRequest{Model: o.ModelName, Stream: true})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/pull", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Pulls can outlast the client timeout; ctx bounds them instead.
	client := *o.Client
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama pull failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, string(body))
	}

	o.logger.Info("Ollama", "Pulling model", map[string]interface{}{"model": o.ModelName})

	scanner := bufio.NewScanner(resp.Body)
	var lastTotal int64
	for scanner.Scan() {
		var p ollamaPullProgress
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			continue
		}
		if p.Error != "" {
			return errors.New(p.Error)
		}
		if p.Total > 0 {
			lastTotal = p.Total
			if progress != nil {
				progress(p.Completed, p.Total)
			}
		}
		if p.Status == "success" {
			if progress != nil {
				if lastTotal == 0 {
					lastTotal = 1
				}
				progress(lastTotal, lastTotal)
			}
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read pull stream: %w", err)
	}
	return errors.New("pull stream ended before success")
}

func (o *OllamaProvider) chat(ctx context.Context, payload ollamaChatRequest) (*ollamaChatResponse, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode, body: string(bodyBytes)}
	}

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(bodyBytes, &ollamaResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if ollamaResp.Error != "" {
		return nil, errors.New(ollamaResp.Error)
	}
	return &ollamaResp, nil
}

type transportError struct{ err error }

func (e *transportError) Error() string { return "ollama request failed: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ollama error: status %d, body: %s", e.status, e.body)
}

// --- Session handle ---

type session struct {
	provider *OllamaProvider
	cfg      llm.SessionConfig

	mu        sync.Mutex
	destroyed bool
}

// Prompt sends one stateless chat turn with the configured system prompt.
// A destroyed handle, an unreachable server or a missing model is SessionInvalid;
// anything else is PromptFailure.
func (s *session) Prompt(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return "", apperr.SessionInvalid("ollama.prompt", errors.New("session destroyed"))
	}

	o := s.provider
	ctx, span := otel.Tracer("procsight").Start(ctx, "ollama.prompt")
	defer span.End()
	span.SetAttributes(attribute.String("ollama.model", o.ModelName), attribute.Int("prompt.length", len(text)))

	messages := make([]ollamaMessage, 0, 2)
	if s.cfg.SystemPrompt != "" {
		messages = append(messages, ollamaMessage{Role: llm.RoleSystem, Content: s.cfg.SystemPrompt})
	}
	messages = append(messages, ollamaMessage{Role: llm.RoleUser, Content: text})

	resp, err := o.chat(ctx, ollamaChatRequest{
		Model:    o.ModelName,
		Messages: messages,
		Stream:   false,
		Options: &ollamaOptions{
			Temperature: s.cfg.Temperature,
			TopK:        s.cfg.TopK,
			NumPredict:  s.cfg.MaxOutputTokens,
		},
	})
	if err != nil {
		span.RecordError(err)
		return "", classify(err)
	}
	return resp.Message.Content, nil
}

// classify treats an unreachable server or a missing model as an invalid
// session. A prompt that runs out of time leaves the session usable.
func classify(err error) error {
	if isTimeout(err) {
		return apperr.Prompt("ollama.prompt", err)
	}
	var te *transportError
	if errors.As(err, &te) {
		return apperr.SessionInvalid("ollama.prompt", err)
	}
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusNotFound {
		return apperr.SessionInvalid("ollama.prompt", err)
	}
	return apperr.Prompt("ollama.prompt", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Destroy unloads the model. The handle is unusable afterwards even if the unload fails.
func (s *session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	s.mu.Unlock()

	zero := 0
	_, err := s.provider.chat(ctx, ollamaChatRequest{
		Model:     s.provider.ModelName,
		Messages:  []ollamaMessage{},
		KeepAlive: &zero,
	})
	if err != nil {
		return fmt.Errorf("unload model: %w", err)
	}
	return nil
}
