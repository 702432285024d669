// Package chat drives one conversation: each user turn is assembled into a
// prompt, sent to a backend, and answered in an append-only history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"procsight/internal/pkg/logger"
	"procsight/pkg/apperr"
	"procsight/pkg/llm"
	"procsight/pkg/prompt"

	"github.com/google/uuid"
)

const (
	FailureMessage       = "Failed to analyze. Please try again."
	UnavailableMessage   = "Unable to create AI session. Please try again."
	SessionExpiredNotice = "Session expired. Please try again."

	// DefaultRetryInputLength bounds the user input on the single fallback retry.
	DefaultRetryInputLength = 50
)

var (
	ErrTurnInProgress = errors.New("chat: a turn is already in progress")
	ErrEmptyInput     = errors.New("chat: message is empty")
)

type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PromptBuilder assembles the prompt for a question against current telemetry.
type PromptBuilder interface {
	Assemble(ctx context.Context, question string) prompt.Prompt
}

type Controller struct {
	backend  Backend
	prompts  PromptBuilder
	retryLen int

	mu      sync.RWMutex
	history []Message
	notice  string

	busy atomic.Bool

	now    func() time.Time
	logger logger.ILogger
	trace  logger.ILogger
}

// NewController wires a backend to a prompt builder. trace receives full
// prompts and responses; pass the main logger when no separate trace log exists.
func NewController(backend Backend, prompts PromptBuilder, retryLen int, log, trace logger.ILogger) *Controller {
	if retryLen <= 0 {
		retryLen = DefaultRetryInputLength
	}
	if trace == nil {
		trace = log
	}
	return &Controller{
		backend:  backend,
		prompts:  prompts,
		retryLen: retryLen,
		now:      time.Now,
		logger:   log,
		trace:    trace,
	}
}

// Submit runs one turn and returns the assistant message it appended.
// Backend failures never surface as errors; they end in an assistant
// failure message and a notice. Only ErrTurnInProgress and ErrEmptyInput
// are returned, and neither touches history.
func (c *Controller) Submit(ctx context.Context, userText string) (Message, error) {
	if strings.TrimSpace(userText) == "" {
		return Message{}, ErrEmptyInput
	}
	if !c.busy.CompareAndSwap(false, true) {
		return Message{}, ErrTurnInProgress
	}
	defer c.busy.Store(false)

	c.append(llm.RoleUser, userText)

	if err := c.backend.Ensure(ctx); err != nil {
		c.logger.Warn("Chat", "No usable session", map[string]interface{}{
			"backend": c.backend.Name(),
			"error":   err.Error(),
		})
		c.setNotice(UnavailableMessage)
		return c.append(llm.RoleAssistant, UnavailableMessage), nil
	}

	p := c.prompts.Assemble(ctx, userText)
	response, err := c.generate(ctx, p, 1)
	if err == nil {
		c.setNotice("")
		return c.append(llm.RoleAssistant, response), nil
	}

	if apperr.IsSessionRelated(err) {
		c.recoverSession(ctx, err)
		return c.append(llm.RoleAssistant, FailureMessage), nil
	}

	retryInput := truncate(userText, c.retryLen)
	c.logger.Info("Chat", "Retrying with truncated input", map[string]interface{}{
		"backend":     c.backend.Name(),
		"error":       err.Error(),
		"input_chars": len([]rune(retryInput)),
	})

	response, err = c.generate(ctx, c.prompts.Assemble(ctx, retryInput), 2)
	if err == nil {
		c.setNotice("")
		return c.append(llm.RoleAssistant, response), nil
	}

	if apperr.IsSessionRelated(err) {
		c.recoverSession(ctx, err)
	} else {
		c.setNotice(fmt.Sprintf("Failed to get response: %s", err.Error()))
	}
	return c.append(llm.RoleAssistant, FailureMessage), nil
}

func (c *Controller) generate(ctx context.Context, p prompt.Prompt, attempt int) (string, error) {
	c.trace.Debug("Chat", "Prompt", map[string]interface{}{
		"backend":          c.backend.Name(),
		"attempt":          attempt,
		"estimated_tokens": p.EstimatedTokens,
		"text":             p.Text,
	})

	response, err := c.backend.Generate(ctx, p.Text)
	if err != nil {
		c.logger.Warn("Chat", "Backend call failed", map[string]interface{}{
			"backend": c.backend.Name(),
			"attempt": attempt,
			"kind":    string(apperr.KindOf(err)),
			"error":   err.Error(),
		})
		return "", err
	}

	c.trace.Debug("Chat", "Response", map[string]interface{}{
		"backend": c.backend.Name(),
		"attempt": attempt,
		"text":    response,
	})
	return response, nil
}

func (c *Controller) recoverSession(ctx context.Context, cause error) {
	if err := c.backend.Recover(ctx); err != nil {
		c.logger.Warn("Chat", "Session recovery failed", map[string]interface{}{
			"cause": cause.Error(),
			"error": err.Error(),
		})
	}
	c.setNotice(SessionExpiredNotice)
}

// Preview assembles the prompt for userText without calling a backend.
func (c *Controller) Preview(ctx context.Context, userText string) prompt.Prompt {
	return c.prompts.Assemble(ctx, userText)
}

// History returns a copy of the conversation.
func (c *Controller) History() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Message(nil), c.history...)
}

// Notice is the visible status line, empty after a successful turn.
func (c *Controller) Notice() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notice
}

func (c *Controller) Busy() bool {
	return c.busy.Load()
}

func (c *Controller) BackendName() string {
	return c.backend.Name()
}

// Dispose releases the backend session. The history stays readable.
func (c *Controller) Dispose(ctx context.Context) {
	c.backend.Close(ctx)
	c.logger.Info("Chat", "Controller disposed", map[string]interface{}{"backend": c.backend.Name()})
}

func (c *Controller) append(role, content string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: c.now(),
	}
	c.mu.Lock()
	c.history = append(c.history, msg)
	c.mu.Unlock()
	return msg
}

func (c *Controller) setNotice(notice string) {
	c.mu.Lock()
	c.notice = notice
	c.mu.Unlock()
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
