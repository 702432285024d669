// Package gemini is the remote fallback path: one generateContent call per prompt.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"procsight/internal/pkg/logger"
	"procsight/pkg/apperr"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1"
	DefaultModel   = "gemini-1.5-flash"

	opGenerate = "gemini.generate"
)

type chatPart struct {
	Text string `json:"text"`
}

type chatContent struct {
	Parts []*chatPart `json:"parts"`
	Role  string      `json:"role,omitempty"`
}

type chatRequest struct {
	Contents []*chatContent `json:"contents"`
}

type chatCandidate struct {
	Content *chatContent `json:"content"`
}

type chatResponse struct {
	Candidates []*chatCandidate `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client makes single request/response calls. It never retries.
type Client struct {
	BaseURL string
	Models  []string
	Client  *http.Client

	logger logger.ILogger
}

func NewClient(baseURL string, models []string, log logger.ILogger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if len(models) == 0 {
		models = []string{DefaultModel}
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Models:  models,
		Client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: log,
	}
}

// Supports reports whether modelID is one of the configured remote models.
func (c *Client) Supports(modelID string) bool {
	for _, m := range c.Models {
		if m == modelID {
			return true
		}
	}
	return false
}

// Generate sends prompt to modelID, passing credential as the key parameter.
// Every failure is an apperr RemoteApiFailure; status is 0 when no response arrived.
func (c *Client) Generate(ctx context.Context, prompt, credential, modelID string) (string, error) {
	ctx, span := otel.Tracer("procsight").Start(ctx, opGenerate)
	defer span.End()
	span.SetAttributes(attribute.String("gemini.model", modelID), attribute.Int("prompt.length", len(prompt)))

	text, err := c.generate(ctx, prompt, credential, modelID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Gemini", "Generation failed", map[string]interface{}{
			"model": modelID,
			"error": err.Error(),
		})
		return "", err
	}

	c.logger.Debug("Gemini", "Generation succeeded", map[string]interface{}{
		"model":           modelID,
		"response_length": len(text),
	})
	return text, nil
}

func (c *Client) generate(ctx context.Context, prompt, credential, modelID string) (string, error) {
	if !c.Supports(modelID) {
		return "", apperr.RemoteAPI(opGenerate, 0, fmt.Sprintf("unknown model %q", modelID), nil)
	}
	if credential == "" {
		return "", apperr.RemoteAPI(opGenerate, 0, "missing credential", nil)
	}

	payload := chatRequest{
		Contents: []*chatContent{
			{Parts: []*chatPart{{Text: prompt}}},
		},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", apperr.RemoteAPI(opGenerate, 0, "marshal request", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.BaseURL, url.PathEscape(modelID), url.QueryEscape(credential))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(payloadJSON))
	if err != nil {
		return "", apperr.RemoteAPI(opGenerate, 0, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.Client.Do(req)
	if err != nil {
		// url.Error would echo the key query parameter
		return "", apperr.RemoteAPI(opGenerate, 0, "request failed", unwrapURLError(err))
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", apperr.RemoteAPI(opGenerate, res.StatusCode, "read response", err)
	}

	if res.StatusCode != http.StatusOK {
		return "", apperr.RemoteAPI(opGenerate, res.StatusCode, errorMessage(resBody), nil)
	}

	var geminiRes chatResponse
	if err := json.Unmarshal(resBody, &geminiRes); err != nil {
		return "", apperr.RemoteAPI(opGenerate, res.StatusCode, "malformed response", err)
	}

	text, ok := firstCandidateText(geminiRes)
	if !ok {
		return "", apperr.RemoteAPI(opGenerate, res.StatusCode, "malformed response: no candidate text", nil)
	}
	return text, nil
}

func firstCandidateText(res chatResponse) (string, bool) {
	if len(res.Candidates) == 0 || res.Candidates[0] == nil || res.Candidates[0].Content == nil {
		return "", false
	}
	for _, p := range res.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" {
			return p.Text, true
		}
	}
	return "", false
}

func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return "API request failed"
}

func unwrapURLError(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err
	}
	return err
}
