package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"procsight/internal/dto"
	"procsight/internal/pkg/serverutils"
	"procsight/internal/service"
	"procsight/pkg/chat"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTelemetryService struct {
	terminated map[int]bool
}

func (f *fakeTelemetryService) GetRollingLog(ctx context.Context) *dto.TelemetryResponse {
	return &dto.TelemetryResponse{Header: "h", MaxRows: 12, Rows: []dto.TelemetryRowDTO{{ProcessID: 7}}}
}

func (f *fakeTelemetryService) Compact(ctx context.Context) (*dto.TelemetryResponse, error) {
	return f.GetRollingLog(ctx), nil
}

func (f *fakeTelemetryService) ListProcesses(ctx context.Context) []dto.ProcessResponse {
	return []dto.ProcessResponse{{Id: 7, Name: "browser"}}
}

func (f *fakeTelemetryService) TerminateProcess(ctx context.Context, id int) (*dto.TerminateProcessResponse, error) {
	return &dto.TerminateProcessResponse{Id: id, Terminated: f.terminated[id]}, nil
}

type fakeChatService struct {
	err  error
	last string
}

func (f *fakeChatService) Send(ctx context.Context, req *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	f.last = req.Message
	if f.err != nil {
		return nil, f.err
	}
	return &dto.SendChatResponse{Reply: dto.ChatMessageResponse{Role: "assistant", Content: "All good"}, Backend: "local"}, nil
}

func (f *fakeChatService) History(ctx context.Context) *dto.ChatHistoryResponse {
	return &dto.ChatHistoryResponse{Backend: "local"}
}

func (f *fakeChatService) Preview(ctx context.Context, question string) *dto.PromptPreviewResponse {
	return &dto.PromptPreviewResponse{Prompt: "User Question: " + question, EstimatedTokens: 4}
}

type fakeSessionService struct{ remote bool }

func (f *fakeSessionService) GetState(ctx context.Context) *dto.SessionStateResponse {
	return &dto.SessionStateResponse{Backend: "local", Status: "ready"}
}

func (f *fakeSessionService) Restart(ctx context.Context) (*dto.SessionStateResponse, error) {
	if f.remote {
		return nil, service.ErrNoLocalSession
	}
	return f.GetState(ctx), nil
}

func newTestApp(tel *fakeTelemetryService, ch *fakeChatService, sess *fakeSessionService) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	api := app.Group("/api")
	NewTelemetryController(tel).RegisterRoutes(api)
	NewChatController(ch).RegisterRoutes(api)
	NewSessionController(sess).RegisterRoutes(api)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, serverutils.Response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, _ := io.ReadAll(resp.Body)
	var out serverutils.Response
	require.NoError(t, json.Unmarshal(raw, &out))
	return resp.StatusCode, out
}

func TestTelemetryRoutes(t *testing.T) {
	app := newTestApp(&fakeTelemetryService{terminated: map[int]bool{7: true}}, &fakeChatService{}, &fakeSessionService{})

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"rolling log", http.MethodGet, "/api/telemetry", 200},
		{"compact", http.MethodPost, "/api/telemetry/compact", 200},
		{"processes", http.MethodGet, "/api/processes", 200},
		{"terminate", http.MethodPost, "/api/processes/7/terminate", 200},
		{"terminate unknown", http.MethodPost, "/api/processes/8/terminate", 404},
		{"terminate bad id", http.MethodPost, "/api/processes/abc/terminate", 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := do(t, app, tt.method, tt.path, "")
			assert.Equal(t, tt.want, code)
			assert.Equal(t, tt.want == 200, out.Success)
		})
	}
}

func TestChatSend(t *testing.T) {
	ch := &fakeChatService{}
	app := newTestApp(&fakeTelemetryService{}, ch, &fakeSessionService{})

	code, out := do(t, app, http.MethodPost, "/api/chat", `{"message":"why is it slow?"}`)
	assert.Equal(t, 200, code)
	assert.True(t, out.Success)
	assert.Equal(t, "why is it slow?", ch.last)
}

func TestChatSendErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"missing message", `{}`, nil, 400},
		{"bad json", `{`, nil, 400},
		{"turn in progress", `{"message":"hi"}`, chat.ErrTurnInProgress, 409},
		{"empty after trim", `{"message":"  "}`, chat.ErrEmptyInput, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeTelemetryService{}, &fakeChatService{err: tt.err}, &fakeSessionService{})
			code, out := do(t, app, http.MethodPost, "/api/chat", tt.body)
			assert.Equal(t, tt.want, code)
			assert.False(t, out.Success)
		})
	}
}

func TestChatPreviewRequiresQuery(t *testing.T) {
	app := newTestApp(&fakeTelemetryService{}, &fakeChatService{}, &fakeSessionService{})

	code, _ := do(t, app, http.MethodGet, "/api/chat/preview", "")
	assert.Equal(t, 400, code)

	code, out := do(t, app, http.MethodGet, "/api/chat/preview?q=cpu", "")
	assert.Equal(t, 200, code)
	data := out.Data.(map[string]interface{})
	assert.Equal(t, "User Question: cpu", data["prompt"])
}

func TestSessionRestartOnRemoteBackend(t *testing.T) {
	app := newTestApp(&fakeTelemetryService{}, &fakeChatService{}, &fakeSessionService{remote: true})

	code, out := do(t, app, http.MethodPost, "/api/session/restart", "")
	assert.Equal(t, 409, code)
	assert.Contains(t, out.Message, "remote backend")
}
