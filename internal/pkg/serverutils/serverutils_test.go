package serverutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"procsight/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"fiber error", fiber.NewError(fiber.StatusNotFound, "nope"), 404},
		{"session invalid", apperr.SessionInvalid("prompt", nil), 503},
		{"remote api", apperr.RemoteAPI("generate", 400, "bad key", nil), 502},
		{"storage", apperr.Storage("kv.set", nil), 500},
		{"plain", errors.New("boom"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestErrorHandlerMiddlewareRendersJSON(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/fail", func(ctx *fiber.Ctx) error {
		return apperr.Prompt("prompt", errors.New("model crashed"))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var out Response
	require.NoError(t, json.Unmarshal(body, &out))
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "model crashed")
}

func TestValidateRequest(t *testing.T) {
	type req struct {
		Message string `validate:"required"`
	}

	require.NoError(t, ValidateRequest(req{Message: "hi"}))

	err := ValidateRequest(req{})
	var fe *fiber.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fiber.StatusBadRequest, fe.Code)
	assert.Equal(t, "message is required", fe.Message)
}
