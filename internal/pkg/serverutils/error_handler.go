package serverutils

import (
	"errors"
	"net/http"

	"procsight/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an error to the HTTP status it should be reported with.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}

	switch apperr.KindOf(err) {
	case apperr.KindCapabilityUnavailable, apperr.KindSessionCreationFailure, apperr.KindSessionInvalid:
		return http.StatusServiceUnavailable
	case apperr.KindPromptFailure, apperr.KindRemoteAPIFailure:
		return http.StatusBadGateway
	case apperr.KindStorageFailure:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// ErrorHandlerMiddleware renders errors returned by later handlers as JSON.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		code := StatusFor(err)
		return ctx.Status(code).JSON(ErrorResponse(code, err.Error()))
	}
}
