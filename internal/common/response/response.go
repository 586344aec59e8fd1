// Package response writes the JSON envelope every endpoint returns.
package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/c14220110/clinic-queue/internal/common/apperr"
)

type Envelope struct {
	Status  int         `json:"status"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func JSON(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, Envelope{
		Status:  status,
		Success: status < http.StatusBadRequest,
		Message: message,
		Data:    data,
	})
}

func OK(c echo.Context, message string, data interface{}) error {
	return JSON(c, http.StatusOK, message, data)
}

func Created(c echo.Context, message string, data interface{}) error {
	return JSON(c, http.StatusCreated, message, data)
}

func Error(c echo.Context, status int, message string) error {
	return JSON(c, status, message, nil)
}

// Fail maps err onto its HTTP status. Internal failures are logged with the
// request logger; their cause reaches the client only when debug is set.
func Fail(c echo.Context, err error, debug bool) error {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("request failed")
	}
	return Error(c, status, apperr.PublicMessage(err, debug))
}

// ErrorHandler renders errors that never reached a controller (unknown
// routes, middleware rejections, timeouts) in the same envelope.
func ErrorHandler(debug bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg, ok := he.Message.(string)
			if !ok {
				msg = http.StatusText(he.Code)
			}
			if he.Code >= http.StatusInternalServerError && he.Internal != nil {
				zerolog.Ctx(c.Request().Context()).Error().Err(he.Internal).Msg("request failed")
			}
			Error(c, he.Code, msg)
			return
		}
		Fail(c, err, debug)
	}
}
