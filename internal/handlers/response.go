package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is the wire shape of a handler failure. Code is a stable
// machine-readable token; Message is for humans reading logs or devtools.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError so every failure reads {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes the error envelope with the given status and code.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// RespondOK writes payload as a plain 200 body.
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
