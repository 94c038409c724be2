package handler

import (
	"errors"
	"net/http"

	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/gin-gonic/gin"
)

// SuccessResponse writes data in the success envelope.
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse writes message in the failure envelope.
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// StatusCode maps a contract error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, crowdfund.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, crowdfund.ErrNotYetEligible):
		return http.StatusTooEarly
	case errors.Is(err, crowdfund.ErrWrongAsset):
		return http.StatusUnprocessableEntity
	case errors.Is(err, crowdfund.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, crowdfund.ErrNotFound), errors.Is(err, crowdfund.ErrNoProject):
		return http.StatusNotFound
	case errors.Is(err, crowdfund.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func handleError(c *gin.Context, err error) {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		ErrorResponse(c, code, "internal error")
		return
	}
	ErrorResponse(c, code, err.Error())
}
