package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/cariledger/pkg/apperror"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string            `json:"type"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = apperror.NotFound("not_found", "not found")
	ErrInvalidRequest = apperror.Validation("invalid_request", "invalid request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", ErrInvalidRequest.Code, ErrInvalidRequest.Message)
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalErrorPayload()
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    vErr.Errors[0].Code,
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    ErrNotFound.Code,
			Message: ErrNotFound.Message,
		}
	}

	var appErr *apperror.Error
	if !errors.As(err, &appErr) || appErr == nil {
		return http.StatusInternalServerError, internalErrorPayload()
	}

	switch appErr.Kind {
	case apperror.KindValidation:
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    appErr.Code,
			Message: appErr.Message,
			Errors: []ValidationError{
				{
					Field:   validationErrorField(appErr.Code),
					Code:    appErr.Code,
					Message: appErr.Message,
				},
			},
		}
	case apperror.KindForbidden:
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Code:    appErr.Code,
			Message: appErr.Message,
		}
	case apperror.KindConflict:
		return http.StatusConflict, errorPayload{
			Type:      "conflict",
			Code:      appErr.Code,
			Message:   appErr.Message,
			Retryable: appErr.Code == "version_conflict" || appErr.Code == "account_busy",
		}
	case apperror.KindNotFound:
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    appErr.Code,
			Message: appErr.Message,
		}
	default:
		payload := internalErrorPayload()
		payload.Code = appErr.Code
		payload.Retryable = appErr.Code == apperror.ErrStorage.Code
		return http.StatusInternalServerError, payload
	}
}

func internalErrorPayload() errorPayload {
	return errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil && len(vErr.Errors) > 0 {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	switch {
	case code == "unsupported_currency":
		return "currency"
	case code == "description_too_long":
		return "description"
	case code == "invalid_date_range":
		return "to"
	case strings.HasPrefix(code, "invalid_"):
		return strings.TrimPrefix(code, "invalid_")
	default:
		return ""
	}
}

// classifyErrorForLog feeds error_type and error_code on the request log line.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if vErr := asValidationErrors(err); vErr != nil {
		return "validation_error", vErr.Errors[0].Code
	}
	kind := apperror.KindOf(err)
	if kind == "" {
		return "internal_error", ""
	}
	return string(kind), apperror.CodeOf(err)
}
