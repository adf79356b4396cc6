package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	accountdomain "github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrNotFound           = errors.New("not_found")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors is a 400 carrying one entry per offending field.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation error"
	}
	return fmt.Sprintf("validation error: %s %s", v.Errors[0].Field, v.Errors[0].Code)
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// errorRule maps every error matching one of targets to a response.
type errorRule struct {
	targets []error
	status  int
	kind    string
	message string
}

var errorRules = []errorRule{
	{[]error{ErrUnauthorized}, http.StatusUnauthorized, "unauthorized", "unauthorized"},
	{[]error{accountdomain.ErrNameTaken}, http.StatusConflict, "conflict", "an account with this name already exists"},
	{[]error{pipeline.ErrAccountBusy}, http.StatusConflict, "conflict", "account is already being synced"},
	{[]error{ErrNotFound, accountdomain.ErrNotFound, pipeline.ErrAccountNotFound, gorm.ErrRecordNotFound}, http.StatusNotFound, "not_found", "not found"},
	{[]error{ErrTooManyRequests}, http.StatusTooManyRequests, "too_many_requests", "too many export requests for this account"},
	{[]error{ErrServiceUnavailable}, http.StatusServiceUnavailable, "service_unavailable", "service unavailable"},
}

// Sentinels answered as a single-field validation error.
var validationSentinels = map[error]ValidationError{
	ErrInvalidRequest:               {Field: "request", Code: "invalid_request", Message: "invalid request"},
	accountdomain.ErrInvalidRequest: {Field: "request", Code: "invalid_request", Message: "invalid request"},
	accountdomain.ErrInvalidID:      {Field: "id", Code: "invalid_id", Message: "invalid value"},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Written() {
			return
		}
		last := c.Errors.Last()
		if last == nil {
			return
		}
		status, payload := mapError(last.Err)
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
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func mapError(err error) (int, errorPayload) {
	if fields := validationFields(err); len(fields) > 0 {
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: fields}
	}
	if err != nil {
		for _, rule := range errorRules {
			for _, target := range rule.targets {
				if errors.Is(err, target) {
					return rule.status, errorPayload{Type: rule.kind, Message: rule.message}
				}
			}
		}
	}
	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}

// validationFields flattens our own validation errors, validator field errors
// wrapped by the account service and validation sentinels.
func validationFields(err error) []ValidationError {
	if err == nil {
		return nil
	}
	if vErr := (*ValidationErrors)(nil); errors.As(err, &vErr) && vErr != nil {
		return vErr.Errors
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, ValidationError{Field: jsonFieldName(fe), Code: fe.Tag(), Message: fieldMessage(fe)})
		}
		return out
	}
	for sentinel, field := range validationSentinels {
		if errors.Is(err, sentinel) {
			return []ValidationError{field}
		}
	}
	return nil
}

func jsonFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	return toSnake(strings.TrimPrefix(ns, "CreateAccountRequest."))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must have at least " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "unique":
		return "must not repeat values"
	default:
		return "invalid value"
	}
}

// toSnake converts a Go field path like DocTypes[0] or HoldedAPIKey to its
// JSON spelling. Acronyms stay in one word.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 && unicode.IsLetter(runes[i-1]) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// classifyErrorForLog returns the error type and code logged per request.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		return "server", code
	}
	return "client", code
}
