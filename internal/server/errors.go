package server

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/givingdesk/internal/checkout/domain"
	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
	reportingdomain "github.com/smallbiznis/givingdesk/internal/reporting/domain"
	webhookdomain "github.com/smallbiznis/givingdesk/internal/webhook/domain"
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
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTooManyRequests    = errors.New("too_many_requests")
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
	return newValidationError("request", "invalid_request", "invalid request")
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
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if fieldErr := asFieldValidationError(err); fieldErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fieldErrors(fieldErr.Fields),
			Fields:  fieldErr.Fields,
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if gwErr := asGatewayError(err); gwErr != nil {
		status := http.StatusInternalServerError
		if gwErr.IsClientError() {
			status = http.StatusBadRequest
		}
		return status, errorPayload{
			Type:    "stripe_error",
			Message: gwErr.Message,
		}
	}

	if code, ok := badRequestCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
			Errors: []ValidationError{
				{Field: code.field, Code: code.code, Message: err.Error()},
			},
		}
	}

	switch {
	case errors.Is(err, webhookdomain.ErrInvalidSignature),
		errors.Is(err, webhookdomain.ErrInvalidPayload):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, donationdomain.ErrInvalidStatusTransition):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, checkoutdomain.ErrGatewayNotConfigured),
		errors.Is(err, webhookdomain.ErrWebhookSecretMissing),
		errors.Is(err, donationdomain.ErrStoreLocked):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds error_type/error_code on the request log line.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if gwErr := asGatewayError(err); gwErr != nil {
		return "stripe_error", gwErr.Code
	}
	_, payload := mapError(err)
	code := ""
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func asFieldValidationError(err error) *checkoutdomain.ValidationError {
	var vErr *checkoutdomain.ValidationError
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func asGatewayError(err error) *checkoutdomain.GatewayError {
	var gwErr *checkoutdomain.GatewayError
	if errors.As(err, &gwErr) && gwErr != nil {
		return gwErr
	}
	return nil
}

func fieldErrors(fields map[string]string) []ValidationError {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]ValidationError, 0, len(keys))
	for _, k := range keys {
		out = append(out, ValidationError{Field: k, Code: "invalid_" + k, Message: fields[k]})
	}
	return out
}

type fieldCode struct {
	field string
	code  string
}

func badRequestCode(err error) (fieldCode, bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return fieldCode{"request", "invalid_request"}, true
	case errors.Is(err, checkoutdomain.ErrCustomerDeleted):
		return fieldCode{"customerId", "customer_deleted"}, true
	case errors.Is(err, checkoutdomain.ErrSubscriptionIDRequired):
		return fieldCode{"subscriptionId", "required"}, true
	case errors.Is(err, reportingdomain.ErrInvalidSort):
		return fieldCode{"sortBy", "invalid_sort"}, true
	case errors.Is(err, reportingdomain.ErrInvalidDateRange):
		return fieldCode{"startDate", "invalid_date_range"}, true
	case errors.Is(err, donationdomain.ErrEmptyLookup):
		return fieldCode{"id", "required"}, true
	default:
		return fieldCode{}, false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, donationdomain.ErrTransactionNotFound),
		errors.Is(err, donationdomain.ErrSubscriptionNotFound):
		return true
	default:
		return false
	}
}
