package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/dormhub/internal/audit/domain"
	billingdomain "github.com/smallbiznis/dormhub/internal/billing/domain"
	occupancydomain "github.com/smallbiznis/dormhub/internal/occupancy/domain"
	paymentdomain "github.com/smallbiznis/dormhub/internal/payment/domain"
	roomdomain "github.com/smallbiznis/dormhub/internal/room/domain"
	tenantdomain "github.com/smallbiznis/dormhub/internal/tenant/domain"
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
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
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

	if errors.Is(err, paymentdomain.ErrInvalidSignature) {
		return http.StatusUnauthorized, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: sentinelMessage(err, "conflict"),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "payment_gateway_error",
			Message: "payment gateway unavailable, please try again",
		}
	case errors.Is(err, occupancydomain.ErrAggregationFailed),
		errors.Is(err, billingdomain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "retryable",
			Message: "room data temporarily unavailable, please retry",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrInvalidConfig):
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

// classifyErrorForLog feeds the request logger a type and a stable code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := ""
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if sentinel := firstSentinel(err); sentinel != nil {
		code = sentinel.Error()
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

var validationErrors = []error{
	ErrInvalidRequest,
	roomdomain.ErrInvalidID,
	roomdomain.ErrInvalidNumber,
	roomdomain.ErrInvalidPrice,
	roomdomain.ErrInvalidCapacity,
	roomdomain.ErrInvalidStatus,
	tenantdomain.ErrInvalidID,
	tenantdomain.ErrInvalidName,
	tenantdomain.ErrInvalidEmail,
	occupancydomain.ErrInvalidID,
	occupancydomain.ErrInvalidRoom,
	occupancydomain.ErrInvalidTenant,
	occupancydomain.ErrInvalidDate,
	occupancydomain.ErrNoCurrentOccupants,
	billingdomain.ErrInvalidID,
	billingdomain.ErrInvalidPeriod,
	billingdomain.ErrInvalidDueDate,
	billingdomain.ErrInvalidWaterUnits,
	billingdomain.ErrInvalidMeterReading,
	billingdomain.ErrInvalidStatus,
	billingdomain.ErrInvalidPaidSource,
	billingdomain.ErrNoOccupants,
	billingdomain.ErrTenantUnresolved,
	paymentdomain.ErrInvalidBillingID,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidProvider,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidEvent,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
}

var notFoundErrors = []error{
	ErrNotFound,
	roomdomain.ErrNotFound,
	tenantdomain.ErrNotFound,
	occupancydomain.ErrNotFound,
	occupancydomain.ErrRoomNotFound,
	occupancydomain.ErrTenantNotFound,
	billingdomain.ErrNotFound,
	paymentdomain.ErrBillingNotFound,
	paymentdomain.ErrProviderNotFound,
	gorm.ErrRecordNotFound,
}

var conflictErrors = []error{
	ErrConflict,
	roomdomain.ErrDuplicateNumber,
	occupancydomain.ErrTenantAlreadyHoused,
	occupancydomain.ErrRoomFull,
	occupancydomain.ErrRoomUnavailable,
	occupancydomain.ErrAlreadyCheckedOut,
	billingdomain.ErrDuplicateBilling,
	billingdomain.ErrIdempotencyConflict,
	paymentdomain.ErrAlreadyPaid,
}

func validationErrorCode(err error) (string, bool) {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

func isNotFoundError(err error) bool {
	return matchesAny(err, notFoundErrors)
}

func isConflictError(err error) bool {
	return matchesAny(err, conflictErrors)
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func firstSentinel(err error) error {
	for _, group := range [][]error{notFoundErrors, conflictErrors} {
		for _, target := range group {
			if errors.Is(err, target) {
				return target
			}
		}
	}
	for _, target := range []error{
		ErrRateLimited,
		paymentdomain.ErrGatewayUnavailable,
		occupancydomain.ErrAggregationFailed,
		billingdomain.ErrStoreUnavailable,
	} {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

func sentinelMessage(err error, fallback string) string {
	if sentinel := firstSentinel(err); sentinel != nil {
		return strings.ReplaceAll(sentinel.Error(), "_", " ")
	}
	return fallback
}

func validationErrorField(code string) string {
	switch {
	case code == "invalid_request":
		return "request"
	case strings.HasPrefix(code, "invalid_"):
		return strings.TrimPrefix(code, "invalid_")
	default:
		return ""
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case billingdomain.ErrNoOccupants.Error(), occupancydomain.ErrNoCurrentOccupants.Error():
		return "room has no current occupants"
	case billingdomain.ErrTenantUnresolved.Error():
		return "room occupant has no tenant record"
	default:
		return "invalid value"
	}
}
