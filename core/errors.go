package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput             = "HOOKS_BAD_INPUT"
	ServiceErrorWebhookNotFound      = "HOOKS_WEBHOOK_NOT_FOUND"
	ServiceErrorDeliveryNotFound     = "HOOKS_DELIVERY_NOT_FOUND"
	ServiceErrorDeliveryNotRetryable = "HOOKS_DELIVERY_NOT_RETRYABLE"
	ServiceErrorDeliveryConflict     = "HOOKS_DELIVERY_CONFLICT"
	ServiceErrorDispatchFailed       = "HOOKS_DISPATCH_FAILED"
	ServiceErrorInternal             = "HOOKS_INTERNAL_ERROR"
)

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrWebhookNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorWebhookNotFound)
	case errors.Is(err, ErrDeliveryNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorDeliveryNotFound)
	case errors.Is(err, ErrDeliveryNotRetryable):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorDeliveryNotRetryable)
	case errors.Is(err, ErrDeliveryConflict):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorDeliveryConflict)
	case errors.Is(err, ErrUnknownEvent):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "dispatch"):
		return newServiceError(err.Error(), goerrors.CategoryOperation, ServiceErrorDispatchFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorWebhookNotFound
	case goerrors.CategoryConflict:
		return ServiceErrorDeliveryConflict
	case goerrors.CategoryOperation:
		return ServiceErrorDispatchFailed
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
