package parser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/cardscan/internal/core/domain"
	"github.com/kirillkom/cardscan/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "chat completion status error"
	}
	if e.Body == "" {
		return fmt.Sprintf("chat completion status: %s", e.Status)
	}
	return fmt.Sprintf("chat completion status: %s: %s", e.Status, e.Body)
}

func classifyParserError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
		case statusErr.StatusCode >= 500:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

// wrapParserError maps transport failures to the domain kinds the
// orchestrator branches on. Errors already carrying a kind pass
// through.
func wrapParserError(operation string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		domain.ErrServiceUnavailable, domain.ErrRateLimited, domain.ErrQuotaExceeded,
		domain.ErrTemporary, domain.ErrInvalidInput, domain.ErrMalformedResponse,
		domain.ErrMaliciousContent, domain.ErrCredentialNotFound,
	} {
		if domain.IsKind(err, kind) {
			return err
		}
	}

	if resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrServiceUnavailable, operation, err)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return domain.WrapError(domain.ErrRateLimited, operation, err)
		case statusErr.StatusCode == http.StatusPaymentRequired || quotaExhausted(statusErr):
			return domain.WrapError(domain.ErrQuotaExceeded, operation, err)
		case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
			return domain.WrapError(domain.ErrInvalidInput, operation, err)
		case statusErr.StatusCode >= 500:
			return domain.WrapError(domain.ErrServiceUnavailable, operation, err)
		default:
			return domain.WrapError(domain.ErrTemporary, operation, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrServiceUnavailable, operation, err)
	}
	return domain.WrapError(domain.ErrTemporary, operation, err)
}

func quotaExhausted(statusErr *HTTPStatusError) bool {
	return strings.Contains(statusErr.Body, "insufficient_quota")
}
