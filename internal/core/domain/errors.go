package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCardNotFound       = errors.New("card not found")
	ErrScanNotFound       = errors.New("scan not found")
	ErrCacheMiss          = errors.New("cache miss")
	ErrCredentialNotFound = errors.New("credential not found")

	ErrInvalidInput = errors.New("invalid input")
	ErrValidation   = errors.New("validation failed")

	ErrMaliciousContent   = errors.New("malicious content")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrContentTooLarge    = errors.New("content size limit exceeded")
	ErrSuspiciousContent  = errors.New("suspicious content")
	ErrSuspiciousActivity = errors.New("suspicious activity")

	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")
	ErrQuotaExceeded      = errors.New("quota exceeded")

	ErrDataSource     = errors.New("data source failure")
	ErrIntegrityCheck = errors.New("integrity check failed")
	ErrTemporary      = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsSecurity reports whether err is any of the content-gate rejection
// kinds. Such failures are never retried unmodified.
func IsSecurity(err error) bool {
	return errors.Is(err, ErrMaliciousContent) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrContentTooLarge) ||
		errors.Is(err, ErrSuspiciousContent) ||
		errors.Is(err, ErrSuspiciousActivity)
}

// IsAIFallback reports whether err should route the request to the
// local heuristic extractor instead of failing it.
func IsAIFallback(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrTemporary) ||
		IsSecurity(err)
}

// KindName returns a stable label for the dominant error kind, for
// metric labels and structured logs.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrCredentialNotFound):
		return "credential_not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	case errors.Is(err, ErrTemporary):
		return "temporary"
	case errors.Is(err, ErrMaliciousContent):
		return "malicious_content"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrContentTooLarge):
		return "content_too_large"
	case errors.Is(err, ErrSuspiciousContent):
		return "suspicious_content"
	case errors.Is(err, ErrSuspiciousActivity):
		return "suspicious_activity"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrIntegrityCheck):
		return "integrity_check"
	case errors.Is(err, ErrDataSource):
		return "data_source"
	default:
		return "unknown"
	}
}
