package httpadapter

import (
	"net/http"

	"github.com/kirillkom/cardscan/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrContentTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrCardNotFound),
		domain.IsKind(err, domain.ErrScanNotFound),
		domain.IsKind(err, domain.ErrCredentialNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrRateLimited), domain.IsKind(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case domain.IsSecurity(err):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrServiceUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage keeps upstream details out of responses: gate and
// integrity failures get a generic line, everything else reports its
// masked error text.
func clientMessage(err error, mask func(string) string) string {
	switch {
	case domain.IsSecurity(err):
		return "the request content was rejected"
	case domain.IsKind(err, domain.ErrIntegrityCheck):
		return "stored credential failed verification"
	default:
		if mask != nil {
			return mask(err.Error())
		}
		return err.Error()
	}
}
