// Package errors provides structured, coded error handling for the
// authorization service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Origin errors
	CodeOriginRejected Code = "ORIGIN_REJECTED"

	// Challenge errors. Missing, expired, and already-consumed challenges
	// collapse into one code so callers cannot enumerate challenge keys.
	CodeChallengeExpiredOrMissing Code = "CHALLENGE_EXPIRED_OR_MISSING"

	// Ceremony errors
	CodeCeremonyVerificationFailed Code = "CEREMONY_VERIFICATION_FAILED"

	// Envelope errors. Expired and invalid-signature are deliberately
	// distinct: the timestamp check is not secret-dependent.
	CodeEnvelopeExpired          Code = "ENVELOPE_EXPIRED"
	CodeEnvelopeInvalidSignature Code = "ENVELOPE_INVALID_SIGNATURE"

	// Grace period errors
	CodeGracePeriodExpired Code = "GRACE_PERIOD_EXPIRED"

	// Ownership errors
	CodeResourceNotOwned Code = "RESOURCE_NOT_OWNED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Validation errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Backend errors
	CodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"
)

// HTTPStatus maps an error code to the HTTP status returned at the request
// boundary. Every code is recoverable; none should crash the process.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeOriginRejected:
		return http.StatusForbidden
	case CodeChallengeExpiredOrMissing:
		return http.StatusGone
	case CodeCeremonyVerificationFailed:
		return http.StatusUnauthorized
	case CodeEnvelopeExpired:
		return http.StatusUnauthorized
	case CodeEnvelopeInvalidSignature:
		return http.StatusUnauthorized
	case CodeGracePeriodExpired:
		return http.StatusUnauthorized
	case CodeResourceNotOwned:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeBackendUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
