// Package apperr defines the closed set of error kinds surfaced by the
// core components, and the HTTP status each kind maps to at the API
// boundary. Every error that crosses a component boundary is an *Error
// so the HTTP layer can switch on Kind instead of matching strings.
package apperr

import (
	"fmt"
	"net/http"
)

// Kind tags an Error with one of the closed set of error kinds.
type Kind string

const (
	KindValidation                 Kind = "validation"
	KindPeerNotFound                Kind = "peer_not_found"
	KindConnectionNotFound          Kind = "connection_not_found"
	KindReservationNotFound         Kind = "reservation_not_found"
	KindAddressTaken                Kind = "address_taken"
	KindAddressReserved             Kind = "address_reserved"
	KindAddressNotInSubnet          Kind = "address_not_in_subnet"
	KindAddressIsSubnetNetwork      Kind = "address_is_subnet_network"
	KindAddressIsSubnetBroadcast    Kind = "address_is_subnet_broadcast"
	KindForbiddenHostEndpointChange Kind = "forbidden_host_endpoint_change"
	KindSubnetExhausted             Kind = "subnet_exhausted"
	KindVersionUnsupported          Kind = "version_unsupported"
	KindCommitFailed                Kind = "commit_failed"
	KindInterfaceExists             Kind = "interface_exists"
	KindInterfaceMissing            Kind = "interface_missing"
	KindInterfaceSyncFailed         Kind = "interface_sync_failed"
	KindCommandFailed               Kind = "command_failed"
	KindAuthRequired                Kind = "auth_required"
	KindAuthInvalid                 Kind = "auth_invalid"
	KindBadRequest                  Kind = "bad_request"
	KindInternal                    Kind = "internal"
)

// Error is the single error type passed between core components.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Validation builds a Validation-kind error naming the offending field.
func Validation(field, reason string) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf("%s: %s", field, reason)}
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	return ae, ok
}

// HTTPStatus maps a Kind to the HTTP status code returned at the API boundary.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation, KindSubnetExhausted, KindBadRequest, KindAddressTaken,
		KindAddressReserved, KindAddressNotInSubnet, KindAddressIsSubnetNetwork,
		KindAddressIsSubnetBroadcast:
		return http.StatusBadRequest
	case KindPeerNotFound, KindConnectionNotFound, KindReservationNotFound:
		return http.StatusNotFound
	case KindForbiddenHostEndpointChange:
		return http.StatusForbidden
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindAuthInvalid:
		return http.StatusForbidden
	case KindInterfaceSyncFailed, KindCommitFailed, KindCommandFailed, KindInterfaceExists, KindInterfaceMissing:
		return http.StatusInternalServerError
	case KindVersionUnsupported, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// StatusTag returns the short machine-readable status string used in the
// `{status, message}` HTTP response body.
func StatusTag(k Kind) string {
	switch k {
	case KindForbiddenHostEndpointChange:
		return "forbidden"
	case KindAuthRequired, KindAuthInvalid:
		return "unauthorized"
	case KindValidation, KindBadRequest:
		return "bad_request"
	case KindPeerNotFound, KindConnectionNotFound, KindReservationNotFound:
		return "not_found"
	default:
		return string(k)
	}
}
