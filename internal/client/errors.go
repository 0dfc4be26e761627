// Package client holds the HTTP clients for the external Ledger, Reward
// Allocation and Campaign-Mirror services. Error classification for the
// whole saga happens here, next to the calls, so callers only branch on
// ErrorKind and never inspect raw status codes.
package client

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// KindTransient covers network faults and 5xx responses; the task-level
	// scheduler retries these with backoff.
	KindTransient ErrorKind = iota
	// KindTerminal covers 4xx responses that will not succeed on retry.
	KindTerminal
	// KindIntegrity marks a response that contradicts the request (for
	// example a mismatched campaign slug). Never retried.
	KindIntegrity
	// KindAccountHolderDeleted is the designated upstream-lifecycle
	// response: terminal, but not a failure of this service.
	KindAccountHolderDeleted
)

// accountDeletedCode is the error code the Ledger service returns once an
// account holder has been removed upstream.
const accountDeletedCode = "NO_ACCOUNT_FOUND"

// APIError is a classified failure from an external service.
type APIError struct {
	Service string
	Status  int
	Code    string
	Kind    ErrorKind
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d code %q: %s", e.Service, e.Status, e.Code, e.Message)
}

// Kind extracts the classification from err. Errors that are not APIErrors
// (transport faults surviving the local retry) are treated as transient.
func Kind(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransient
}

func classifyStatus(service string, status int, code, message string) *APIError {
	kind := KindTerminal
	switch {
	case status >= 500:
		kind = KindTransient
	case code == accountDeletedCode:
		kind = KindAccountHolderDeleted
	}
	return &APIError{Service: service, Status: status, Code: code, Kind: kind, Message: message}
}
