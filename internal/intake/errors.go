package intake

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/parisxmas/TenderDesk/internal/models"
)

// Kind is the machine-readable category of an intake failure or warning.
type Kind string

const (
	KindUnsupportedMediaType  Kind = "UnsupportedMediaType"
	KindFileTooLarge          Kind = "FileTooLarge"
	KindTooManyFiles          Kind = "TooManyFiles"
	KindRequestTooLarge       Kind = "RequestTooLarge"
	KindMalformedRequest      Kind = "MalformedRequest"
	KindCancelled             Kind = "Cancelled"
	KindStorageError          Kind = "StorageError"
	KindCoercionDegraded      Kind = "CoercionDegraded"
	KindHashComputationFailed Kind = "HashComputationFailed"
)

// StatusClientClosedRequest is the non-standard status logged when the
// client went away before the request was read.
const StatusClientClosedRequest = 499

// HTTPStatus maps a kind to the status an HTTP caller should answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case KindFileTooLarge, KindRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindTooManyFiles, KindMalformedRequest:
		return http.StatusBadRequest
	case KindCoercionDegraded:
		return http.StatusUnprocessableEntity
	case KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// Stage is a state of the per-request intake state machine.
type Stage string

const (
	StageReceiving   Stage = "receiving"
	StageValidating  Stage = "validating"
	StageStoring     Stage = "storing"
	StageNormalizing Stage = "normalizing"
	StageCorrelating Stage = "correlating"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Error is a hard intake failure. Stored holds files that were already
// persisted when the failure happened; they stay on disk and belong to the
// caller.
type Error struct {
	Kind    Kind
	Stage   Stage
	Message string
	Err     error
	Stored  []models.StoredFile
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of an intake error, or "" for other errors.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// Warning is a soft condition absorbed by the pipeline. Index is the file
// position for per-file warnings and -1 otherwise.
type Warning struct {
	Kind    Kind   `json:"kind"`
	Field   string `json:"field,omitempty"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

func fieldWarning(field, format string, args ...any) Warning {
	return Warning{Kind: KindCoercionDegraded, Field: field, Index: -1, Message: fmt.Sprintf(format, args...)}
}
