// Package apperr defines the error taxonomy shared by services and the HTTP layer.
// Services return *Error values; handlers translate them to a status code exactly once.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuth
	KindForbidden
	KindNotFound
	KindExpired
	KindEncryptedDocument
	KindCorruptDocument
	KindProcessing
	KindDelivery
	KindRateLimited
)

// Machine readable discriminants sent to clients as errorType.
const (
	TypeDuplicateFile      = "duplicate_file"
	TypeAdminRequired      = "admin_required"
	TypeEncryptedPDF       = "encrypted_pdf"
	TypeCorruptedPDF       = "corrupted_pdf"
	TypePDFProcessingError = "pdf_processing_error"
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindEncryptedDocument:
		return "encrypted_document"
	case KindCorruptDocument:
		return "corrupt_document"
	case KindProcessing:
		return "processing"
	case KindDelivery:
		return "delivery"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Status is the default HTTP status for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindExpired, KindEncryptedDocument, KindCorruptDocument, KindProcessing:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	// Type is the optional errorType discriminant.
	Type    string
	Details map[string]any
	// StatusOverride replaces Kind.Status() when non-zero.
	StatusOverride int
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int {
	if e.StatusOverride != 0 {
		return e.StatusOverride
	}
	return e.Kind.Status()
}

// WithType sets the errorType discriminant.
func (e *Error) WithType(t string) *Error {
	e.Type = t
	return e
}

// WithDetail attaches a key that is echoed to the client.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *Error) WithStatus(status int) *Error {
	e.StatusOverride = status
	return e
}

func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Validation(msg string) *Error { return New(KindValidation, msg) }
func Conflict(msg string) *Error   { return New(KindConflict, msg) }
func Auth(msg string) *Error       { return New(KindAuth, msg) }
func Forbidden(msg string) *Error  { return New(KindForbidden, msg) }
func NotFound(msg string) *Error   { return New(KindNotFound, msg) }
func Expired(msg string) *Error    { return New(KindExpired, msg) }
func Delivery(msg string) *Error   { return New(KindDelivery, msg) }
func Internal(msg string) *Error   { return New(KindInternal, msg) }

func RateLimited(msg string) *Error { return New(KindRateLimited, msg) }

func EncryptedDocument(msg string) *Error {
	return New(KindEncryptedDocument, msg).WithType(TypeEncryptedPDF)
}

func CorruptDocument(msg string) *Error {
	return New(KindCorruptDocument, msg).WithType(TypeCorruptedPDF)
}

func Processing(msg string) *Error {
	return New(KindProcessing, msg).WithType(TypePDFProcessingError)
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
