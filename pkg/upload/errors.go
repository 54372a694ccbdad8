package upload

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies upload errors so callers can decide between rejecting,
// retrying and surfacing a message.
type Kind int

// Error kinds
const (
	KindUnknown Kind = iota
	// KindInvalidArgument bad input shape or size
	KindInvalidArgument
	// KindForbidden session ownership mismatch
	KindForbidden
	// KindNotFound unknown session
	KindNotFound
	// KindExpired session TTL passed
	KindExpired
	// KindInvalidState operation not valid for the current session status
	KindInvalidState
	// KindCorrupt chunk sequence has gaps or duplicates at merge time
	KindCorrupt
	// KindTransientIO storage or network hiccup, safe to retry
	KindTransientIO
	// KindPermanentReject oversized or blocked payload, do not retry
	KindPermanentReject
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindExpired:
		return "expired"
	case KindInvalidState:
		return "invalid state"
	case KindCorrupt:
		return "corrupt"
	case KindTransientIO:
		return "transient io"
	case KindPermanentReject:
		return "permanent reject"
	}
	return "unknown"
}

// Error an upload error with a kind and optional cause.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap the cause
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError new error of the given kind
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wrap a cause with a kind
func WrapError(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf the kind of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
