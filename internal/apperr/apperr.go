// Package apperr defines the error kinds shared by the attendance services.
// Every expected business outcome is an *Error carrying a Kind so the HTTP
// layer can map it without string matching; anything else is infrastructure.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidRequest
	KindUnreadableImage
	KindNoFaceDetected
	KindMultipleFacesDetected
	KindInvalidEmbedding
	KindSessionAlreadyActive
	KindSessionNotActive
	KindAlreadyJoined
	KindNotEnrolled
	KindFaceMismatch
	KindUnauthorized
	KindUnauthenticated
	KindNotFound
	KindConflict
	KindExtractionFailed
)

var kindNames = map[Kind]string{
	KindInternal:              "internal",
	KindInvalidRequest:        "invalid_request",
	KindUnreadableImage:       "unreadable_image",
	KindNoFaceDetected:        "no_face_detected",
	KindMultipleFacesDetected: "multiple_faces_detected",
	KindInvalidEmbedding:      "invalid_embedding",
	KindSessionAlreadyActive:  "session_already_active",
	KindSessionNotActive:      "session_not_active",
	KindAlreadyJoined:         "already_joined",
	KindNotEnrolled:           "not_enrolled",
	KindFaceMismatch:          "face_mismatch",
	KindUnauthorized:          "unauthorized",
	KindUnauthenticated:       "unauthenticated",
	KindNotFound:              "not_found",
	KindConflict:              "conflict",
	KindExtractionFailed:      "extraction_failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a domain error with a stable kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

// New returns a sentinel-style domain error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func (e *Error) Error() string { return e.Message }

// Errorf builds a domain error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Shared sentinels used across packages.
var (
	ErrUnauthorized    = New(KindUnauthorized, "unauthorized")
	ErrUnauthenticated = New(KindUnauthenticated, "authentication required")
)
