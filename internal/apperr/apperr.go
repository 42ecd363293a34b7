// Package apperr defines the failure categories a conversion run can end in.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the failure category
type Kind string

const (
	KindExtractionUnrecognizable Kind = "extraction_unrecognizable"
	KindExtractionSchema         Kind = "extraction_schema"
	KindExtractionService        Kind = "extraction_service"
	KindValidation               Kind = "validation"
	KindGeneration               Kind = "generation"
	KindTimeout                  Kind = "timeout"
	KindPersistence              Kind = "persistence"
)

// Codes refining KindExtractionService
const (
	CodeAuth        = "auth"
	CodeConfig      = "config"
	CodeQuota       = "quota"
	CodeTimeout     = "timeout"
	CodeUnavailable = "unavailable"
	CodeCircuitOpen = "circuit_open"
)

// Error is a categorized failure
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details []string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind around cause
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Service creates an extraction service error with a refining code
func Service(code, message string, cause error) *Error {
	return &Error{Kind: KindExtractionService, Code: code, Message: message, Cause: cause}
}

// As returns the first *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the category of err, or "" when err is not categorized
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// UserMessage converts an error into a short message that can be shown to the person
// who sent the photo. It never includes internal details such as stack traces.
func UserMessage(err error) string {
	e, ok := As(err)
	if !ok {
		return "Something went wrong while processing your bill. Please try again."
	}

	switch e.Kind {
	case KindTimeout:
		return "Processing is taking too long. Please try again with a clearer, smaller photo."
	case KindExtractionUnrecognizable:
		if e.Message != "" {
			return e.Message
		}
		return "Could not read the handwriting clearly. Please ensure good lighting and clear text."
	case KindExtractionSchema:
		return "Could not understand the document in this photo. Please retake it with the whole bill in frame."
	case KindExtractionService:
		switch e.Code {
		case CodeAuth, CodeConfig:
			return "Service configuration error. Please contact support."
		case CodeCircuitOpen:
			return "The reading service is temporarily unavailable. Please try again in a minute."
		default:
			return "Service temporarily busy. Please try again in a few seconds."
		}
	case KindValidation:
		if len(e.Details) > 0 {
			return fmt.Sprintf("Invoice validation failed: %s. Please check the bill details.", strings.Join(e.Details, ", "))
		}
		return "Invoice validation failed. Please check the bill details."
	case KindGeneration:
		return "Could not generate the invoice documents. Please try again."
	case KindPersistence:
		return "The invoice was created but could not be saved."
	}
	return "Something went wrong while processing your bill. Please try again."
}
