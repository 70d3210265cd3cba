package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
)

// Category labels a user-visible failure. The console prints it in front of
// the human-readable message.
type Category string

const (
	CategoryToolValidation Category = "Tool Validation Error"
	CategoryToolExecution  Category = "Tool Execution Error"
	CategoryLLM            Category = "LLM Communication Error"
	CategoryPersona        Category = "Persona Error"
	CategoryCommand        Category = "Command Error"
	CategoryConfig         Category = "Configuration Error"
	CategoryInterrupt      Category = "Interrupted"
	CategoryInternal       Category = "Internal Error"
)

// Error is a categorized failure. Message is what the operator sees; Err keeps
// the underlying cause for logging and errors.Is/As.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Categorize builds a categorized error around cause. cause may be nil.
func Categorize(category Category, cause error, format string, a ...interface{}) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, a...),
		Err:      cause,
	}
}

// CategoryOf returns the category of the first *Error in err's chain, or
// CategoryInternal when there is none.
func CategoryOf(err error) Category {
	var ce *Error
	if stderrors.As(err, &ce) {
		return ce.Category
	}
	return CategoryInternal
}

// MessageOf returns the operator-facing message of err: the message of the
// first *Error followed by its cause. Source locations added by New and Wrapf
// are removed.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var ce *Error
	if !stderrors.As(err, &ce) {
		return stripLocations(err.Error())
	}
	if ce.Err == nil {
		return ce.Message
	}
	cause := MessageOf(ce.Err)
	if cause == "" || cause == ce.Message {
		return ce.Message
	}
	return ce.Message + ": " + cause
}

var location = regexp.MustCompile(`\[[^\[\]\s]+\.go:\d+\] `)

func stripLocations(s string) string {
	return location.ReplaceAllString(s, "")
}

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

// Is and As forward to the standard library so callers only import one
// errors package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Sentinel creates a plain comparable error for package-level sentinels.
func Sentinel(text string) error { return stderrors.New(text) }

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
