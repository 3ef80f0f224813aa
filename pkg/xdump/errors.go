package xdump

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
)

// ErrNotFound reports a relation whose target does not exist. It is a
// resolution miss: the branch renders nothing.
var ErrNotFound = errors.New("xdump: not found")

// ErrCanceled is returned by a render interrupted through Session.Cancel.
var ErrCanceled = errors.New("xdump: render canceled")

// ErrDepthExceeded is returned when recursion passes Config.MaxRenderDepth.
var ErrDepthExceeded = errors.New("xdump: maximum render depth exceeded")

// ConfigurationError represents a template that references a missing field,
// class or rule, or omits a required attribute. Always fatal.
type ConfigurationError struct {
	Rule    string
	Class   string
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if e.Rule != "" {
		parts = append(parts, "rule "+e.Rule)
	}
	if e.Class != "" {
		parts = append(parts, "class "+e.Class)
	}
	if e.Field != "" {
		parts = append(parts, "field "+e.Field)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("configuration error (%s): %s", strings.Join(parts, ", "), e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(rule, class, field, message string) error {
	return &ConfigurationError{
		Rule:    rule,
		Class:   class,
		Field:   field,
		Message: message,
	}
}

// ResolutionError wraps a store failure raised while reading a property
// for emission.
type ResolutionError struct {
	Object store.Handle
	Class  string
	Field  string
	Cause  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolution error reading %s.%s of object %d: %v", e.Class, e.Field, e.Object, e.Cause)
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// NewResolutionError creates a new resolution error
func NewResolutionError(obj store.Handle, class, field string, cause error) error {
	return &ResolutionError{
		Object: obj,
		Class:  class,
		Field:  field,
		Cause:  cause,
	}
}

// CoverageError reports a change whose class has no rule anywhere in the
// template. It is fatal for that change only.
type CoverageError struct {
	Object store.Handle
	Class  string
	Field  string
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("coverage error: template has no rule for class %s (object %d, field %s)", e.Class, e.Object, e.Field)
}

// NewCoverageError creates a new coverage error
func NewCoverageError(obj store.Handle, class, field string) error {
	return &CoverageError{
		Object: obj,
		Class:  class,
		Field:  field,
	}
}

// TemplateError represents a template document that cannot be parsed
type TemplateError struct {
	Message string
	Path    string
	Cause   error
}

func (e *TemplateError) Error() string {
	msg := "template error"
	if e.Path != "" {
		msg += " in '" + e.Path + "'"
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// NewTemplateError creates a new template error
func NewTemplateError(message, path string, cause error) error {
	return &TemplateError{
		Message: message,
		Path:    path,
		Cause:   cause,
	}
}

// MultiError collects multiple errors
type MultiError struct {
	errors []error
}

// NewMultiError creates a new multi-error collector
func NewMultiError() *MultiError {
	return &MultiError{
		errors: make([]error, 0),
	}
}

// Add adds an error to the collection (ignores nil errors)
func (m *MultiError) Add(err error) {
	if err != nil {
		m.errors = append(m.errors, err)
	}
}

// Len returns the number of errors
func (m *MultiError) Len() int {
	return len(m.errors)
}

// Errors returns the collected errors.
func (m *MultiError) Errors() []error {
	return append([]error(nil), m.errors...)
}

// Err returns the multi-error or nil if empty
func (m *MultiError) Err() error {
	if len(m.errors) == 0 {
		return nil
	}
	return m
}

func (m *MultiError) Error() string {
	if len(m.errors) == 0 {
		return "no errors"
	}

	if len(m.errors) == 1 {
		return m.errors[0].Error()
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d errors occurred:", len(m.errors)))
	for i, err := range m.errors {
		parts = append(parts, fmt.Sprintf("  [%d] %v", i+1, err))
	}
	return strings.Join(parts, "\n")
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.errors
}

// ContextError adds context to an existing error
type ContextError struct {
	Operation string
	Context   map[string]interface{}
	Cause     error
}

func (e *ContextError) Error() string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var contextParts []string
	for _, k := range keys {
		contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
	}

	if len(contextParts) > 0 {
		return fmt.Sprintf("%s [%s]: %v", e.Operation, strings.Join(contextParts, ", "), e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Cause)
}

func (e *ContextError) Unwrap() error {
	return e.Cause
}

// WithContext wraps an error with additional context
func WithContext(err error, operation string, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ContextError{
		Operation: operation,
		Context:   context,
		Cause:     err,
	}
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsResolutionError checks if an error is a resolution error
func IsResolutionError(err error) bool {
	var target *ResolutionError
	return errors.As(err, &target)
}

// IsCoverageError checks if an error is a coverage error
func IsCoverageError(err error) bool {
	var target *CoverageError
	return errors.As(err, &target)
}

// IsTemplateError checks if an error is a template error
func IsTemplateError(err error) bool {
	var target *TemplateError
	return errors.As(err, &target)
}
