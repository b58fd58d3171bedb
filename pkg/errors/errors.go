// Package errors provides the error taxonomy shared by every churnrank package.
//
// Each constructor attaches a stack trace through cockroachdb/errors so that a
// failure deep inside a seed loop can still be traced when it surfaces at the
// CLI. Callers classify failures with As against the exported struct types.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ConfigurationError reports an invalid or inconsistent configuration record.
// It is always raised before any dataset I/O or training begins.
type ConfigurationError struct {
	Field  string
	Reason string
	Value  interface{}
}

func (e *ConfigurationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("churnrank: configuration: %s: %s (got: %v)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("churnrank: configuration: %s: %s", e.Field, e.Reason)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigurationError")
}

// NewConfigurationError creates a ConfigurationError with a stack trace.
func NewConfigurationError(field, reason string, value interface{}) error {
	return errors.WithStack(&ConfigurationError{Field: field, Reason: reason, Value: value})
}

// DataError reports an unusable input: unsupported format, a malformed cell, or
// an outcome label outside the recognised categories.
type DataError struct {
	Source string
	Line   int // 1-based, 0 when not tied to a line
	Reason string
}

func (e *DataError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("churnrank: data: %s:%d: %s", e.Source, e.Line, e.Reason)
	}
	return fmt.Sprintf("churnrank: data: %s: %s", e.Source, e.Reason)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *DataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("source", e.Source).
		Int("line", e.Line).
		Str("reason", e.Reason).
		Str("type", "DataError")
}

// NewDataError creates a DataError with a stack trace.
func NewDataError(source, reason string) error {
	return errors.WithStack(&DataError{Source: source, Reason: reason})
}

// NewDataErrorAt creates a DataError pinned to a line of the source.
func NewDataErrorAt(source string, line int, reason string) error {
	return errors.WithStack(&DataError{Source: source, Line: line, Reason: reason})
}

// AggregationError reports a score merge that cannot be performed, such as an
// empty column set or a row missing from one of the joined columns.
type AggregationError struct {
	Op     string
	Reason string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("churnrank: %s: %s", e.Op, e.Reason)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *AggregationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Str("type", "AggregationError")
}

// NewAggregationError creates an AggregationError with a stack trace.
func NewAggregationError(op, reason string) error {
	return errors.WithStack(&AggregationError{Op: op, Reason: reason})
}

// TrainingError wraps a failure of the boosted-tree fit for one model and seed.
type TrainingError struct {
	Model string
	Seed  int
	Err   error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("churnrank: training %s (seed %d): %v", e.Model, e.Seed, e.Err)
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *TrainingError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model", e.Model).
		Int("seed", e.Seed).
		AnErr("cause", e.Err).
		Str("type", "TrainingError")
}

// NewTrainingError creates a TrainingError with a stack trace.
func NewTrainingError(model string, seed int, err error) error {
	return errors.WithStack(&TrainingError{Model: model, Seed: seed, Err: err})
}

// NotFittedError is returned when a model is used before Fit.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("churnrank: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// NewNotFittedError creates a NotFittedError with a stack trace.
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError reports a shape mismatch between two matrices or vectors.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("churnrank: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// NewDimensionError creates a DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValueError reports an argument whose value is out of its valid domain.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("churnrank: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace.
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap annotates err with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf annotates err with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates an error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack attaches a stack trace to err.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// Stacktrace returns the first safe detail recorded by cockroachdb/errors,
// which holds the formatted stack of the innermost WithStack call.
func Stacktrace(err error) string {
	details := errors.GetSafeDetails(err).SafeDetails
	if len(details) > 0 {
		return details[0]
	}
	return ""
}

var (
	// ErrEmptyData is returned when an operation receives no rows.
	ErrEmptyData = New("empty data")
)
