package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeAgent represents pipeline/model errors
	ErrorTypeAgent ErrorType = "agent"
	// ErrorTypeValidation represents untrusted model output that failed parsing or schema checks
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeMemory represents vector index / metadata store errors
	ErrorTypeMemory ErrorType = "memory"
	// ErrorTypePersona represents guild configuration lookup errors
	ErrorTypePersona ErrorType = "persona"
	// ErrorTypeExecution represents task dispatch errors
	ErrorTypeExecution ErrorType = "execution"
	// ErrorTypeAnalysis represents local analysis service errors
	ErrorTypeAnalysis ErrorType = "analysis"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Category returns the error category; promoted to every typed error embedding *BaseError
func (e *BaseError) Category() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Validation Errors

// ParseError is returned when model output is neither JSON nor contains a fenced JSON block
type ParseError struct {
	*BaseError
	Raw string
}

func NewParseError(raw string, err error) *ParseError {
	return &ParseError{
		BaseError: NewBaseError(ErrorTypeValidation, "model output is not valid JSON", err),
		Raw:       raw,
	}
}

// SchemaError is returned when parsed model output violates the response schema.
// Violations holds the offending field paths.
type SchemaError struct {
	*BaseError
	Violations []string
}

func NewSchemaError(violations []string) *SchemaError {
	return &SchemaError{
		BaseError:  NewBaseError(ErrorTypeValidation, fmt.Sprintf("schema violations: %s", strings.Join(violations, ", ")), nil),
		Violations: violations,
	}
}

// Agent Errors

// ErrModelUnavailable is returned when the remote model call fails at the transport/API level
type ErrModelUnavailable struct {
	*BaseError
	Model string
}

func NewModelUnavailable(model string, err error) *ErrModelUnavailable {
	return &ErrModelUnavailable{
		BaseError: NewBaseError(ErrorTypeAgent, fmt.Sprintf("model request failed: %s", model), err),
		Model:     model,
	}
}

// ErrModelNoResponse is returned when the model returns no choices
var ErrModelNoResponse = NewBaseError(ErrorTypeAgent, "no response from model", nil)

// Persona Errors

// ErrPersonaNotFound is returned when a guild has no configuration
type ErrPersonaNotFound struct {
	*BaseError
	GuildID string
}

func NewPersonaNotFound(guildID string) *ErrPersonaNotFound {
	return &ErrPersonaNotFound{
		BaseError: NewBaseError(ErrorTypePersona, fmt.Sprintf("no persona configured for guild: %s", guildID), nil),
		GuildID:   guildID,
	}
}

// Analysis Errors

// ErrLocalAnalysisUnavailable is returned when the analysis endpoint is unreachable or times out
type ErrLocalAnalysisUnavailable struct {
	*BaseError
}

func NewLocalAnalysisUnavailable(err error) *ErrLocalAnalysisUnavailable {
	return &ErrLocalAnalysisUnavailable{
		BaseError: NewBaseError(ErrorTypeAnalysis, "local analysis unavailable", err),
	}
}

// ErrEmbeddingFailure is returned when the embedding endpoint fails
type ErrEmbeddingFailure struct {
	*BaseError
}

func NewEmbeddingFailure(err error) *ErrEmbeddingFailure {
	return &ErrEmbeddingFailure{
		BaseError: NewBaseError(ErrorTypeAnalysis, "embedding generation failed", err),
	}
}

// Memory Errors

// ErrPartialConsistency is returned when one of the two memory stores fails mid-operation.
// The ids and per-store outcome are kept so the orphan can be reconciled later.
type ErrPartialConsistency struct {
	*BaseError
	Operation  string
	IDs        []string
	VectorOK   bool
	MetadataOK bool
}

func NewPartialConsistency(operation string, ids []string, vectorOK, metadataOK bool, err error) *ErrPartialConsistency {
	return &ErrPartialConsistency{
		BaseError:  NewBaseError(ErrorTypeMemory, fmt.Sprintf("%s left stores inconsistent", operation), err),
		Operation:  operation,
		IDs:        ids,
		VectorOK:   vectorOK,
		MetadataOK: metadataOK,
	}
}

// ErrMemoryStoreFailed is returned when a single store call fails without leaving an orphan
type ErrMemoryStoreFailed struct {
	*BaseError
	Store string
}

func NewMemoryStoreFailed(store, operation string, err error) *ErrMemoryStoreFailed {
	return &ErrMemoryStoreFailed{
		BaseError: NewBaseError(ErrorTypeMemory, fmt.Sprintf("%s %s failed", store, operation), err),
		Store:     store,
	}
}

// ErrMemoryOpFailed is returned when a single memory_ops entry cannot be applied
type ErrMemoryOpFailed struct {
	*BaseError
	Op  string
	Key string
}

func NewMemoryOpFailed(op, key, reason string, err error) *ErrMemoryOpFailed {
	return &ErrMemoryOpFailed{
		BaseError: NewBaseError(ErrorTypeMemory, fmt.Sprintf("memory op %s %q: %s", op, key, reason), err),
		Op:        op,
		Key:       key,
	}
}

// Execution Errors

// ErrTaskDispatchFailed is returned when the execution service is unreachable or answers non-2xx
type ErrTaskDispatchFailed struct {
	*BaseError
	GuildID    string
	StatusCode int
}

func NewTaskDispatchFailed(guildID string, statusCode int, err error) *ErrTaskDispatchFailed {
	return &ErrTaskDispatchFailed{
		BaseError:  NewBaseError(ErrorTypeExecution, fmt.Sprintf("task dispatch failed for guild %s (status %d)", guildID, statusCode), err),
		GuildID:    guildID,
		StatusCode: statusCode,
	}
}

// ErrGuildNotConfigured is returned by the execution side when a guild has no server config
type ErrGuildNotConfigured struct {
	*BaseError
	GuildID string
}

func NewGuildNotConfigured(guildID string) *ErrGuildNotConfigured {
	return &ErrGuildNotConfigured{
		BaseError: NewBaseError(ErrorTypeExecution, fmt.Sprintf("guild not configured: %s", guildID), nil),
		GuildID:   guildID,
	}
}

// Context Errors

// ErrContextTimeout is returned when context times out
type ErrContextTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewContextTimeout(operation string, timeout time.Duration) *ErrContextTimeout {
	return &ErrContextTimeout{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context timeout: %s (timeout: %v)", operation, timeout), nil),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// categorized is satisfied by BaseError and every type embedding it
type categorized interface {
	error
	Category() ErrorType
	Unwrap() error
}

// IsErrorType checks if an error, or anything it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		var typed categorized
		if !errors.As(err, &typed) {
			return false
		}
		if typed.Category() == errType {
			return true
		}
		err = typed.Unwrap()
	}
	return false
}

// TypeOf returns the category of the outermost categorized error in the chain, or "unknown"
func TypeOf(err error) string {
	var typed categorized
	if errors.As(err, &typed) {
		return string(typed.Category())
	}
	return "unknown"
}
