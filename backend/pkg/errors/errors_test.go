package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsErrorType_TypedErrors(t *testing.T) {
	parseErr := NewParseError("not json", errors.New("boom"))
	assert.True(t, IsErrorType(parseErr, ErrorTypeValidation))
	assert.False(t, IsErrorType(parseErr, ErrorTypeMemory))

	wrapped := fmt.Errorf("process: %w", NewPersonaNotFound("g1"))
	assert.True(t, IsErrorType(wrapped, ErrorTypePersona))
	assert.Equal(t, "persona", TypeOf(wrapped))
}

func TestIsErrorType_NestedCategories(t *testing.T) {
	inner := NewEmbeddingFailure(errors.New("connection refused"))
	outer := NewMemoryStoreFailed("vector", "upsert", inner)

	assert.True(t, IsErrorType(outer, ErrorTypeMemory))
	assert.True(t, IsErrorType(outer, ErrorTypeAnalysis))
	assert.False(t, IsErrorType(outer, ErrorTypeExecution))
}

func TestIsErrorType_PlainError(t *testing.T) {
	assert.False(t, IsErrorType(errors.New("plain"), ErrorTypeAgent))
	assert.False(t, IsErrorType(nil, ErrorTypeAgent))
	assert.Equal(t, "unknown", TypeOf(errors.New("plain")))
}

func TestSchemaError_CarriesViolations(t *testing.T) {
	err := NewSchemaError([]string{"should_respond", "analysis"})

	var schemaErr *SchemaError
	assert.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{"should_respond", "analysis"}, schemaErr.Violations)
	assert.Contains(t, err.Error(), "should_respond, analysis")
}
