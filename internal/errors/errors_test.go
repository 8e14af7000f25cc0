package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"source unavailable", ErrCodeSourceUnavailable, CategorySource, SeverityWarning, true},
		{"bulk write failed", ErrCodeBulkWriteFailed, CategoryEngine, SeverityWarning, true},
		{"alias unresolved", ErrCodeAliasUnresolved, CategoryEngine, SeverityFatal, false},
		{"schema apply failed", ErrCodeSchemaApplyFailed, CategoryEngine, SeverityFatal, false},
		{"malformed record", ErrCodeMalformedRecord, CategoryValidation, SeverityError, false},
		{"config invalid", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{"internal", ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestSyncError_ErrorFormat(t *testing.T) {
	err := MalformedRecord("record abc has no content", nil)
	assert.Equal(t, "[ERR_401_MALFORMED_RECORD] record abc has no content", err.Error())
}

func TestSyncError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := SourceUnavailable("store unreachable", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, goerrors.Unwrap(err))
}

func TestSyncError_IsMatchesByCode(t *testing.T) {
	err := AliasUnresolved("memories", nil)

	assert.True(t, goerrors.Is(err, New(ErrCodeAliasUnresolved, "", nil)))
	assert.False(t, goerrors.Is(err, New(ErrCodeSourceUnavailable, "", nil)))
}

func TestSyncError_WithDetail(t *testing.T) {
	err := BulkWriteFailed("batch rejected", nil).
		WithDetail("generation", "memories-20260101000000").
		WithDetail("batch_size", "500")

	assert.Equal(t, "memories-20260101000000", err.Details["generation"])
	assert.Equal(t, "500", err.Details["batch_size"])
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsRetryableAndIsFatal(t *testing.T) {
	assert.True(t, IsRetryable(SourceUnavailable("down", nil)))
	assert.False(t, IsRetryable(MalformedRecord("bad", nil)))
	assert.False(t, IsRetryable(goerrors.New("plain")))

	assert.True(t, IsFatal(AliasUnresolved("memories", nil)))
	assert.False(t, IsFatal(MalformedRecord("bad", nil)))
	assert.False(t, IsFatal(nil))
}

func TestGetCodeAndCategory(t *testing.T) {
	err := SchemaApplyFailed("mapping rejected", nil)
	assert.Equal(t, ErrCodeSchemaApplyFailed, GetCode(err))
	assert.Equal(t, CategoryEngine, GetCategory(err))

	assert.Equal(t, "", GetCode(goerrors.New("plain")))
}
