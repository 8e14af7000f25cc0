// Package errors provides structured error handling for memsync.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Source store errors
//   - 3XX: Search engine errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategorySource indicates primary store read errors.
	CategorySource Category = "SOURCE"
	// CategoryEngine indicates search engine errors.
	CategoryEngine Category = "ENGINE"
	// CategoryValidation indicates record validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort the run.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the run can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Source errors (200-299)
	ErrCodeSourceUnavailable = "ERR_201_SOURCE_UNAVAILABLE"
	ErrCodeSourceQuery       = "ERR_202_SOURCE_QUERY"

	// Engine errors (300-399)
	ErrCodeBulkWriteFailed    = "ERR_301_BULK_WRITE_FAILED"
	ErrCodeAliasUnresolved    = "ERR_302_ALIAS_UNRESOLVED"
	ErrCodeSchemaApplyFailed  = "ERR_303_SCHEMA_APPLY_FAILED"
	ErrCodeGenerationNotFound = "ERR_304_GENERATION_NOT_FOUND"
	ErrCodeCatalogCorrupt     = "ERR_305_CATALOG_CORRUPT"

	// Validation errors (400-499)
	ErrCodeMalformedRecord = "ERR_401_MALFORMED_RECORD"
	ErrCodeInvalidInput    = "ERR_402_INVALID_INPUT"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategorySource
	case '3':
		return CategoryEngine
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeAliasUnresolved, ErrCodeSchemaApplyFailed, ErrCodeCatalogCorrupt:
		return SeverityFatal
	}

	// Retryable transport errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeSourceUnavailable, ErrCodeBulkWriteFailed:
		return true
	default:
		return false
	}
}
