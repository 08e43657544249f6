// Package errors provides the standardized error taxonomy shared by the
// mapfile engine, the CLI and the job workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Temporal / layer errors
const (
	ErrCodeMalformedInterval  ErrorCode = "MALFORMED_INTERVAL"
	ErrCodeMissingTimeExtent  ErrorCode = "MISSING_TIME_EXTENT"
	ErrCodeConfigurationError ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeLayerNotFound      ErrorCode = "LAYER_NOT_FOUND"
	ErrCodePatchNoOp          ErrorCode = "PATCH_NO_OP"
)

// Infrastructure errors
const (
	ErrCodeStoreUnavailable      ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeStoreOperationFailed  ErrorCode = "STORE_OPERATION_FAILED"
	ErrCodeTemplateLoadFailed    ErrorCode = "TEMPLATE_LOAD_FAILED"
	ErrCodeArtifactWriteFailed   ErrorCode = "ARTIFACT_WRITE_FAILED"
	ErrCodeMetadataFetchFailed   ErrorCode = "METADATA_FETCH_FAILED"
	ErrCodeGenerationIncomplete  ErrorCode = "GENERATION_INCOMPLETE"
	ErrCodeExternalService       ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout               ErrorCode = "TIMEOUT"
	ErrCodeResourceNotFound      ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeBusinessRule          ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeAuthentication        ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidJobVariables   ErrorCode = "INVALID_JOB_VARIABLES"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another StandardError by code so that sentinel values built
// with the constructors below work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata attaches a key to the error metadata and returns the error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewMalformedIntervalError reports an ISO-8601 recurring interval that cannot be decoded.
func NewMalformedIntervalError(value, reason string) *StandardError {
	return newError(ErrCodeMalformedInterval, "Malformed recurring interval",
		fmt.Sprintf("interval: %q, reason: %s", value, reason), false, nil)
}

// NewMissingTimeExtentError reports a layer without ingested temporal coverage.
func NewMissingTimeExtentError(layer string) *StandardError {
	return newError(ErrCodeMissingTimeExtent, "No time extent available for layer",
		fmt.Sprintf("layer: %s", layer), false, nil).WithMetadata("layer", layer)
}

// NewConfigurationError reports a layer whose configuration misses mandatory fields.
func NewConfigurationError(layer, details string) *StandardError {
	return newError(ErrCodeConfigurationError, "Invalid layer configuration",
		fmt.Sprintf("layer: %s, %s", layer, details), false, nil).WithMetadata("layer", layer)
}

// NewLayerNotFoundError reports a layer name absent from the layer catalogue.
func NewLayerNotFoundError(layer string) *StandardError {
	return newError(ErrCodeLayerNotFound, "Layer not found in configuration",
		fmt.Sprintf("layer: %s", layer), false, nil).WithMetadata("layer", layer)
}

// NewPatchNoOpWarning is not returned as a failure; it labels a fragment
// that carried nothing to patch.
func NewPatchNoOpWarning(layer string) *StandardError {
	return newError(ErrCodePatchNoOp, "Fragment has no available intervals",
		fmt.Sprintf("layer: %s", layer), false, nil)
}

// NewStoreUnavailableError creates a retryable store connection error.
func NewStoreUnavailableError(err error) *StandardError {
	return newError(ErrCodeStoreUnavailable, "Key-value store unavailable", err.Error(), true, err)
}

// NewStoreOperationFailedError creates a retryable store command error.
func NewStoreOperationFailedError(op, key string, err error) *StandardError {
	return newError(ErrCodeStoreOperationFailed, "Key-value store operation failed",
		fmt.Sprintf("op: %s, key: %s, error: %s", op, key, err.Error()), true, err)
}

// NewTemplateLoadFailedError reports an unreadable base template, symbol catalogue or style.
func NewTemplateLoadFailedError(path string, err error) *StandardError {
	return newError(ErrCodeTemplateLoadFailed, "Failed to load template resource",
		fmt.Sprintf("path: %s, error: %s", path, err.Error()), false, err)
}

// NewArtifactWriteFailedError reports a mapfile that could not be written to its sink.
func NewArtifactWriteFailedError(target string, err error) *StandardError {
	return newError(ErrCodeArtifactWriteFailed, "Failed to write mapfile artifact",
		fmt.Sprintf("target: %s, error: %s", target, err.Error()), true, err)
}

// NewMetadataFetchFailedError reports a discovery metadata download failure.
func NewMetadataFetchFailedError(url string, err error) *StandardError {
	return newError(ErrCodeMetadataFetchFailed, "Failed to fetch discovery metadata",
		fmt.Sprintf("url: %s, error: %s", url, err.Error()), true, err)
}

// NewGenerationIncompleteError summarizes a run where some layers were skipped.
func NewGenerationIncompleteError(failed []string) *StandardError {
	return newError(ErrCodeGenerationIncomplete, "Mapfile generation skipped layers",
		fmt.Sprintf("layers: %s", strings.Join(failed, ",")), true, nil).
		WithMetadata("failedLayers", failed)
}

// NewInvalidJobVariablesError reports job variables that do not decode.
func NewInvalidJobVariablesError(err error) *StandardError {
	return newError(ErrCodeInvalidJobVariables, "Invalid job variables", err.Error(), false, err)
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return newError(ErrCodeBusinessRule, message, details, false, nil)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("%s service error", service), err.Error(), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("%s timeout", service), err.Error(), true, err)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeResourceNotFound, fmt.Sprintf("%s resource not found", service), details, false, nil)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthentication, "Authentication failed", details, false, nil)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStoreUnavailable,
		ErrCodeStoreOperationFailed,
		ErrCodeArtifactWriteFailed,
		ErrCodeMetadataFetchFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeTimeout,
		ErrCodeGenerationIncomplete:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandard extracts a StandardError from an error chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Code == code
}

// Skippable reports whether a layer-level error leaves the rest of a
// generation run intact.
func Skippable(err error) bool {
	stdErr, ok := AsStandard(err)
	if !ok {
		return false
	}
	switch stdErr.Code {
	case ErrCodeMissingTimeExtent, ErrCodeConfigurationError, ErrCodeMalformedInterval:
		return true
	}
	return false
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "INTERVAL") || strings.Contains(codeStr, "TIME_EXTENT") || strings.Contains(codeStr, "PATCH"):
		return "TEMPORAL"
	case strings.Contains(codeStr, "CONFIGURATION") || strings.Contains(codeStr, "LAYER") || strings.Contains(codeStr, "TEMPLATE"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "STORE"):
		return "STORE"
	case strings.Contains(codeStr, "ARTIFACT") || strings.Contains(codeStr, "GENERATION"):
		return "OUTPUT"
	case strings.Contains(codeStr, "EXTERNAL") || strings.Contains(codeStr, "TIMEOUT") || strings.Contains(codeStr, "METADATA"):
		return "EXTERNAL"
	default:
		return "OTHER"
	}
}
