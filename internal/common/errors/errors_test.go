package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name    string
		err     *StandardError
		retries int
	}{
		{"store unavailable retries", NewStoreUnavailableError(fmt.Errorf("dial tcp: refused")), 3},
		{"incomplete run retries", NewGenerationIncompleteError([]string{"A", "B"}), 2},
		{"unknown layer is final", NewLayerNotFoundError("NOPE"), 0},
		{"bad variables are final", NewInvalidJobVariablesError(fmt.Errorf("bad json")), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, string(tt.err.Code), bpmn.Code)
			assert.Equal(t, tt.retries, bpmn.Retries)
			assert.Equal(t, string(tt.err.Code), bpmn.ErrorVariables["originalErrorCode"])

			vars := bpmn.ToErrorVariables()
			assert.Equal(t, bpmn.Code, vars["errorCode"])
		})
	}
}

func TestGenerationIncomplete_Metadata(t *testing.T) {
	bpmn := ConvertToBPMNError(NewGenerationIncompleteError([]string{"A", "B"}))
	assert.Equal(t, []string{"A", "B"}, bpmn.ErrorVariables["failedLayers"])
	assert.Contains(t, bpmn.Details, "A,B")
}

func TestHasCodeThroughWrapping(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := fmt.Errorf("publish: %w", NewStoreOperationFailedError("set", "k", cause))

	assert.True(t, HasCode(err, ErrCodeStoreOperationFailed))
	assert.False(t, HasCode(err, ErrCodeStoreUnavailable))
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, &StandardError{Code: ErrCodeStoreOperationFailed})
}

func TestSkippable(t *testing.T) {
	assert.True(t, Skippable(NewMissingTimeExtentError("A")))
	assert.True(t, Skippable(NewConfigurationError("A", "no styles")))
	assert.True(t, Skippable(fmt.Errorf("layer A: %w", NewMalformedIntervalError("x", "no period"))))
	assert.False(t, Skippable(NewStoreUnavailableError(stderrors.New("down"))))
	assert.False(t, Skippable(stderrors.New("plain")))
}

func TestNormalize(t *testing.T) {
	std := NewTimeoutError("zeebe", stderrors.New("deadline"))
	assert.Same(t, std, Normalize(fmt.Errorf("wrapped: %w", std)))

	plain := Normalize(stderrors.New("boom"))
	require.NotNil(t, plain)
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, "boom", plain.Details)
	assert.False(t, plain.Retryable)
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "TEMPORAL", GetErrorCategory(ErrCodeMalformedInterval))
	assert.Equal(t, "TEMPORAL", GetErrorCategory(ErrCodeMissingTimeExtent))
	assert.Equal(t, "CONFIGURATION", GetErrorCategory(ErrCodeLayerNotFound))
	assert.Equal(t, "STORE", GetErrorCategory(ErrCodeStoreUnavailable))
	assert.Equal(t, "OUTPUT", GetErrorCategory(ErrCodeArtifactWriteFailed))
	assert.Equal(t, "EXTERNAL", GetErrorCategory(ErrCodeMetadataFetchFailed))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}
