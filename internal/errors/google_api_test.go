package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestClassifyGoogleAPIError_StatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       *googleapi.Error
		wantCode  string
		retryable bool
	}{
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, utils.ErrCodeAuthExpired, false},
		{"not found", &googleapi.Error{Code: http.StatusNotFound}, utils.ErrCodeFileNotFound, false},
		{"too many requests", &googleapi.Error{Code: http.StatusTooManyRequests}, utils.ErrCodeRateLimited, true},
		{"server error", &googleapi.Error{Code: http.StatusBadGateway}, utils.ErrCodeNetworkError, true},
		{
			"quota",
			&googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "storageQuotaExceeded"}}},
			utils.ErrCodeQuotaExceeded, false,
		},
		{
			"user rate limit",
			&googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}},
			utils.ErrCodeRateLimited, true,
		},
		{
			"sharing restricted",
			&googleapi.Error{Code: http.StatusBadRequest, Errors: []googleapi.ErrorItem{{Reason: "invalidSharingRequest"}}},
			utils.ErrCodeSharingRestricted, false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqCtx := &types.RequestContext{TraceID: "trace-1", RequestType: types.RequestTypeMutation}
			err := ClassifyGoogleAPIError("drive", tt.err, reqCtx, nil)

			cliErr := utils.AsCLIError(err)
			assert.Equal(t, tt.wantCode, cliErr.Code)
			assert.Equal(t, tt.retryable, cliErr.Retryable)
			assert.Equal(t, tt.err.Code, cliErr.HTTPStatus)
			assert.Equal(t, "trace-1", cliErr.Context["traceId"])
		})
	}
}

func TestClassifyGoogleAPIError_KeepsCause(t *testing.T) {
	apiErr := &googleapi.Error{Code: http.StatusNotFound, Message: "File not found: abc"}
	err := ClassifyGoogleAPIError("drive", fmt.Errorf("get: %w", apiErr), nil, nil)

	var got *googleapi.Error
	require.ErrorAs(t, err, &got)
	assert.Equal(t, http.StatusNotFound, got.Code)
}

func TestClassifyGoogleAPIError_Cancelled(t *testing.T) {
	err := ClassifyGoogleAPIError("drive", context.Canceled, nil, nil)
	assert.True(t, utils.IsCancelled(err))
	assert.Equal(t, utils.ErrCodeCancelled, utils.ErrorCode(err))
}

func TestClassifyGoogleAPIError_NonAPIError(t *testing.T) {
	err := ClassifyGoogleAPIError("drive", fmt.Errorf("connection reset"), nil, nil)
	cliErr := utils.AsCLIError(err)
	assert.Equal(t, utils.ErrCodeNetworkError, cliErr.Code)
	assert.True(t, cliErr.Retryable)
}

func TestClassifyGoogleAPIError_Nil(t *testing.T) {
	assert.NoError(t, ClassifyGoogleAPIError("drive", nil, nil, nil))
}

func TestClassifyGoogleAPIError_ContextHints(t *testing.T) {
	reqCtx := &types.RequestContext{TraceID: "t", InvolvedFileIDs: []string{"folder-1"}}
	err := ClassifyGoogleAPIError("drive", &googleapi.Error{Code: http.StatusNotFound}, reqCtx, nil)

	cliErr := utils.AsCLIError(err)
	assert.Equal(t, []string{"folder-1"}, cliErr.Context["fileIds"])
	assert.Contains(t, cliErr.Context["suggestedAction"], "still exists")

	err = ClassifyGoogleAPIError("drive", &googleapi.Error{
		Code:   http.StatusForbidden,
		Errors: []googleapi.ErrorItem{{Reason: "somethingNew"}, {Reason: "insufficientFilePermissions"}},
	}, nil, nil)
	cliErr = utils.AsCLIError(err)
	assert.Equal(t, utils.ErrCodePermissionDenied, cliErr.Code)
	assert.Equal(t, "insufficientFilePermissions", cliErr.DriveReason)
	assert.Contains(t, cliErr.Context["suggestedAction"], "editor")
}

func TestClassifyGoogleAPIError_Deadline(t *testing.T) {
	err := ClassifyGoogleAPIError("drive", fmt.Errorf("list: %w", context.DeadlineExceeded), nil, nil)
	cliErr := utils.AsCLIError(err)
	assert.Equal(t, utils.ErrCodeTimeout, cliErr.Code)
	assert.True(t, cliErr.Retryable)
	assert.False(t, utils.IsCancelled(err))
}
