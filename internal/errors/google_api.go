// Package errors turns Drive API and transport failures into tool error codes.
package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"google.golang.org/api/googleapi"
)

type classification struct {
	code      string
	retryable bool
	action    string
}

// reasons refine the HTTP status using the first matching Drive error reason
var reasons = map[string]classification{
	"invalidSharingRequest":      {code: utils.ErrCodeSharingRestricted, action: "the recipient cannot be shared with from this account"},
	"teamDriveFileLimitExceeded": {code: utils.ErrCodeQuotaExceeded},
	"storageQuotaExceeded":       {code: utils.ErrCodeQuotaExceeded, action: "free up space in Google Drive or upgrade storage"},
	"sharingRateLimitExceeded":   {code: utils.ErrCodeRateLimited, retryable: true},
	"userRateLimitExceeded":      {code: utils.ErrCodeRateLimited, retryable: true},
	"rateLimitExceeded":          {code: utils.ErrCodeRateLimited, retryable: true},
	"dailyLimitExceeded":         {code: utils.ErrCodeRateLimited, action: "quota will reset in 24 hours"},
	"domainPolicy":               {code: utils.ErrCodePolicyViolation, action: "contact domain administrator"},
	"insufficientScopes":         {code: utils.ErrCodeScopeInsufficient, action: "run 'drivesync auth login' to grant the drive scope"},
	"insufficientFilePermissions": {
		code:   utils.ErrCodePermissionDenied,
		action: "share the destination folder with this account as an editor",
	},
}

func classifyStatus(status int) classification {
	switch {
	case status == http.StatusBadRequest, status == http.StatusConflict:
		return classification{code: utils.ErrCodeInvalidArgument}
	case status == http.StatusUnauthorized:
		return classification{code: utils.ErrCodeAuthExpired, action: "run 'drivesync auth login' to re-authenticate"}
	case status == http.StatusForbidden:
		return classification{code: utils.ErrCodePermissionDenied}
	case status == http.StatusNotFound:
		return classification{code: utils.ErrCodeFileNotFound, action: "verify the folder or file still exists and is shared with this account"}
	case status == http.StatusTooManyRequests:
		return classification{code: utils.ErrCodeRateLimited, retryable: true}
	case status >= 500 && status <= 504:
		return classification{code: utils.ErrCodeNetworkError, retryable: true}
	default:
		return classification{code: utils.ErrCodeUnknown, retryable: status >= 500}
	}
}

// ClassifyGoogleAPIError maps a transport or googleapi error onto a tool error
// code carrying the request trace. The original error stays in the chain.
func ClassifyGoogleAPIError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	if err == nil {
		return nil
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if reqCtx == nil {
		reqCtx = &types.RequestContext{}
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled, "operation cancelled").
			WithContext("traceId", reqCtx.TraceID).
			Build(), err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeTimeout, err.Error()).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			Build(), err)
	}

	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		logger.Error("Non-API error",
			logging.F("error", err.Error()),
			logging.F("traceId", reqCtx.TraceID),
		)
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNetworkError, err.Error()).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build(), err)
	}

	c := classifyStatus(apiErr.Code)
	var reason string
	for _, item := range apiErr.Errors {
		if r, ok := reasons[item.Reason]; ok {
			reason = item.Reason
			if r.action == "" {
				r.action = c.action
			}
			c = r
			break
		}
	}
	if c.code == utils.ErrCodeRateLimited && c.action == "" && c.retryable {
		c.action = "raise maxRetries to retry with backoff"
	}

	logger.Error("API error classified",
		logging.F("httpStatus", apiErr.Code),
		logging.F("errorCode", c.code),
		logging.F("retryable", c.retryable),
		logging.F("reason", reason),
		logging.F("message", apiErr.Message),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	builder := utils.NewCLIError(c.code, apiErr.Message).
		WithHTTPStatus(apiErr.Code).
		WithRetryable(c.retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)
	if reason != "" {
		builder.WithDriveReason(reason)
	} else if len(apiErr.Errors) > 0 {
		builder.WithDriveReason(apiErr.Errors[0].Reason)
	}
	if c.action != "" {
		builder.WithContext("suggestedAction", c.action)
	}
	if c.code == utils.ErrCodeFileNotFound && len(reqCtx.InvolvedFileIDs) > 0 {
		builder.WithContext("fileIds", reqCtx.InvolvedFileIDs)
	}
	if apiErr.Code >= 500 && apiErr.Code <= 504 {
		builder.WithContext("serverError", true)
	}

	return utils.WrapAppError(builder.Build(), err)
}
