package driveapi

import "fmt"

// APIError is the shape every non-2xx drive response decodes into,
// modeled on the teacher SDK's common error result (sdk_errors.go, sdk.go's
// SetCommonErrorResult).
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("driveapi: %s (%s): %s", e.Code, httpStatusText(e.Status), e.Message)
	}
	return fmt.Sprintf("driveapi: %s: %s", httpStatusText(e.Status), e.Message)
}

// well-known machine-readable codes the executor branches on.
const (
	CodeNotFound      = "not_found"
	CodeAlreadyExists = "already_exists"
	CodeQuotaExceeded = "quota_exceeded"
	CodeInvalidName   = "invalid_name"
	CodeUploadStale   = "upload_not_terminated"
	CodeRateLimited   = "rate_limited"
	CodeUnauthorized  = "unauthorized"
)

func httpStatusText(code int) string {
	if code == 0 {
		return "no response"
	}
	return fmt.Sprintf("http %d", code)
}
