package feishu

import (
	"fmt"
	"time"
)

// AuthError reports a failed tenant-token exchange: the platform returned a
// non-zero status code or the token field was missing.
type AuthError struct {
	AppID string
	Code  int
	Msg   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("feishu auth failed for %s: %s (code: %d)", e.AppID, e.Msg, e.Code)
}

// APIError reports a platform-level failure: the transport call succeeded but
// the response carried a non-zero status code.
type APIError struct {
	Op   string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("feishu %s failed: %s (code: %d)", e.Op, e.Msg, e.Code)
}

// TimeoutError reports a request cancelled by the caller-specified deadline.
// Callers treat it like an APIError: logged, never fatal to the pipeline.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("feishu %s timed out after %s", e.Op, e.Timeout)
}
