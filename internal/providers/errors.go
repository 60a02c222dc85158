package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2/apierror"
	openai "github.com/openai/openai-go/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
)

// ErrNoChoices is returned when a provider answers without any completion.
var ErrNoChoices = errors.New("no choices in response")

// APIError is a non-success status returned by a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s error (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsAuth reports whether the provider rejected the credentials.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// RateLimitError is returned on HTTP 429.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError unwraps err to a RateLimitError.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// IsAuthError reports whether err is an authentication or authorization
// failure. Retrying those never helps.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsAuth()
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func mapOpenAIError(provider string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if apiErr.Response != nil {
			retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return &RateLimitError{
			Message:    fmt.Sprintf("%s rate limited: %s", provider, apiErr.Message),
			RetryAfter: retryAfter,
			StatusCode: apiErr.StatusCode,
		}
	}
	return &APIError{
		Provider:   provider,
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Message,
	}
}

func mapGoogleError(provider string, err error) error {
	status, message, retryAfter := 0, "", time.Duration(0)

	var gErr *googleapi.Error
	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &gErr):
		status, message = gErr.Code, gErr.Message
		retryAfter = parseRetryAfter(gErr.Header.Get("Retry-After"))
	case errors.As(err, &apiErr):
		status = apiErr.HTTPCode()
		if status <= 0 && apiErr.GRPCStatus() != nil {
			status = httpStatusFromCode(apiErr.GRPCStatus().Code())
		}
		message = apiErr.Reason()
		if message == "" && apiErr.GRPCStatus() != nil {
			message = apiErr.GRPCStatus().Message()
		}
	default:
		return err
	}

	if status == http.StatusTooManyRequests {
		return &RateLimitError{
			Message:    fmt.Sprintf("%s rate limited: %s", provider, message),
			RetryAfter: retryAfter,
			StatusCode: status,
		}
	}
	return &APIError{
		Provider:   provider,
		StatusCode: status,
		Message:    message,
	}
}

func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
