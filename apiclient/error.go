package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/rawrFetch/breaker"
)

var (
	// ErrInvalidBaseURL is returned by [New] for a base URL that is not an
	// absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("apiclient: invalid base URL")

	// ErrResponseTooLarge is returned for a successful response whose body
	// exceeds the configured maximum size.
	ErrResponseTooLarge = errors.New("apiclient: response too large")

	// ErrCircuitOpen is returned when the circuit breaker rejects a request
	// without sending it.
	ErrCircuitOpen = breaker.ErrOpen
)

// Error is a non-2xx API response. Code is derived from StatusCode so that
// the retry package can classify it.
type Error struct {
	StatusCode int
	Code       codes.Code
	APICode    string // machine-readable code from the error body, if any
	Message    string

	retryAfter time.Duration
}

func (e *Error) Error() string {
	if e.APICode != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.APICode, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// GRPCStatus lets status.FromError see the mapped code.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

// RetryAfter returns the server-requested delay from the Retry-After header,
// or zero.
func (e *Error) RetryAfter() time.Duration { return e.retryAfter }

// errorBody is the error envelope the workspace API sends:
// {"success":false,"error":{"code":"NOT_FOUND","message":"..."}}.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newError builds an *Error from a failed response and its body.
func newError(resp *http.Response, body []byte) *Error {
	e := &Error{
		StatusCode: resp.StatusCode,
		Code:       CodeForStatus(resp.StatusCode),
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		e.APICode = eb.Error.Code
		e.Message = eb.Error.Message
		return e
	}

	if msg := strings.TrimSpace(string(body)); msg != "" && len(msg) <= 512 {
		e.Message = msg
	} else {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// CodeForStatus maps an HTTP status code to the closest gRPC code.
func CodeForStatus(statusCode int) codes.Code {
	switch statusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.Aborted
	case http.StatusPreconditionFailed:
		return codes.FailedPrecondition
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusNotImplemented:
		return codes.Unimplemented
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return codes.Unavailable
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	}
	switch {
	case statusCode >= 200 && statusCode < 300:
		return codes.OK
	case statusCode >= 500:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// parseRetryAfter understands both the delta-seconds and the HTTP-date form.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// IsServerFailure reports whether err indicates the API itself is unhealthy:
// transport failures, timeouts, throttling and 5xx responses. Client errors
// such as 404 or 401 return false. It suits breaker.Config.IsFailure.
func IsServerFailure(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return !errors.Is(err, breaker.ErrOpen)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Internal, codes.Unknown:
		return true
	default:
		return false
	}
}
