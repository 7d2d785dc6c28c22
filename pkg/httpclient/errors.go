package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/izahid19/ekart/pkg/errors"
)

// DownstreamErrorResponse covers the two error bodies the storefront's
// collaborators send: the {"error":{code,message}} envelope and the flat
// {"success":false,"message"} shape of the cart API.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return mapDownstreamError(resp.StatusCode, "", fmt.Sprintf("unreadable body: %v", err), serviceName)
	}

	var downstream DownstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil {
		if downstream.Error != nil {
			return mapDownstreamError(resp.StatusCode, downstream.Error.Code, downstream.Error.Message, serviceName)
		}
		if downstream.Message != "" {
			return mapDownstreamError(resp.StatusCode, "", downstream.Message, serviceName)
		}
	}

	return mapDownstreamError(resp.StatusCode, "", string(bodyBytes), serviceName)
}

// mapDownstreamError translates a downstream status and error code into an
// AppError that preserves its semantics.
func mapDownstreamError(status int, code, message, serviceName string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusForbidden:
		// The cart API answers 403 for an expired or revoked token.
		return &apperrors.AppError{
			Code:    "FORBIDDEN",
			Message: qualifiedMsg,
			Status:  http.StatusForbidden,
			Err:     fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, apperrors.ErrForbidden),
		}
	case status == http.StatusTooManyRequests:
		return apperrors.RateLimited(qualifiedMsg)
	case status >= 500:
		err := apperrors.ServiceUnavailable(qualifiedMsg, nil)
		if code != "" {
			err.Code = code
		}
		return err
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
		}
	}
}

// TransportError classifies a failure returned by Do, where no usable
// response exists. When the caller's own context ended the error passes
// through; an open breaker, a 5xx answer, a transport timeout or a network
// failure become ServiceUnavailable.
func TransportError(ctx context.Context, err error, serviceName string) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return apperrors.ServiceUnavailable(fmt.Sprintf("%s returned status %d", serviceName, statusErr.StatusCode), err)
	case errors.Is(err, ErrCircuitOpen):
		return apperrors.ServiceUnavailable(fmt.Sprintf("%s circuit open", serviceName), err)
	default:
		return apperrors.ServiceUnavailable(fmt.Sprintf("%s unreachable", serviceName), err)
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
