package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/siterank/pkg/errors"
)

// maxErrorBody caps how much of a failed response is read.
const maxErrorBody = 64 << 10

// errorEnvelope is the {"error":{"code","message"}} body peers answer with.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// returns an AppError of the matching kind. The peer's message is used when
// the body carries the error envelope, the raw body otherwise.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apperrors.Unavailable(service, fmt.Errorf("read %d response: %w", resp.StatusCode, err))
	}

	code, msg := "", string(bytes.TrimSpace(body))
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		code, msg = env.Error.Code, env.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return classify(resp.StatusCode, code, fmt.Sprintf("%s: %s", service, msg), service)
}

func classify(status int, code, msg, service string) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(msg)
	case http.StatusUnauthorized:
		return apperrors.Unauthorized(msg)
	case http.StatusForbidden:
		return apperrors.Forbidden(msg)
	case http.StatusNotFound:
		return apperrors.NotFoundMessage(msg)
	case http.StatusConflict:
		return apperrors.Conflict(msg)
	}
	if status >= http.StatusInternalServerError {
		return apperrors.Unavailable(service, fmt.Errorf("status %d: %s", status, msg))
	}
	if code == "" {
		code = "UPSTREAM_ERROR"
	}
	return &apperrors.AppError{Code: code, Message: msg, Status: status}
}
