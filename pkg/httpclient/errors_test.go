package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/siterank/pkg/errors"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func response(status int, body string) (*http.Response, *trackingBody) {
	b := &trackingBody{Reader: strings.NewReader(body)}
	return &http.Response{StatusCode: status, Body: b}, b
}

func TestParseResponseError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		message  string
	}{
		{
			name:     "bad request envelope",
			status:   http.StatusBadRequest,
			body:     `{"error":{"code":"INVALID_INPUT","message":"username is required"}}`,
			sentinel: apperrors.ErrInvalidInput,
			message:  "user directory: username is required",
		},
		{
			name:     "unprocessable",
			status:   http.StatusUnprocessableEntity,
			body:     `{"error":{"code":"VALIDATION","message":"too many usernames"}}`,
			sentinel: apperrors.ErrInvalidInput,
			message:  "user directory: too many usernames",
		},
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"code":"UNAUTHORIZED","message":"token expired"}}`,
			sentinel: apperrors.ErrUnauthorized,
		},
		{
			name:     "forbidden plain body",
			status:   http.StatusForbidden,
			body:     "  go away\n",
			sentinel: apperrors.ErrForbidden,
			message:  "user directory: go away",
		},
		{
			name:     "not found empty body",
			status:   http.StatusNotFound,
			sentinel: apperrors.ErrNotFound,
			message:  "user directory: Not Found",
		},
		{
			name:     "conflict",
			status:   http.StatusConflict,
			body:     `{"error":{"code":"CONFLICT","message":"stale"}}`,
			sentinel: apperrors.ErrConflict,
		},
		{
			name:     "server error",
			status:   http.StatusBadGateway,
			body:     "upstream down",
			sentinel: apperrors.ErrServiceUnavail,
		},
		{
			name:     "envelope without error key",
			status:   http.StatusBadRequest,
			body:     `{"data":null}`,
			sentinel: apperrors.ErrInvalidInput,
			message:  `user directory: {"data":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := response(tt.status, tt.body)
			err := ParseResponseError(resp, "user directory")
			require.Error(t, err)
			assert.True(t, body.closed)
			assert.ErrorIs(t, err, tt.sentinel)

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			if tt.message != "" {
				assert.Equal(t, tt.message, appErr.Message)
			}
		})
	}
}

func TestParseResponseError_UnmappedStatusKeepsCode(t *testing.T) {
	resp, _ := response(http.StatusTooManyRequests, `{"error":{"code":"RATE_LIMITED","message":"slow down"}}`)
	err := ParseResponseError(resp, "user directory")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusTooManyRequests, appErr.Status)
	assert.Equal(t, "RATE_LIMITED", appErr.Code)

	resp, _ = response(http.StatusTeapot, "")
	err = ParseResponseError(resp, "user directory")
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "UPSTREAM_ERROR", appErr.Code)
	assert.Equal(t, "user directory: I'm a teapot", appErr.Message)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestParseResponseError_ReadFailure(t *testing.T) {
	b := &trackingBody{Reader: failingReader{}}
	err := ParseResponseError(&http.Response{StatusCode: http.StatusBadRequest, Body: b}, "user directory")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.True(t, b.closed)
}
