package apperr

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth plain", NewAuth("Authentication error: %d", 500), "Authentication error: 500"},
		{"auth wrapped", WrapAuth("Failed to update the access token", errors.New("boom")), "Failed to update the access token: boom"},
		{"store plain", NewStore("Package %s not found.", "acme/missing"), "Package acme/missing not found."},
		{"store sentinel only", WrapStore("", ErrHashMismatch), "hash mismatch"},
		{"store sentinel with message", WrapStore("Package acme/widget not found.", ErrNotFound), "Package acme/widget not found."},
		{"remote", &RemoteError{StatusCode: 404, Message: "Package does not exist"}, "Package does not exist"},
		{"parse", &ParseError{Input: "x", Message: "Specify package as owner/package_name."}, "Specify package as owner/package_name."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestUnwrapSentinels(t *testing.T) {
	err := fmt.Errorf("install: %w", WrapStore("failed to install", ErrHashMismatch))
	assert.True(t, errors.Is(err, ErrHashMismatch))

	var storeErr *StoreError
	assert.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "failed to install", storeErr.Message)
}

func TestExitCode(t *testing.T) {
	connErr := &url.Error{Op: "Get", URL: "http://127.0.0.1:1", Err: errors.New("connection refused")}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"auth", NewAuth("expired"), ExitFailure},
		{"store", NewStore("missing"), ExitFailure},
		{"remote", &RemoteError{Message: "nope"}, ExitFailure},
		{"parse", &ParseError{Message: "bad"}, ExitFailure},
		{"plain", errors.New("usage"), ExitFailure},
		{"connectivity", fmt.Errorf("push: %w", connErr), ExitUnhandled},
		{"store wrapping connectivity", WrapStore("download failed", connErr), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
