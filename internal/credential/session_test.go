package credential

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/datapkg/internal/apperr"
)

func TestSession_Do(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ok", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"hash":"abc"}`))
	})
	mux.HandleFunc("GET /unauthorized", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("GET /message", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Only the owner can push"}`))
	})
	mux.HandleFunc("GET /html", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>bad gateway</html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sess := newSession(&Record{AccessToken: "tok", ExpiresAt: 1}, srv.Client())
	get := func(path string) (*http.Response, error) {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		return sess.Do(req)
	}

	t.Run("success carries bearer", func(t *testing.T) {
		resp, err := get("/ok")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, `{"hash":"abc"}`, string(body))
		assert.Equal(t, "Bearer tok", gotAuth)
	})

	t.Run("401 is auth error", func(t *testing.T) {
		_, err := get("/unauthorized")
		var authErr *apperr.AuthError
		require.True(t, errors.As(err, &authErr))
		assert.Contains(t, err.Error(), "datapkg login")
	})

	t.Run("server message", func(t *testing.T) {
		_, err := get("/message")
		var remoteErr *apperr.RemoteError
		require.True(t, errors.As(err, &remoteErr))
		assert.Equal(t, http.StatusForbidden, remoteErr.StatusCode)
		assert.Equal(t, "Only the owner can push", err.Error())
	})

	t.Run("unparseable body", func(t *testing.T) {
		_, err := get("/html")
		var remoteErr *apperr.RemoteError
		require.True(t, errors.As(err, &remoteErr))
		assert.Equal(t, "Unexpected failure: error 502", err.Error())
	})
}

func TestSession_AnonymousSendsNoBearer(t *testing.T) {
	var gotAuth = "unset"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	sess := newSession(nil, srv.Client())
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := sess.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, gotAuth)
}
