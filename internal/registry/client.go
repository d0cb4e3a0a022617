// Package registry is the HTTP client for the remote package registry.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/blackwell-systems/datapkg/internal/apperr"
	"github.com/blackwell-systems/datapkg/internal/credential"
	"github.com/blackwell-systems/datapkg/internal/pkgid"
)

// LatestTag is the tag push moves and install resolves by default.
const LatestTag = "latest"

// PackageInfo is the registry's description of one package version.
type PackageInfo struct {
	URL  string `json:"url"`
	Hash string `json:"hash"`
}

// Client talks to the registry API through an authenticated session.
// Artifact uploads bypass the session and go straight to the upload URL.
type Client struct {
	baseURL  string
	session  *credential.Session
	uploader *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithUploadClient sets the plain client used for artifact uploads.
func WithUploadClient(c *http.Client) Option {
	return func(cl *Client) { cl.uploader = c }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New returns a client for the registry at baseURL.
func New(baseURL string, session *credential.Session, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		session:  session,
		uploader: http.DefaultClient,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/api/" + strings.Join(escaped, "/")
}

// call sends a JSON request and decodes the JSON response into out when out
// is non-nil.
func (c *Client) call(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	c.logger.Debug("registry request", "method", method, "url", endpoint)
	resp, err := c.session.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperr.RemoteError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Unexpected response from %s", endpoint),
			Err:        err,
		}
	}
	return nil
}

// GetTag resolves tag to a content hash.
func (c *Client) GetTag(ctx context.Context, id pkgid.ID, tag string) (string, error) {
	var out struct {
		Hash string `json:"hash"`
	}
	if err := c.call(ctx, http.MethodGet, c.endpoint("tag", id.Owner, id.Name, tag), nil, &out); err != nil {
		return "", err
	}
	if out.Hash == "" {
		return "", &apperr.RemoteError{Message: fmt.Sprintf("Registry returned no hash for %s:%s", id, tag)}
	}
	return out.Hash, nil
}

// SetTag points tag at hash.
func (c *Client) SetTag(ctx context.Context, id pkgid.ID, tag, hash string) error {
	in := map[string]string{"hash": hash}
	return c.call(ctx, http.MethodPut, c.endpoint("tag", id.Owner, id.Name, tag), in, nil)
}

// RegisterPackage announces a version and returns the URL its artifact must
// be uploaded to.
func (c *Client) RegisterPackage(ctx context.Context, id pkgid.ID, hash, description string) (string, error) {
	in := map[string]string{"description": description}
	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := c.call(ctx, http.MethodPut, c.endpoint("package", id.Owner, id.Name, hash), in, &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", &apperr.RemoteError{Message: fmt.Sprintf("Registry returned no upload URL for %s", id)}
	}
	return out.UploadURL, nil
}

// GetPackage fetches the download location of a version.
func (c *Client) GetPackage(ctx context.Context, id pkgid.ID, hash string) (*PackageInfo, error) {
	var info PackageInfo
	if err := c.call(ctx, http.MethodGet, c.endpoint("package", id.Owner, id.Name, hash), nil, &info); err != nil {
		return nil, err
	}
	if info.URL == "" || info.Hash == "" {
		return nil, &apperr.RemoteError{Message: fmt.Sprintf("Registry returned incomplete metadata for %s", id)}
	}
	return &info, nil
}

// ListAccess returns the users allowed to read a package.
func (c *Client) ListAccess(ctx context.Context, id pkgid.ID) ([]string, error) {
	var out struct {
		Users []string `json:"users"`
	}
	if err := c.call(ctx, http.MethodGet, c.endpoint("access", id.Owner, id.Name), nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// AddAccess grants user read access.
func (c *Client) AddAccess(ctx context.Context, id pkgid.ID, user string) error {
	return c.call(ctx, http.MethodPut, c.endpoint("access", id.Owner, id.Name, user), nil, nil)
}

// RemoveAccess revokes user's access.
func (c *Client) RemoveAccess(ctx context.Context, id pkgid.ID, user string) error {
	return c.call(ctx, http.MethodDelete, c.endpoint("access", id.Owner, id.Name, user), nil, nil)
}

// Upload PUTs size bytes of gzip-encoded body to uploadURL. The upload URL
// is pre-signed, so no registry credentials are sent.
func (c *Client) Upload(ctx context.Context, uploadURL string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Encoding", "gzip")

	c.logger.Debug("uploading artifact", "bytes", size)
	resp, err := c.uploader.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperr.RemoteError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Upload failed: error %d", resp.StatusCode),
		}
	}
	return nil
}
