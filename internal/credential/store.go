// Package credential persists datapkg auth state and turns it into
// authenticated registry sessions.
//
// The credential record lives in a single JSON file readable only by its
// owner. Every write goes to a temp file in the same directory which is then
// renamed over the record, so a crash mid-write never leaves a record whose
// tokens and expiry disagree.
//
// OpenSession refreshes the access token when it expires within a minute
// and hands back a Session that signs every request with the bearer token
// and translates error responses into the apperr taxonomy.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blackwell-systems/datapkg/internal/apperr"
)

const tokenPath = "/api/token"

// Store owns the on-disk credential record.
type Store struct {
	path        string
	registryURL string
	client      *http.Client
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient sets the client used for the token exchange and as the base
// of every session.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store for the record at path, exchanging tokens with the
// registry at registryURL.
func New(path, registryURL string, opts ...Option) *Store {
	s := &Store{
		path:        path,
		registryURL: strings.TrimRight(registryURL, "/"),
		client:      &http.Client{Timeout: 30 * time.Second},
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the record location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted record. It returns nil, nil when no record
// exists (the user is anonymous).
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperr.WrapAuth("Credentials file is corrupt. Run 'datapkg login' again", err)
	}
	return &rec, nil
}

// Save atomically replaces the persisted record. The file is created with
// owner read/write permissions only.
func (s *Store) Save(rec *Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".auth-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp credentials file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict credentials file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credentials file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace credentials: %w", err)
	}
	return nil
}

// Logout deletes the persisted record. It reports false, without an error,
// when there was nothing to delete.
func (s *Store) Logout() (bool, error) {
	err := os.Remove(s.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to remove credentials: %w", err)
}

// Login exchanges a one-time code for a credential record and persists it.
// The code is accepted by the token endpoint in place of a refresh token.
func (s *Store) Login(ctx context.Context, code string) (*Record, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.NewAuth("Failed to log in: empty code")
	}

	rec, err := s.Refresh(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.Save(rec); err != nil {
		return nil, err
	}
	s.logger.Debug("logged in", "expires_at", rec.Expiry())
	return rec, nil
}

type tokenResponse struct {
	RefreshToken string      `json:"refresh_token"`
	AccessToken  string      `json:"access_token"`
	ExpiresAt    json.Number `json:"expires_at"`
	Error        *string     `json:"error"`
}

// Refresh exchanges refreshToken for a new record at the registry's token
// endpoint. It does not persist the result.
func (s *Store) Refresh(ctx context.Context, refreshToken string) (*Record, error) {
	form := url.Values{"refresh_token": {refreshToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.registryURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	s.logger.Debug("refreshing access token", "url", req.URL.String())
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, apperr.NewAuth("Authentication error: %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperr.WrapAuth("Authentication error: invalid token response", err)
	}
	if body.Error != nil {
		return nil, apperr.NewAuth("Failed to log in: %s", *body.Error)
	}

	expiresAt, err := parseExpiry(body.ExpiresAt)
	if err != nil {
		return nil, apperr.WrapAuth("Authentication error: invalid expires_at", err)
	}
	if body.AccessToken == "" || body.RefreshToken == "" {
		return nil, apperr.NewAuth("Authentication error: incomplete token response")
	}

	return &Record{
		RefreshToken: body.RefreshToken,
		AccessToken:  body.AccessToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// parseExpiry accepts integral or fractional Unix seconds.
func parseExpiry(n json.Number) (int64, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// OpenSession returns a session for registry calls. With no record the
// session is anonymous. A record expiring within RefreshWindow is refreshed
// once and persisted before the session is returned; if the refresh is
// rejected the stale record is left as it was.
func (s *Store) OpenSession(ctx context.Context) (*Session, error) {
	rec, err := s.Load()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		s.logger.Debug("no credentials found, using anonymous session")
		return newSession(nil, s.client), nil
	}

	if rec.NeedsRefresh(s.now()) {
		refreshed, err := s.Refresh(ctx, rec.RefreshToken)
		if err != nil {
			var authErr *apperr.AuthError
			if errors.As(err, &authErr) {
				return nil, apperr.NewAuth("Failed to update the access token (%s). Run 'datapkg login' again.", authErr.Error())
			}
			return nil, err
		}
		if err := s.Save(refreshed); err != nil {
			return nil, err
		}
		rec = refreshed
	}

	return newSession(rec, s.client), nil
}
