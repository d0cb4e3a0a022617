package credential

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/blackwell-systems/datapkg/internal/apperr"
)

// maxErrorBody caps how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// Session is the authenticated request context for registry calls.
type Session struct {
	record *Record
	client *http.Client
}

func newSession(rec *Record, base *http.Client) *Session {
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if rec != nil {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(rec.Token()),
			Base:   transport,
		}
	}

	return &Session{
		record: rec,
		client: &http.Client{
			Transport: transport,
			Timeout:   base.Timeout,
		},
	}
}

// Authenticated reports whether requests carry a bearer token.
func (s *Session) Authenticated() bool {
	return s.record != nil
}

// Header returns the headers added to every outgoing request.
func (s *Session) Header() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	if s.record != nil {
		s.record.Token().SetAuthHeader(&http.Request{Header: h})
	}
	return h
}

// Do sends req with the session headers. A 401 response becomes an
// *apperr.AuthError and any other non-2xx response an *apperr.RemoteError;
// in both cases the body is consumed and closed.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := CheckResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CheckResponse translates an unsuccessful response into the apperr
// taxonomy. It closes the body when it returns an error.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return apperr.NewAuth("Authentication failed. Run 'datapkg login' again.")
	}

	remote := &apperr.RemoteError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("Unexpected failure: error %d", resp.StatusCode),
	}

	var body struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		remote.Message = body.Message
	}
	return remote
}
