// Package registrytest provides an in-memory registry for tests.
package registrytest

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
)

// Server is a fake registry backed by maps. It serves the registry API,
// the token endpoint, pre-signed style upload URLs and blob downloads.
type Server struct {
	*httptest.Server

	// AccessToken, when set, is required as the bearer token on API calls.
	AccessToken string
	// UploadStatus, when non-zero, is returned by the upload endpoint.
	UploadStatus int

	requests atomic.Int32

	mu       sync.Mutex
	blobs    map[string][]byte
	packages map[string]string
	tags     map[string]string
	access   map[string][]string
}

// New starts a fake registry that is closed when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		blobs:    make(map[string][]byte),
		packages: make(map[string]string),
		tags:     make(map[string]string),
		access:   make(map[string][]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", s.handleToken)
	mux.HandleFunc("GET /api/tag/{owner}/{name}/{tag}", s.authed(s.handleGetTag))
	mux.HandleFunc("PUT /api/tag/{owner}/{name}/{tag}", s.authed(s.handleSetTag))
	mux.HandleFunc("GET /api/package/{owner}/{name}/{hash}", s.authed(s.handleGetPackage))
	mux.HandleFunc("PUT /api/package/{owner}/{name}/{hash}", s.authed(s.handleRegister))
	mux.HandleFunc("GET /api/access/{owner}/{name}", s.authed(s.handleListAccess))
	mux.HandleFunc("PUT /api/access/{owner}/{name}/{user}", s.authed(s.handleAddAccess))
	mux.HandleFunc("DELETE /api/access/{owner}/{name}/{user}", s.authed(s.handleRemoveAccess))
	mux.HandleFunc("PUT /upload/{hash}", s.handleUpload)
	mux.HandleFunc("GET /blob/{hash}", s.handleBlob)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// Requests returns how many requests the server has received.
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

// Publish stores content under owner/name, registers hash and moves tag to
// it, as if another user had pushed it.
func (s *Server) Publish(owner, name, tag, hash string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := owner + "/" + name
	s.blobs[hash] = content
	s.packages[key+"@"+hash] = ""
	s.tags[key+":"+tag] = hash
}

// Blob returns uploaded content by hash.
func (s *Server) Blob(hash string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[hash]
	return b, ok
}

// Tag returns the hash a tag points at.
func (s *Server) Tag(owner, name, tag string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags[owner+"/"+name+":"+tag]
}

// Description returns the description a version was registered with.
func (s *Server) Description(owner, name, hash string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packages[owner+"/"+name+"@"+hash]
}

// Users returns the access list of a package.
func (s *Server) Users(owner, name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.access[owner+"/"+name])
}

func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AccessToken != "" && r.Header.Get("Authorization") != "Bearer "+s.AccessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func key(r *http.Request) string {
	return r.PathValue("owner") + "/" + r.PathValue("name")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": what + " not found"})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("refresh_token") == "" {
		writeJSON(w, http.StatusOK, map[string]string{"error": "invalid_grant"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refresh_token": "refresh-next",
		"access_token":  s.AccessToken,
		"expires_at":    4102444800,
	})
}

func (s *Server) handleGetTag(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	hash, ok := s.tags[key(r)+":"+r.PathValue("tag")]
	s.mu.Unlock()
	if !ok {
		notFound(w, "Tag")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": hash})
}

func (s *Server) handleSetTag(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packages[key(r)+"@"+in.Hash]; !ok {
		notFound(w, "Package")
		return
	}
	s.tags[key(r)+":"+r.PathValue("tag")] = in.Hash
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	s.mu.Lock()
	_, ok := s.packages[key(r)+"@"+hash]
	s.mu.Unlock()
	if !ok {
		notFound(w, "Package")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":  s.URL + "/blob/" + hash,
		"hash": hash,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	hash := r.PathValue("hash")
	s.mu.Lock()
	s.packages[key(r)+"@"+hash] = in.Description
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"upload_url": s.URL + "/upload/" + hash})
}

func (s *Server) handleListAccess(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := slices.Clone(s.access[key(r)])
	s.mu.Unlock()
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"users": users})
}

func (s *Server) handleAddAccess(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	s.mu.Lock()
	if !slices.Contains(s.access[key(r)], user) {
		s.access[key(r)] = append(s.access[key(r)], user)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleRemoveAccess(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	s.mu.Lock()
	defer s.mu.Unlock()
	users := s.access[key(r)]
	i := slices.Index(users, user)
	if i < 0 {
		notFound(w, "User")
		return
	}
	s.access[key(r)] = slices.Delete(users, i, i+1)
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.UploadStatus != 0 {
		w.WriteHeader(s.UploadStatus)
		return
	}
	if r.Header.Get("Authorization") != "" {
		http.Error(w, "upload URLs are pre-signed", http.StatusBadRequest)
		return
	}

	var body io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer zr.Close()
		body = zr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("read upload: %v", err), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.blobs[r.PathValue("hash")] = data
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data, ok := s.blobs[r.PathValue("hash")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(data)
}
