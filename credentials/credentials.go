// Package credentials manages the OAuth client secret file and the persisted
// token on local disk. Both live in one per-user data directory chosen when
// the Store is built.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"

	"ytbulk/storage"
)

// File names inside the data directory.
const (
	CredentialsFile = "credentials.json"
	TokenFile       = "token.json"
)

// Sentinel errors. Check reports them through CheckResult; Load returns them
// wrapped.
var (
	ErrNotFound      = errors.New("credentials: file not found")
	ErrMalformed     = errors.New("credentials: file is not valid JSON")
	ErrMissingFields = errors.New("credentials: missing required fields")
	ErrNoToken       = errors.New("credentials: no stored token")
)

// Credentials is the "installed" client of a Google OAuth client secret file.
type Credentials struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
	AuthURI      string   `json:"auth_uri,omitempty"`
	TokenURI     string   `json:"token_uri,omitempty"`
}

type credentialsFile struct {
	Installed *Credentials `json:"installed"`
}

// CheckResult is the outcome of Check. Error is empty when Valid.
type CheckResult struct {
	Valid bool   `json:"success"`
	Error string `json:"error,omitempty"`
	Path  string `json:"path"`
}

// Store resolves and manipulates the files in a data directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Locate returns the canonical credentials path.
func (s *Store) Locate() string {
	return filepath.Join(s.dir, CredentialsFile)
}

// TokenPath returns the canonical token path.
func (s *Store) TokenPath() string {
	return filepath.Join(s.dir, TokenFile)
}

// Check validates the credentials file without modifying anything.
func (s *Store) Check() CheckResult {
	path := s.Locate()
	if _, err := s.Load(); err != nil {
		return CheckResult{Error: err.Error(), Path: path}
	}
	return CheckResult{Valid: true, Path: path}
}

// Load reads and validates the credentials file.
func (s *Store) Load() (Credentials, error) {
	path := s.Locate()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Credentials{}, &storage.StorageError{Op: "read", Entity: "credentials", Path: path, Err: err}
	}

	var file credentialsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if missing := missingFields(file.Installed); len(missing) > 0 {
		return Credentials{}, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	return *file.Installed, nil
}

func missingFields(c *Credentials) []string {
	if c == nil {
		return []string{"installed"}
	}
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(c.RedirectURIs) == 0 {
		missing = append(missing, "redirect_uris")
	}
	return missing
}

// Install copies src into the canonical location. The copy is written to a
// temporary file and renamed, so a failed install never leaves a partial
// file at Locate(). Content is not validated; a later Check reports problems.
func (s *Store) Install(src string) error {
	dst := s.Locate()
	f, err := os.Open(src)
	if err != nil {
		return &storage.StorageError{Op: "copy", Entity: "credentials", Path: src, Err: err}
	}
	defer f.Close()

	if err := storage.CopyAtomic(dst, f, 0o600); err != nil {
		return &storage.StorageError{Op: "copy", Entity: "credentials", Path: dst, Err: err}
	}
	return nil
}

// Remove deletes the credentials file and the stored token. Files that are
// already gone are not an error.
func (s *Store) Remove() error {
	for _, p := range []struct{ entity, path string }{
		{"credentials", s.Locate()},
		{"token", s.TokenPath()},
	} {
		if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &storage.StorageError{Op: "delete", Entity: p.entity, Path: p.path, Err: err}
		}
	}
	return nil
}

// LoadToken reads the persisted token. A missing file yields ErrNoToken; an
// unreadable JSON body yields ErrMalformed.
func (s *Store) LoadToken() (*oauth2.Token, error) {
	path := s.TokenPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, &storage.StorageError{Op: "read", Entity: "token", Path: path, Err: err}
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("token %s: %w: %v", path, ErrMalformed, err)
	}
	if tok.AccessToken == "" {
		return nil, ErrNoToken
	}
	return &tok, nil
}

// SaveToken replaces the persisted token. The file is readable by the owner only.
func (s *Store) SaveToken(tok *oauth2.Token) error {
	path := s.TokenPath()
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return &storage.StorageError{Op: "write", Entity: "token", Path: path, Err: err}
	}
	if err := storage.WriteFileAtomic(path, data, 0o600); err != nil {
		return &storage.StorageError{Op: "write", Entity: "token", Path: path, Err: err}
	}
	return nil
}
