// Package session holds the login fact and bearer credential the sync
// engine consumes. It never talks to the auth service itself; `doselog
// login` stores what the user obtained out of band.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLoggedOut is returned when credentials are requested without a login.
var ErrLoggedOut = errors.New("not logged in")

// Credentials is the stored bearer identity.
type Credentials struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// Session reads and writes the credentials file under the config directory.
// It satisfies syncer.Session.
type Session struct {
	path string
}

// New creates a Session rooted at configDir.
func New(configDir string) *Session {
	return &Session{path: filepath.Join(configDir, "credentials.json")}
}

// IsLoggedIn reports whether usable credentials are stored. The sync engine
// treats false as "run nothing".
func (s *Session) IsLoggedIn() bool {
	creds, err := s.Credentials()
	return err == nil && creds.Token != ""
}

// Credentials loads the stored identity, or ErrLoggedOut.
func (s *Session) Credentials() (Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, ErrLoggedOut
		}
		return Credentials{}, fmt.Errorf("reading credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parsing credentials: %w", err)
	}
	if creds.Token == "" {
		return Credentials{}, ErrLoggedOut
	}
	return creds, nil
}

// Login stores the credentials with owner-only permissions.
func (s *Session) Login(userID, token string) error {
	if token == "" {
		return errors.New("token is required")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(Credentials{UserID: userID, Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Logout removes the credentials file; removing an absent file is fine.
func (s *Session) Logout() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
