// Package token manages the bearer tokens that gate API access. Tokens
// live in a single JSON file so small deployments can be administered with
// the tokenadmin tool and a text editor.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrTokenNotFound is returned when the named or presented token does not
// exist.
var ErrTokenNotFound = errors.New("token not found")

// Token is one issued credential. Value is the secret itself; revoked
// tokens stay on file for auditing but no longer authenticate.
type Token struct {
	Name       string     `json:"name"`
	Value      string     `json:"token"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Sessions   int        `json:"sessions_created"`
	Revoked    bool       `json:"revoked"`
}

// Store is a file-backed token registry. All operations rewrite the whole
// file; token counts are small enough that this is never a concern.
type Store struct {
	path string

	mu     sync.Mutex
	tokens map[string]*Token // keyed by name
}

// Open loads the token file, creating an empty registry when the file does
// not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, tokens: make(map[string]*Token)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var list []*Token
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	for _, t := range list {
		s.tokens[t.Name] = t
	}
	return s, nil
}

// Add issues a new token under name and returns it. An existing name is
// replaced, which doubles as a rotation operation.
func (s *Store) Add(name string) (Token, error) {
	value, err := generate()
	if err != nil {
		return Token{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Token{
		Name:      name,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
	s.tokens[name] = t
	if err := s.save(); err != nil {
		return Token{}, err
	}
	return *t, nil
}

// Validate checks a presented secret against the registry. A match stamps
// the token's last-used time.
func (s *Store) Validate(value string) (Token, error) {
	if value == "" {
		return Token{}, ErrTokenNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.Revoked || t.Value != value {
			continue
		}
		now := time.Now().UTC()
		t.LastUsedAt = &now
		if err := s.save(); err != nil {
			return Token{}, err
		}
		return *t, nil
	}
	return Token{}, ErrTokenNotFound
}

// IncrementSessions bumps the per-token session counter.
func (s *Store) IncrementSessions(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[name]
	if !ok {
		return ErrTokenNotFound
	}
	t.Sessions++
	return s.save()
}

// Revoke disables a token without deleting its record.
func (s *Store) Revoke(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[name]
	if !ok {
		return ErrTokenNotFound
	}
	t.Revoked = true
	return s.save()
}

// Delete removes a token record entirely.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[name]; !ok {
		return ErrTokenNotFound
	}
	delete(s.tokens, name)
	return s.save()
}

// List returns all token records sorted by name.
func (s *Store) List() []Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// save writes the registry atomically. Caller holds the lock.
func (s *Store) save() error {
	list := make([]*Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "tokens-*.tmp")
	if err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// generate produces a 32-byte URL-safe secret.
func generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
