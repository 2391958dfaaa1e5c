package token

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAddAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	created, err := s.Add("field-laptop")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if created.Value == "" {
		t.Fatal("expected a generated secret")
	}

	got, err := s.Validate(created.Value)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.Name != "field-laptop" {
		t.Errorf("unexpected token name %q", got.Name)
	}
	if got.LastUsedAt == nil {
		t.Error("expected last used timestamp after validation")
	}

	if _, err := s.Validate("wrong-secret"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	if _, err := s.Validate(""); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound for empty value, got %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	created, err := s.Add("archivist")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.IncrementSessions("archivist"); err != nil {
		t.Fatalf("increment: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Validate(created.Value)
	if err != nil {
		t.Fatalf("validate after reopen: %v", err)
	}
	if got.Sessions != 1 {
		t.Errorf("expected session count persisted, got %d", got.Sessions)
	}
}

func TestRevokeStopsAuthentication(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "tokens.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	created, _ := s.Add("temp")

	if err := s.Revoke("temp"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := s.Validate(created.Value); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected revoked token rejected, got %v", err)
	}

	// The record survives for auditing.
	list := s.List()
	if len(list) != 1 || !list[0].Revoked {
		t.Errorf("expected revoked record retained, got %+v", list)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "tokens.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Add("gone")

	if err := s.Delete("gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(s.List()) != 0 {
		t.Errorf("expected empty list, got %v", s.List())
	}
	if err := s.Delete("gone"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestAddReplacesExistingName(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "tokens.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	first, _ := s.Add("rotating")
	second, err := s.Add("rotating")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if first.Value == second.Value {
		t.Error("expected rotation to change the secret")
	}
	if _, err := s.Validate(first.Value); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected old secret rejected, got %v", err)
	}
	if _, err := s.Validate(second.Value); err != nil {
		t.Fatalf("expected new secret accepted, got %v", err)
	}
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(s.List()) != 0 {
		t.Errorf("expected empty registry, got %v", s.List())
	}
}
