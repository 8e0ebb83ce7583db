package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestWriteReadRoundtrip(t *testing.T) {
	s := newStore(t)
	doc := json.RawMessage(`{"march":{"speed":3},"shield":true}`)
	if err := s.Write("acct1", doc); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.Read("acct1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(doc) {
		t.Fatalf("roundtrip mismatch: %s", got)
	}
}

func TestReadMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Read("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBadIdentifiers(t *testing.T) {
	s := newStore(t)
	for _, id := range []string{"", "..", "a/b", `a\b`, "  "} {
		if _, err := s.Read(id); !errors.Is(err, ErrBadIdentifier) {
			t.Fatalf("identifier %q: expected ErrBadIdentifier, got %v", id, err)
		}
	}
}

func TestWriteRejectsInvalidJSON(t *testing.T) {
	s := newStore(t)
	if err := s.Write("acct1", json.RawMessage(`{"broken":`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestPatchNested(t *testing.T) {
	s := newStore(t)
	if err := s.Write("acct1", json.RawMessage(`{"a":{"b":1}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Patch("acct1", "a.c.d", 42); err != nil {
		t.Fatalf("patch: %v", err)
	}
	raw, err := s.Read("acct1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	a := doc["a"].(map[string]any)
	if a["b"].(float64) != 1 {
		t.Fatal("patch must not clobber siblings")
	}
	if a["c"].(map[string]any)["d"].(float64) != 42 {
		t.Fatalf("patched value missing: %v", doc)
	}
}

func TestPatchAcrossScalarFails(t *testing.T) {
	s := newStore(t)
	if err := s.Write("acct1", json.RawMessage(`{"a":5}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Patch("acct1", "a.b", 1); err == nil {
		t.Fatal("expected error when path crosses a scalar")
	}
}

func TestSchemaValidation(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	schema := `{"type":"object","required":["march"],"properties":{"march":{"type":"object"}}}`
	if err := os.WriteFile(schemaPath, []byte(schema), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	s, err := NewStore(t.TempDir(), schemaPath)
	if err != nil {
		t.Fatalf("new store with schema: %v", err)
	}
	if err := s.Write("acct1", json.RawMessage(`{"march":{}}`)); err != nil {
		t.Fatalf("valid doc rejected: %v", err)
	}
	if err := s.Write("acct1", json.RawMessage(`{"shield":true}`)); err == nil {
		t.Fatal("doc missing required field must be rejected")
	}
}

func TestList(t *testing.T) {
	s := newStore(t)
	for _, id := range []string{"b", "a"} {
		if err := s.Write(id, json.RawMessage(`{}`)); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}
	ids, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("expected sorted [a b], got %v", ids)
	}
}
