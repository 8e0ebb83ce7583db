package httpserver

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/alone132405/panel-bot-sub001/internal/directory"
)

func TestSettingsWriteReadPatch(t *testing.T) {
	e := setupServer(t)
	u := e.seedUser(t, "alice", directory.RoleUser)
	e.seedAccount(t, "igg-100", u.ID, time.Now().Add(24*time.Hour))
	tok := e.token(t, "alice", directory.RoleUser)

	w := e.do(t, http.MethodPut, "/api/settings/igg-100", tok, map[string]any{"march": map[string]any{"speed": 3}})
	if w.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPatch, "/api/settings/igg-100", tok, map[string]any{"path": "march.speed", "value": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/api/settings/igg-100", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode doc: %v", err)
	}
	if doc["march"].(map[string]any)["speed"].(float64) != 5 {
		t.Fatalf("patch not applied: %v", doc)
	}
}

func TestSettingsForeignIdentifierForbidden(t *testing.T) {
	e := setupServer(t)
	owner := e.seedUser(t, "alice", directory.RoleUser)
	e.seedUser(t, "bob", directory.RoleUser)
	e.seedAccount(t, "igg-100", owner.ID, time.Now().Add(24*time.Hour))
	tok := e.token(t, "bob", directory.RoleUser)

	w := e.do(t, http.MethodGet, "/api/settings/igg-100", tok, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestSettingsAdminSeesAll(t *testing.T) {
	e := setupServer(t)
	owner := e.seedUser(t, "alice", directory.RoleUser)
	e.seedUser(t, "root", directory.RoleAdmin)
	e.seedAccount(t, "igg-100", owner.ID, time.Now().Add(24*time.Hour))
	admin := e.token(t, "root", directory.RoleAdmin)

	w := e.do(t, http.MethodPut, "/api/settings/igg-100", admin, map[string]any{"shield": true})
	if w.Code != http.StatusOK {
		t.Fatalf("admin put: expected 200, got %d", w.Code)
	}
	w = e.do(t, http.MethodGet, "/api/settings", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	m := decode(t, w)
	ids := m["identifiers"].([]any)
	if len(ids) != 1 || ids[0] != "igg-100" {
		t.Fatalf("unexpected identifiers: %v", ids)
	}
}

func TestSettingsMissingDocument(t *testing.T) {
	e := setupServer(t)
	e.seedUser(t, "root", directory.RoleAdmin)
	admin := e.token(t, "root", directory.RoleAdmin)
	w := e.do(t, http.MethodGet, "/api/settings/igg-404", admin, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestLoginFlow(t *testing.T) {
	e := setupServer(t)
	e.seedUser(t, "alice", directory.RoleUser)

	w := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "alice", "password": "secret123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	m := decode(t, w)
	tok, _ := m["token"].(string)
	if tok == "" {
		t.Fatalf("expected token in response: %v", m)
	}

	w = e.do(t, http.MethodGet, "/api/auth/me", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", w.Code)
	}
	if m := decode(t, w); m["username"] != "alice" || m["role"] != directory.RoleUser {
		t.Fatalf("unexpected identity: %v", m)
	}

	w = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "alice", "password": "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", w.Code)
	}
}
