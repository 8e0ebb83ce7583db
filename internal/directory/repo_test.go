package directory

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db)
}

func seedUser(t *testing.T, r *Repo, username, role string) *UserRecord {
	t.Helper()
	u := &UserRecord{Username: username, Role: role, Active: true}
	if err := r.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := r.SetPassword(context.Background(), u.ID, "secret123"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	return u
}

func TestVerifyPassword(t *testing.T) {
	r := newRepo(t)
	seedUser(t, r, "alice", RoleUser)
	if _, err := r.Verify(context.Background(), "alice", "secret123"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := r.Verify(context.Background(), "alice", "wrong"); err == nil {
		t.Fatal("expected rejection for wrong password")
	}
	if _, err := r.Verify(context.Background(), "nobody", "secret123"); err == nil {
		t.Fatal("expected rejection for unknown user")
	}
}

func TestVerifyInactiveUser(t *testing.T) {
	r := newRepo(t)
	u := seedUser(t, r, "bob", RoleUser)
	u.Active = false
	if err := r.UpdateUser(context.Background(), u); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := r.Verify(context.Background(), "bob", "secret123"); err == nil {
		t.Fatal("disabled account must not log in")
	}
}

func TestAccountExistsAndOwnership(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	u := seedUser(t, r, "alice", RoleUser)
	other := seedUser(t, r, "bob", RoleUser)
	if err := r.CreateAccount(ctx, &AccountRecord{Identifier: "igg-100", UserID: u.ID}); err != nil {
		t.Fatalf("create account: %v", err)
	}

	ok, err := r.AccountExists(ctx, "igg-100")
	if err != nil || !ok {
		t.Fatalf("expected igg-100 to exist, got %v %v", ok, err)
	}
	ok, err = r.AccountExists(ctx, "igg-999")
	if err != nil || ok {
		t.Fatalf("expected igg-999 to be unknown, got %v %v", ok, err)
	}

	owns, err := r.OwnsIdentifier(ctx, "alice", "igg-100")
	if err != nil || !owns {
		t.Fatalf("alice should own igg-100, got %v %v", owns, err)
	}
	owns, err = r.OwnsIdentifier(ctx, other.Username, "igg-100")
	if err != nil || owns {
		t.Fatalf("bob should not own igg-100, got %v %v", owns, err)
	}
}

func TestSubscriptionActive(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	u := seedUser(t, r, "alice", RoleUser)
	a := &AccountRecord{Identifier: "igg-100", UserID: u.ID}
	if err := r.CreateAccount(ctx, a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	now := time.Now()

	// no subscription rows at all counts as expired
	active, err := r.SubscriptionActive(ctx, "igg-100", now)
	if err != nil || active {
		t.Fatalf("no subscription should be inactive, got %v %v", active, err)
	}

	if err := r.SetSubscription(ctx, a.ID, now.Add(-time.Hour)); err != nil {
		t.Fatalf("set subscription: %v", err)
	}
	active, err = r.SubscriptionActive(ctx, "igg-100", now)
	if err != nil || active {
		t.Fatalf("expired subscription should be inactive, got %v %v", active, err)
	}

	// a renewal wins over the stale row
	if err := r.SetSubscription(ctx, a.ID, now.Add(24*time.Hour)); err != nil {
		t.Fatalf("renew subscription: %v", err)
	}
	active, err = r.SubscriptionActive(ctx, "igg-100", now)
	if err != nil || !active {
		t.Fatalf("renewed subscription should be active, got %v %v", active, err)
	}
}

func TestActivityLog(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	if err := r.LogActivity(ctx, "alice", "settings_write", "igg-100", map[string]any{"path": "march.speed"}); err != nil {
		t.Fatalf("log: %v", err)
	}
	items, err := r.ListActivity(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Action != "settings_write" || items[0].Identifier != "igg-100" {
		t.Fatalf("unexpected activity: %+v", items)
	}
}
