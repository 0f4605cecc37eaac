package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"urbanaid/internal/db"
	"urbanaid/internal/domain"
	"urbanaid/internal/gateway"
	"urbanaid/internal/migrate"
	"urbanaid/internal/session"
)

func openStore(t *testing.T, workspace string) *session.DBStore {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return session.NewDBStore(conn)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	workspace := t.TempDir()
	ctx := context.Background()

	store := openStore(t, workspace)
	if err := store.Set(ctx, session.KeyToken, "tok-123"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, session.KeyUserRole, "volunteer"); err != nil {
		t.Fatalf("set: %v", err)
	}

	reopened := openStore(t, workspace)
	got, err := reopened.Get(ctx, session.KeyToken)
	if err != nil || got != "tok-123" {
		t.Fatalf("get after reopen = %q, %v", got, err)
	}
}

func TestStoreSubscribe(t *testing.T) {
	store := openStore(t, t.TempDir())
	ctx := context.Background()

	var seen []string
	cancel := store.Subscribe(func(key, value string) {
		seen = append(seen, key+"="+value)
	})
	if err := store.Set(ctx, session.KeyUserID, "7"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Delete(ctx, session.KeyUserID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	cancel()
	if err := store.Set(ctx, session.KeyUserID, "8"); err != nil {
		t.Fatalf("set after cancel: %v", err)
	}
	if len(seen) != 2 || seen[0] != "userId=7" || seen[1] != "userId=" {
		t.Fatalf("notifications = %v", seen)
	}
}

func TestSignOutIdempotent(t *testing.T) {
	m := &session.Manager{
		Store:  session.NewMemStore(),
		Client: gateway.New("http://localhost:1"),
	}
	ctx := context.Background()
	if err := m.SignOut(ctx); err != nil {
		t.Fatalf("signout while signed out: %v", err)
	}
	if err := m.SignOut(ctx); err != nil {
		t.Fatalf("second signout: %v", err)
	}
	if _, ok, err := m.Current(ctx); err != nil || ok {
		t.Fatalf("current after signout = ok=%v err=%v", ok, err)
	}
}

func TestRequireActorWhenSignedOut(t *testing.T) {
	m := &session.Manager{
		Store:  session.NewMemStore(),
		Client: gateway.New("http://localhost:1"),
	}
	_, err := m.RequireActor(context.Background())
	var authErr *gateway.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	// validation failures never reach the network, so the dead base URL is
	// never dialed
	m := &session.Manager{
		Store:  session.NewMemStore(),
		Client: gateway.New("http://localhost:1"),
	}
	ctx := context.Background()

	cases := []domain.Registration{
		{Email: "a@b.c", Password: "x", Mobile: "9876543210"},                                              // no name
		{Name: "A", Email: "a@b.c", Password: "x", Mobile: "1234567890"},                                   // mobile starts 1
		{Name: "A", Email: "a@b.c", Password: "x", Mobile: "98765"},                                        // too short
		{Name: "A", Email: "a@b.c", Password: "x", Mobile: "9876543210", Role: domain.RoleVolunteer},       // volunteer without area
	}
	for i, reg := range cases {
		err := m.Register(ctx, reg)
		var val *gateway.ValidationError
		if !errors.As(err, &val) {
			t.Errorf("case %d: err = %v, want ValidationError", i, err)
		}
	}
}

func TestCurrentClearsExpiredToken(t *testing.T) {
	m := &session.Manager{
		Store:  session.NewMemStore(),
		Client: gateway.New("http://localhost:1"),
	}
	ctx := context.Background()

	expired := signedToken(t, time.Now().Add(-time.Hour))
	if err := m.Store.Set(ctx, session.KeyToken, expired); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Store.Set(ctx, session.KeyUserRole, "citizen"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := m.Current(ctx); err != nil || ok {
		t.Fatalf("current with expired token = ok=%v err=%v", ok, err)
	}
	if got, _ := m.Store.Get(ctx, session.KeyToken); got != "" {
		t.Fatalf("expired token not cleared: %q", got)
	}

	valid := signedToken(t, time.Now().Add(time.Hour))
	if err := m.Store.Set(ctx, session.KeyToken, valid); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := m.Current(ctx); err != nil || !ok {
		t.Fatalf("current with valid token = ok=%v err=%v", ok, err)
	}
}

func signedToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(expiry),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestValidateMobile(t *testing.T) {
	if err := session.ValidateMobile("9876543210"); err != nil {
		t.Errorf("valid mobile rejected: %v", err)
	}
	for _, m := range []string{"", "5876543210", "987654321", "98765432101", "98765abc10"} {
		if err := session.ValidateMobile(m); err == nil {
			t.Errorf("ValidateMobile(%q) accepted", m)
		}
	}
}
