package identity

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "github.com/curiomarket/storefront/pkg/errors"
	"github.com/curiomarket/storefront/pkg/logger"
)

func TestResolveFromSessionToken(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "session.jwt")
	writeToken(t, tokenPath, jwt.MapClaims{
		"sub":   "user-123",
		"email": "maya@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	resolver := newTestResolver(t, tokenPath, filepath.Join(dir, "missing.json"))
	user, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if user.ID != "user-123" || user.Email != "maya@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestResolveFallsBackToProfileWhenTokenExpired(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "session.jwt")
	writeToken(t, tokenPath, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	profilePath := filepath.Join(dir, "profile.json")
	if err := os.WriteFile(profilePath, []byte(`{"id":"user-456","email":"jo@example.com"}`), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	resolver := newTestResolver(t, tokenPath, profilePath)
	user, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if user.ID != "user-456" {
		t.Fatalf("expected profile fallback, got %+v", user)
	}
}

func TestResolveFallsBackToProfileWhenTokenMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "session.jwt")
	if err := os.WriteFile(tokenPath, []byte("not a jwt"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	profilePath := filepath.Join(dir, "profile.json")
	if err := os.WriteFile(profilePath, []byte(`{"id":"user-456"}`), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	resolver := newTestResolver(t, tokenPath, profilePath)
	user, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if user.ID != "user-456" {
		t.Fatalf("expected profile fallback, got %+v", user)
	}
}

func TestResolveUnauthorizedWhenNothingCached(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	resolver := newTestResolver(t, filepath.Join(dir, "session.jwt"), filepath.Join(dir, "profile.json"))

	_, err := resolver.Resolve(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if code := pkgerrors.CodeOf(err); code != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected CodeUnauthorized, got %s", code)
	}
}

func TestResolveIgnoresProfileWithoutID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	profilePath := filepath.Join(dir, "profile.json")
	if err := os.WriteFile(profilePath, []byte(`{"email":"jo@example.com"}`), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	resolver := newTestResolver(t, filepath.Join(dir, "session.jwt"), profilePath)
	if _, err := resolver.Resolve(context.Background()); pkgerrors.CodeOf(err) != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected CodeUnauthorized, got %v", err)
	}
}

func newTestResolver(t *testing.T, tokenPath, profilePath string) *FileResolver {
	t.Helper()
	resolver, err := NewFileResolver(tokenPath, profilePath, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return resolver
}

func writeToken(t *testing.T, path string, claims jwt.MapClaims) {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if err := os.WriteFile(path, []byte(signed), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
}
