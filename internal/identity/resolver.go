package identity

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "github.com/curiomarket/storefront/pkg/errors"
	"github.com/curiomarket/storefront/pkg/logger"
)

// User is the signed-in customer checkout runs on behalf of.
type User struct {
	ID    string
	Email string
}

// Resolver yields the current user or CodeUnauthorized when nobody is
// signed in.
type Resolver interface {
	Resolve(ctx context.Context) (User, error)
}

// FileResolver reads the cached session left behind by the sign-in flow.
// The session token is authoritative; the cached profile is a fallback for
// sessions established before tokens carried claims. Neither is verified
// here, the order service is the authority on whether the session is live.
type FileResolver struct {
	tokenPath   string
	profilePath string
	logg        *logger.Logger
	parser      *jwt.Parser
	now         func() time.Time
}

// NewFileResolver builds a resolver over the cached session files.
func NewFileResolver(tokenPath, profilePath string, logg *logger.Logger) (*FileResolver, error) {
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &FileResolver{
		tokenPath:   tokenPath,
		profilePath: profilePath,
		logg:        logg,
		parser:      jwt.NewParser(),
		now:         time.Now,
	}, nil
}

// Resolve tries the session token first, then the cached profile.
func (r *FileResolver) Resolve(ctx context.Context) (User, error) {
	if user, ok := r.fromToken(ctx); ok {
		return user, nil
	}
	if user, ok := r.fromProfile(ctx); ok {
		return user, nil
	}
	return User{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "no signed-in user")
}

func (r *FileResolver) fromToken(ctx context.Context) (User, bool) {
	raw, err := os.ReadFile(r.tokenPath)
	if err != nil {
		return User{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := r.parser.ParseUnverified(strings.TrimSpace(string(raw)), claims); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "cached session token unreadable")
		return User{}, false
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(r.now()) {
		r.logg.Debug(ctx, "cached session token expired")
		return User{}, false
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return User{}, false
	}

	user := User{ID: sub}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	return user, true
}

func (r *FileResolver) fromProfile(ctx context.Context) (User, bool) {
	raw, err := os.ReadFile(r.profilePath)
	if err != nil {
		return User{}, false
	}

	var profile struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(raw, &profile); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "cached profile unreadable")
		return User{}, false
	}
	if profile.ID == "" {
		return User{}, false
	}
	return User{ID: profile.ID, Email: profile.Email}, true
}
