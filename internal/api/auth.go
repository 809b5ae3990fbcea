package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/odnarb/bigfoot-map/internal/safeerr"
	"github.com/odnarb/bigfoot-map/internal/service"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenLifetime = 8 * time.Hour
	tokenIssuer   = "bigfoot-map"
)

// AuthProvider signs users in and verifies their session tokens.
type AuthProvider interface {
	Login(ctx context.Context, username, password string) (Session, error)
	VerifyToken(token string) (service.UserContext, error)
}

// NewAuthProvider builds the provider named in configuration.
func NewAuthProvider(name, secret string) (AuthProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderLocalJWT:
		return NewLocalJWTProvider(secret)
	default:
		return nil, safeerr.New(safeerr.KindConfiguration, CodeProviderInvalid, MsgProviderInvalid, map[string]any{"authProvider": name})
	}
}

type localUser struct {
	profile      service.UserContext
	passwordHash []byte
}

// LocalJWTProvider checks credentials against a fixed set of local users
// and issues HS256 tokens.
type LocalJWTProvider struct {
	secret []byte
	users  map[string]localUser
	// dummyHash keeps unknown usernames on the same bcrypt path as known ones
	dummyHash []byte
	now       func() time.Time
}

var _ AuthProvider = (*LocalJWTProvider)(nil)

var localAccounts = []struct {
	userID, username, password, role string
}{
	{"user_researcher", "researcher", "researcher123", "researcher"},
	{"user_admin", "admin", "admin123", "admin"},
}

// NewLocalJWTProvider creates a new local JWT provider
func NewLocalJWTProvider(secret string) (*LocalJWTProvider, error) {
	if secret == "" {
		return nil, safeerr.New(safeerr.KindConfiguration, CodeProviderInvalid, MsgProviderInvalid, map[string]any{"reason": "empty secret"})
	}

	users := make(map[string]localUser, len(localAccounts))
	for _, account := range localAccounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(account.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %s: %w", account.username, err)
		}
		users[account.username] = localUser{
			profile: service.UserContext{
				UserID:   account.userID,
				Username: account.username,
				Role:     account.role,
			},
			passwordHash: hash,
		}
	}

	dummyHash, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash placeholder password: %w", err)
	}

	return &LocalJWTProvider{
		secret:    []byte(secret),
		users:     users,
		dummyHash: dummyHash,
		now:       time.Now,
	}, nil
}

// WithClock replaces the clock used to issue and verify tokens.
func (p *LocalJWTProvider) WithClock(now func() time.Time) *LocalJWTProvider {
	p.now = now
	return p
}

// Login validates credentials and returns a signed session token.
func (p *LocalJWTProvider) Login(ctx context.Context, username, password string) (Session, error) {
	user, ok := p.users[username]
	hash := user.passwordHash
	if !ok {
		hash = p.dummyHash
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !ok {
		log.Warn().Str("username", username).Msg("Login rejected")
		return Session{}, safeerr.New(safeerr.KindUnauthorized, CodeInvalidCredentials, MsgInvalidCredentials, map[string]any{"username": username})
	}

	now := p.now()
	claims := &tokenClaims{
		UserID:   user.profile.UserID,
		Username: user.profile.Username,
		Role:     user.profile.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.profile.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return Session{}, safeerr.Wrap(err, safeerr.KindInternal, CodeTokenSigningFailed, MsgTokenSigningFailed, nil)
	}

	log.Info().
		Str("userId", user.profile.UserID).
		Str("role", user.profile.Role).
		Msg("User signed in")
	return Session{Token: signed, User: user.profile}, nil
}

// VerifyToken checks the signature and expiry of a session token.
func (p *LocalJWTProvider) VerifyToken(tokenString string) (service.UserContext, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err == nil && !token.Valid {
		err = errors.New("token is not valid")
	}
	if err == nil && claims.UserID == "" {
		err = errors.New("token has no user id")
	}
	if err != nil {
		return service.UserContext{}, safeerr.Wrap(err, safeerr.KindUnauthorized, CodeTokenInvalid, MsgTokenInvalid, nil)
	}

	return claims.userContext(), nil
}
