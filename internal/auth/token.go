package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
)

// expiryLeeway only needs to cover the one-second resolution of the exp claim.
const expiryLeeway = time.Second

// TokenKind separates short-lived access tokens from refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the signed token payload. Refresh tokens carry only the subject.
type Claims struct {
	Email string      `json:"email,omitempty"`
	Role  models.Role `json:"role,omitempty"`
	Kind  TokenKind   `json:"kind"`
	jwt.RegisteredClaims
}

// SubjectID returns the identity id the token was issued for.
func (c *Claims) SubjectID() string { return c.Subject }

// TokenConfig is loaded once at startup and never changes while tokens signed with it are live.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService issues and verifies HS256 JWTs.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption customizes a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now, for tests that need to move past expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenService) { t.now = now }
}

// NewTokenService creates a service from cfg. Zero TTLs fall back to 2h access and 7 days refresh.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) *TokenService {
	t := &TokenService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	if t.accessTTL <= 0 {
		t.accessTTL = 2 * time.Hour
	}
	if t.refreshTTL <= 0 {
		t.refreshTTL = 7 * 24 * time.Hour
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IssueAccess signs an access token carrying the identity's email and role.
func (t *TokenService) IssueAccess(id models.Identity) (string, error) {
	return t.sign(Claims{
		Email:            id.Email,
		Role:             id.Role,
		Kind:             KindAccess,
		RegisteredClaims: t.registered(id.ID, t.accessTTL),
	})
}

// IssueRefresh signs a refresh token carrying only the subject id.
func (t *TokenService) IssueRefresh(id models.Identity) (string, error) {
	return t.sign(Claims{
		Kind:             KindRefresh,
		RegisteredClaims: t.registered(id.ID, t.refreshTTL),
	})
}

// Verify checks the signature, then expiry. It returns ErrExpired for a correctly
// signed token once now is after its expiry, and ErrMalformed for anything else that fails.
// A token is still valid at the exact second it expires.
func (t *TokenService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
		// jwt rejects now == exp; the leeway keeps that instant valid and the check below
		// restores exactness past it.
		jwt.WithLeeway(expiryLeeway),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, oops.Code("AUTH_TOKEN_EXPIRED").Wrapf(ErrExpired, "token expired")
	case err != nil:
		return nil, oops.Code("AUTH_TOKEN_MALFORMED").Wrapf(ErrMalformed, "parse token: %v", err)
	case t.now().After(claims.ExpiresAt.Time):
		return nil, oops.Code("AUTH_TOKEN_EXPIRED").Wrapf(ErrExpired, "token expired")
	}

	if claims.Subject == "" {
		return nil, oops.Code("AUTH_TOKEN_MALFORMED").Wrapf(ErrMalformed, "token has no subject")
	}
	switch claims.Kind {
	case KindAccess:
		if claims.Email == "" || !claims.Role.Valid() {
			return nil, oops.Code("AUTH_TOKEN_MALFORMED").Wrapf(ErrMalformed, "access token lacks email or role")
		}
	case KindRefresh:
	default:
		return nil, oops.Code("AUTH_TOKEN_MALFORMED").Wrapf(ErrMalformed, "unknown token kind %q", claims.Kind)
	}
	return claims, nil
}

func (t *TokenService) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := t.now()
	return jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (t *TokenService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}
