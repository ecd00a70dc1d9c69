package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims is the access token issued by the auth provider. The subject is the
// user id every conversation and message row refers to.
type Claims struct {
	UserID string `json:"sub"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies bearer tokens. HS256 tokens are checked against the
// shared secret; asymmetric tokens need a key set from WithKeyfunc.
type Authenticator struct {
	secretKey []byte
	issuer    string
	audience  string
	validity  time.Duration
	keys      jwt.Keyfunc
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(secretKey string, issuer string, validity time.Duration) *Authenticator {
	return &Authenticator{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		validity:  validity,
	}
}

// WithAudience requires tokens to carry aud.
func (a *Authenticator) WithAudience(aud string) *Authenticator {
	a.audience = aud
	return a
}

// WithKeyfunc resolves verification keys for RS/ES/EdDSA tokens.
func (a *Authenticator) WithKeyfunc(kf jwt.Keyfunc) *Authenticator {
	a.keys = kf
	return a
}

// NewJWKSKeyfunc fetches and keeps refreshing the key set published at url.
func NewJWKSKeyfunc(ctx context.Context, url string) (jwt.Keyfunc, error) {
	k, err := keyfunc.NewDefaultCtx(ctx, []string{url})
	if err != nil {
		return nil, err
	}
	return k.Keyfunc, nil
}

// GenerateToken creates a signed HS256 JWT for a user.
func (a *Authenticator) GenerateToken(userID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.issuer,
		},
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secretKey)
}

// ValidateToken parses and validates a JWT string.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	var opts []jwt.ParserOption
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, a.keyFor, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

func (a *Authenticator) keyFor(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(a.secretKey) == 0 {
			return nil, ErrInvalidToken
		}
		return a.secretKey, nil
	}
	if a.keys == nil {
		return nil, ErrInvalidToken
	}
	return a.keys(token)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[7:])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
