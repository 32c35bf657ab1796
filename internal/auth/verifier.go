// Package auth verifies the bearer credentials devices present in their
// auth message. Login and account management live outside the relay; this
// package only checks tokens the identity service already issued.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredential is wrapped by every verification failure.
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is the caller resolved from a credential.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
}

// Verifier validates a credential and returns the caller's identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Claims is the token payload: sub carries the user id.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier creates a verifier. issuer may be empty to skip the iss check.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	id, _, err := v.parse(token)
	return id, err
}

// parse returns the identity and the token's expiry.
func (v *JWTVerifier) parse(token string) (*Identity, time.Time, error) {
	if token == "" {
		return nil, time.Time{}, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return nil, time.Time{}, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}

	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	return &Identity{UserID: claims.Subject, Username: username}, claims.ExpiresAt.Time, nil
}

// Issuer mints tokens accepted by a JWTVerifier with the same secret.
type Issuer struct {
	secret []byte
	issuer string
}

func NewIssuer(secret, issuer string) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Issuer{secret: []byte(secret), issuer: issuer}, nil
}

// Issue signs a token for userID valid for ttl.
func (i *Issuer) Issue(userID, username string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
