// Package identity resolves bearer tokens into listener identities. A
// missing or invalid token degrades to a guest identity, it never blocks
// the request.
package identity

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"chapterly/pkg/domain"
)

const (
	defaultIssuer   = "chapterly-auth"
	defaultAudience = "chapterly-player"
	defaultLeeway   = 30 * time.Second
)

// Config configures listener access-token verification.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Verifier validates listener access tokens and extracts the subject
// (HS256, shared secret with the auth service).
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewVerifier creates a token verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("token verifier requires secret")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
	}, nil
}

// VerifySubject validates the token and returns the subject user ID.
func (v *Verifier) VerifySubject(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return "", err
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", errors.New("token subject missing")
	}
	return subject, nil
}

// Resolve turns a raw bearer token into a listener identity. Empty and
// invalid tokens resolve to guest.
func (v *Verifier) Resolve(token string) domain.Identity {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{Kind: domain.KindGuest}
	}
	userID, err := v.VerifySubject(token)
	if err != nil {
		return domain.Identity{Kind: domain.KindGuest}
	}
	return domain.Identity{Kind: domain.KindAuthenticated, UserID: userID}
}
