package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"plainchat/internal/apperr"
	"plainchat/internal/cache"
	"plainchat/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// TokenLifetime is how long a signed credential stays valid.
	TokenLifetime = 7 * 24 * time.Hour
	// TokenCacheTTL expires the cached entry an hour before the credential.
	TokenCacheTTL = TokenLifetime - time.Hour

	// Scheme prefixes every issued credential.
	Scheme = "Bearer "
)

// Keys holds the HMAC secret used to sign and verify credentials. Build it
// once at startup; it is never mutated afterwards.
type Keys struct {
	secret []byte
}

func NewKeys(secret []byte) (Keys, error) {
	if len(secret) == 0 {
		return Keys{}, errors.New("jwt secret must not be empty")
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return Keys{secret: s}, nil
}

func (k Keys) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(k.secret)
}

func (k Keys) verify(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return k.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

// Authenticator issues session tokens and resolves presented tokens to user
// ids, trusting the cache before the signature.
type Authenticator struct {
	keys  Keys
	cache cache.Cache
}

func NewAuthenticator(keys Keys, c cache.Cache) *Authenticator {
	return &Authenticator{keys: keys, cache: c}
}

// Issue signs a credential for userID and caches it under its formatted
// "Bearer <jwt>" form.
func (a *Authenticator) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	now := time.Now()
	signed, err := a.keys.sign(jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	token := Scheme + signed
	if err := a.cache.Set(ctx, cache.TokenKey(token), userID.String(), TokenCacheTTL); err != nil {
		return "", err
	}
	return token, nil
}

// Authenticate resolves a presented "Bearer <jwt>" credential. A cache hit is
// returned without checking the signature. A verified token is not written
// back to the cache.
func (a *Authenticator) Authenticate(ctx context.Context, presented string) (uuid.UUID, error) {
	presented = strings.TrimSpace(presented)
	// a bare scheme carries no credential
	if presented == "" || presented == strings.TrimSpace(Scheme) {
		return uuid.Nil, apperr.ErrMissingToken
	}

	if id, ok := a.lookup(ctx, presented); ok {
		return id, nil
	}

	raw, ok := strings.CutPrefix(presented, Scheme)
	if !ok || raw == "" {
		return uuid.Nil, apperr.ErrInvalidToken
	}
	claims, err := a.keys.verify(raw)
	if err != nil {
		logger.Debug("Token verification failed: %v", err)
		return uuid.Nil, apperr.ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, apperr.ErrInvalidToken
	}
	return id, nil
}

// lookup treats any cache failure as a miss.
func (a *Authenticator) lookup(ctx context.Context, token string) (uuid.UUID, bool) {
	v, ok, err := a.cache.Get(ctx, cache.TokenKey(token))
	if err != nil {
		logger.L().Warn("token cache lookup failed", zap.Error(err))
		return uuid.Nil, false
	}
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(v)
	if err != nil {
		logger.L().Warn("cached token holds a malformed user id", zap.String("value", v))
		return uuid.Nil, false
	}
	return id, true
}
