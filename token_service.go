package users

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenService mints and verifies token keys. Keys carry no expiry, the
// stored token row decides whether a key is still good.
type TokenService interface {
	Mint(userID uuid.UUID) (string, error)
	Validate(key string) (*jwt.RegisteredClaims, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	issuer     string
	clock      Clock
	logger     Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, issuer string, logger Logger) *TokenServiceImpl {
	return &TokenServiceImpl{
		signingKey: signingKey,
		issuer:     issuer,
		logger:     normalizeLogger(logger),
	}
}

// WithClock sets the clock used for the iat claim
func (ts *TokenServiceImpl) WithClock(c Clock) *TokenServiceImpl {
	ts.clock = c
	return ts
}

// Mint creates a new signed key for the user
func (ts *TokenServiceImpl) Mint(userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", errors.New("user id is required", errors.CategoryBadInput)
	}

	claims := &jwt.RegisteredClaims{
		Issuer:   ts.issuer,
		Subject:  userID.String(),
		IssuedAt: jwt.NewNumericDate(ts.clock.now()),
		ID:       uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token key")
	}

	return signedString, nil
}

// Validate verifies the key signature and returns its claims
func (ts *TokenServiceImpl) Validate(key string) (*jwt.RegisteredClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(key, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token key uses unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil || !token.Valid {
		clone := ErrTokenMalformed.Clone()
		if clone == nil {
			return nil, ErrTokenMalformed
		}
		clone.Source = err
		return nil, clone
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

var _ TokenService = (*TokenServiceImpl)(nil)

// keyIssuedAt is only used for diagnostics
func keyIssuedAt(claims *jwt.RegisteredClaims) time.Time {
	if claims == nil || claims.IssuedAt == nil {
		return time.Time{}
	}
	return claims.IssuedAt.Time
}
