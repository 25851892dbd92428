// Package admintoken issues and validates the short-lived bearer tokens that
// guard operator endpoints (config reload). Operators exchange the shared
// secret for a token; the secret itself is only ever stored as a bcrypt hash.
package admintoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "palisade/pkg/domain-errors"
	"palisade/pkg/platform/secrets"
)

// Claims are the JWT claims for operator tokens.
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// Service handles operator token creation and validation.
type Service struct {
	signingKey   []byte
	secretBcrypt string
	tokenTTL     time.Duration
}

// New constructs the token service. signingKey signs tokens; secretBcrypt is
// the bcrypt hash operators must match to obtain one.
func New(signingKey, secretBcrypt string) *Service {
	return &Service{
		signingKey:   []byte(signingKey),
		secretBcrypt: secretBcrypt,
		tokenTTL:     15 * time.Minute,
	}
}

// Enabled reports whether operator endpoints are configured at all.
func (s *Service) Enabled() bool {
	return len(s.signingKey) > 0 && s.secretBcrypt != ""
}

// Exchange verifies the shared secret and issues a signed token.
func (s *Service) Exchange(operator, secret string) (string, error) {
	if !s.Enabled() {
		return "", dErrors.New(dErrors.CodeUnavailable, "operator access not configured")
	}
	if err := secrets.Verify(secret, s.secretBcrypt); err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid operator secret")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "palisade",
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Validate parses and verifies an operator token.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}
