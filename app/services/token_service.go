package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/wedding-automations/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// OperatorRole is the only role allowed on the operator API
const OperatorRole = "operator"

// TokenService issues and verifies operator bearer tokens
type TokenService interface {
	GenerateOperatorToken(subject string, ttl time.Duration) (string, error)
	ValidateOperatorToken(token string) (*OperatorClaims, error)
}

// OperatorClaims are the claims carried by operator tokens
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenServiceImpl implements TokenService with HMAC-SHA256
type TokenServiceImpl struct {
	secretKey []byte
	issuer    string
	audience  string
}

// NewTokenService creates a new token service
func NewTokenService(secretKey, issuer, audience string) (TokenService, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	return &TokenServiceImpl{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		audience:  audience,
	}, nil
}

// GenerateOperatorToken signs a token for subject valid for ttl
func (s *TokenServiceImpl) GenerateOperatorToken(subject string, ttl time.Duration) (string, error) {
	now := utils.UTCNow()
	claims := OperatorClaims{
		Role: OperatorRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateOperatorToken verifies signature, issuer, audience, expiry and role
func (s *TokenServiceImpl) ValidateOperatorToken(token string) (*OperatorClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	var claims OperatorClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid || claims.Role != OperatorRole || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return &claims, nil
}
