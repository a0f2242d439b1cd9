package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/fitclass-api/internal/models"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
)

// TokenService verifies access tokens minted by the identity service.
type TokenService struct {
	secret []byte
}

// NewTokenService constructs a verifier for HS256 tokens signed with secret.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	switch claims.Role {
	case models.RoleAdmin, models.RoleTrainer, models.RoleTrainee:
	default:
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown role in token")
	}
	return claims, nil
}

// IssueToken signs claims with the shared secret. The identity service owns
// issuance; this exists for tooling and tests.
func (s *TokenService) IssueToken(claims models.JWTClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
