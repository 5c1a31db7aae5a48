package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"notifyd/internal/platform/config"
)

const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleMember  = "member"
	RoleService = "service" // machine credentials of event producers
)

// Claims are issued by the identity service that fronts the admin UI;
// notifyd only validates them.
type Claims struct {
	UserID         string `json:"uid"`
	OrganizationID string `json:"oid"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

type TokenService struct {
	config config.JWTConfig
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{config: cfg}
}

// IssueToken signs a token for the given subject. Used for service
// credentials and in tests.
func (s *TokenService) IssueToken(userID, orgID, role string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	var opts []jwt.ParserOption
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	}, opts...)

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.OrganizationID == "" {
			return nil, errors.New("token carries no organization")
		}
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
