package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid bearer token")

// TokenIssuer is the iss claim shared by the API server and clinicctl.
const TokenIssuer = "clinic-api"

// Claims carried by clinic access tokens. Subject is the numeric user id.
type Claims struct {
	Role       Role   `json:"role"`
	ProviderID *int64 `json:"provider_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 access tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewTokenService(signingKey, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
	}
}

func (s *TokenService) Issue(actor Actor, now time.Time) (string, error) {
	if actor.UserID <= 0 {
		return "", errors.New("user id is required")
	}
	switch actor.Role {
	case RoleAdmin, RoleStaff:
	default:
		return "", fmt.Errorf("unknown role %q", actor.Role)
	}

	claims := Claims{
		Role:       actor.Role,
		ProviderID: actor.ProviderID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.UserID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer and expiry and returns the actor.
func (s *TokenService) Parse(token string) (Actor, error) {
	if token == "" {
		return Actor{}, ErrInvalidToken
	}

	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Actor{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Actor{}, ErrInvalidToken
	}
	if claims.Role != RoleAdmin && claims.Role != RoleStaff {
		return Actor{}, ErrInvalidToken
	}

	return Actor{UserID: userID, Role: claims.Role, ProviderID: claims.ProviderID}, nil
}
