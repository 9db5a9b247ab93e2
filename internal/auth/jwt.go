package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stratum-app/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const issuer = "stratum"

// Audiences separate staff console sessions from owner portal sessions.
const (
	AudienceConsole = "console"
	AudiencePortal  = "portal"
)

// Claims identifies the signed-in user and their platform role.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// SessionTTL sets how long sessions last for each platform role.
type SessionTTL struct {
	Staff time.Duration
	Owner time.Duration
}

// JWTService signs and validates session tokens.
type JWTService struct {
	secret []byte
	ttl    SessionTTL
	now    func() time.Time
}

// NewJWTService creates a JWT service. A zero owner TTL falls back to the staff TTL.
func NewJWTService(secret string, ttl SessionTTL) *JWTService {
	if ttl.Owner <= 0 {
		ttl.Owner = ttl.Staff
	}
	return &JWTService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func audienceFor(role string) (string, bool) {
	switch models.Role(role) {
	case models.RoleStaff:
		return AudienceConsole, true
	case models.RoleOwner:
		return AudiencePortal, true
	}
	return "", false
}

// Generate signs a session for userID. Unknown roles are refused.
func (s *JWTService) Generate(userID uuid.UUID, email, role string) (string, error) {
	aud, ok := audienceFor(role)
	if !ok {
		return "", errors.New("unknown role " + role)
	}
	ttl := s.ttl.Staff
	if aud == AudiencePortal {
		ttl = s.ttl.Owner
	}
	now := s.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{aud},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate parses a token and checks that its audience matches its role.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	}
	aud, ok := audienceFor(claims.Role)
	if !ok || len(claims.Audience) != 1 || claims.Audience[0] != aud {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
