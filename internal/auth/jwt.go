package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aura-invite/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds JWT claims. UserID is always the owning account: staff
// station tokens carry the owner they were issued by.
type Claims struct {
	UserID  uuid.UUID   `json:"user_id"`
	Role    models.Role `json:"role"`
	Station string      `json:"station,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expireHours int
	now         func() time.Time
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
		now:         time.Now,
	}
}

// Generate creates an owner token with the default lifetime.
func (s *JWTService) Generate(ownerID uuid.UUID) (string, error) {
	return s.sign(Claims{UserID: ownerID, Role: models.RoleOwner}, time.Duration(s.expireHours)*time.Hour)
}

// GenerateStation creates a staff token bound to ownerID for a check-in station.
func (s *JWTService) GenerateStation(ownerID uuid.UUID, station string, ttl time.Duration) (string, time.Time, error) {
	expires := s.now().Add(ttl)
	tok, err := s.sign(Claims{UserID: ownerID, Role: models.RoleStaff, Station: station}, ttl)
	return tok, expires, err
}

func (s *JWTService) sign(claims Claims, ttl time.Duration) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.New().String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == uuid.Nil || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
