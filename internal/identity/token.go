package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/aimerfeng/minerewards/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token subjects
const (
	SubjectAccess  = "access"
	SubjectRefresh = "refresh"
)

// Token validation errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the JWT claims shared with the identity provider
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenPair is an access token with its refresh token
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

// Issuer signs and validates HS256 tokens with the configured secret
type Issuer struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewIssuer creates an issuer
func NewIssuer(cfg *config.JWTConfig) *Issuer {
	return &Issuer{
		config: cfg,
		now:    time.Now,
	}
}

// IssuePair mints an access and a refresh token for uid
func (i *Issuer) IssuePair(uid string) (*TokenPair, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	now := i.now()
	accessExpiry := now.Add(i.config.AccessTokenExpiry)

	access, err := i.sign(uid, SubjectAccess, now, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := i.sign(uid, SubjectRefresh, now, now.Add(i.config.RefreshTokenExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExpiry,
		TokenType:    "Bearer",
	}, nil
}

func (i *Issuer) sign(uid, subject string, now, expiry time.Time) (string, error) {
	claims := &Claims{
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.config.Secret))
}

// ValidateAccessToken parses an access token and returns its claims
func (i *Issuer) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := i.validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Subject != SubjectAccess || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(i.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
