package processor

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/ibheelz/Todoalrojo-sub002/internal/config"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrExpiredToken       = errors.New("token expired")
	ErrInvalidToken       = errors.New("invalid token")
)

const tokenIssuer = "journey-engine"

// AuthProcessor authenticates the admin account and issues session tokens.
// There is exactly one admin, configured by environment; operator and
// template management sits behind it.
type AuthProcessor struct {
	authConfig config.AuthConfig
	logger     *observability.Logger
}

func New(authConfig config.AuthConfig, logger *observability.Logger) AuthProcessor {
	return AuthProcessor{authConfig: authConfig, logger: logger}
}

// Login validates admin credentials and returns a signed session token
func (p *AuthProcessor) Login(ctx context.Context, email, password string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(email), []byte(p.authConfig.AdminEmail)) != 1 {
		return "", ErrInvalidCredentials
	}

	err := bcrypt.CompareHashAndPassword([]byte(p.authConfig.AdminPasswordHash), []byte(password))
	if err != nil {
		p.logger.Info(ctx, "admin login rejected")
		return "", ErrInvalidCredentials
	}

	return p.generateToken(ctx, email)
}

// generateToken signs a 24 hour session token for the admin
func (p *AuthProcessor) generateToken(ctx context.Context, email string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{tokenIssuer},
		ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(p.authConfig.JWTSecret))
	if err != nil {
		p.logger.Error(ctx, "failed to sign token", err)
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken parses and verifies a session token
func (p *AuthProcessor) ValidateToken(ctx context.Context, tokenString string) (jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(p.authConfig.JWTSecret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return jwt.RegisteredClaims{}, ErrExpiredToken
		}
		p.logger.Info(ctx, "failed to parse token")
		return jwt.RegisteredClaims{}, ErrInvalidToken
	}
	if !token.Valid {
		return jwt.RegisteredClaims{}, ErrInvalidToken
	}

	return claims, nil
}
