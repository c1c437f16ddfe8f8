package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/coachline/coachline-backend/internal/logger"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type AdminClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type AuthService interface {
	// Login checks the configured admin credentials and issues a signed
	// access token.
	Login(ctx context.Context, username, password string) (string, time.Time, error)
	// Validate parses and verifies a token, returning its claims.
	Validate(tokenString string) (*AdminClaims, error)
}

type authService struct {
	log          *logger.Logger
	jwtSecretKey string
	adminUser    string
	adminHash    string
	accessTTL    time.Duration
}

func NewAuthService(log *logger.Logger, jwtSecretKey, adminUser, adminPasswordHash string, accessTTL time.Duration) AuthService {
	return &authService{
		log:          log.With("service", "AuthService"),
		jwtSecretKey: jwtSecretKey,
		adminUser:    adminUser,
		adminHash:    adminPasswordHash,
		accessTTL:    accessTTL,
	}
}

func (as *authService) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if username == "" || password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if username != as.adminUser {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(as.adminHash), []byte(password)); err != nil {
		as.log.Warn("Admin login rejected", "username", username)
		return "", time.Time{}, ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(as.accessTTL)
	claims := AdminClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(as.jwtSecretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	as.log.Info("Admin login", "username", username)
	return signed, expiresAt, nil
}

func (as *authService) Validate(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("access token invalid")
	}
	return claims, nil
}
