package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer       = "pidash"
	refreshTokenBytes = 32
)

// ErrInvalidAccessToken is returned for tokens that fail signature or claim checks
var ErrInvalidAccessToken = errors.New("invalid access token")

// AccessClaims - содержимое access token дашборда.
// Username дублирует sub для удобства middleware.
type AccessClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTConfig: ключ подписи HS256 и сроки жизни обоих токенов
type JWTConfig struct {
	Secret          []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// GenerateAccessToken подписывает access token для username.
// Второе значение - срок жизни в секундах для поля expires_in.
func GenerateAccessToken(cfg JWTConfig, username string) (string, int64, error) {
	issuedAt := time.Now()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(cfg.AccessTokenTTL)),
		},
	}).SignedString(cfg.Secret)
	if err != nil {
		return "", 0, fmt.Errorf("sign access token: %w", err)
	}

	return signed, int64(cfg.AccessTokenTTL / time.Second), nil
}

// ValidateAccessToken принимает только HS256 токены нашего issuer с exp
func ValidateAccessToken(cfg JWTConfig, raw string) (*AccessClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)

	var claims AccessClaims
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return cfg.Secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("%w: empty username", ErrInvalidAccessToken)
	}

	return &claims, nil
}

// GenerateRefreshToken returns an opaque random refresh token and its expiry.
// Refresh tokens are not JWTs; they are looked up in storage.
func GenerateRefreshToken(cfg JWTConfig) (string, time.Time, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), time.Now().Add(cfg.RefreshTokenTTL), nil
}
