package auth

import (
	"context"

	pkgapi "github.com/iudanet/pidash/pkg/api"
)

// AuthClient defines the server calls used by the session lifecycle.
// Implemented by *api.Client; these calls bypass the Gateway and are never retried.
type AuthClient interface {
	// Login обменивает логин/пароль на пару токенов
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error)

	// Refresh обменивает refresh token на новую пару.
	// Пустой refreshToken - cookie-режим.
	Refresh(ctx context.Context, refreshToken string) (*pkgapi.TokenResponse, error)

	// Logout уведомляет сервер о выходе
	Logout(ctx context.Context, accessToken, refreshToken string) error

	// CheckAuth проверяет access token
	CheckAuth(ctx context.Context, accessToken string) error
}

// TokenRenewer обновляет access token; ("", nil) - обновить не удалось
type TokenRenewer interface {
	Renew(ctx context.Context) (string, error)
}
