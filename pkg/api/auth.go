package api

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest представляет запрос на обновление access token.
// В cookie-режиме тело пустое: refresh token приходит в HttpOnly cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenResponse представляет ответ с токенами доступа
type TokenResponse struct {
	AccessToken  string `json:"token"`                   // access token (bearer)
	RefreshToken string `json:"refresh_token,omitempty"` // refresh token (только durable режим)
	ExpiresIn    int64  `json:"expires_in,omitempty"`    // время жизни access token в секундах
}

// AuthStatusResponse представляет ответ GET /api/auth
type AuthStatusResponse struct {
	Authenticated bool `json:"authenticated"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// RefreshCookieName имя HttpOnly cookie с refresh token
const RefreshCookieName = "pi_dash_refresh"
