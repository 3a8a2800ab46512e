package models

import "time"

// RefreshToken представляет выданный refresh token
type RefreshToken struct {
	ExpiresAt time.Time `json:"expires_at"` // время истечения
	CreatedAt time.Time `json:"created_at"` // время создания
	ID        string    `json:"id"`         // UUID записи
	Token     string    `json:"token"`      // значение токена
	Username  string    `json:"username"`   // владелец
}

// Expired reports whether the token is past its expiry at now
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
