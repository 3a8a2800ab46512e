package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// UsernamePattern определяет допустимый формат username
// Латинские буквы, цифры, '_', '.', '-'. Длина: 1-64 символа
var UsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{1,64}$`)

const (
	// MaxUsernameLen максимальная длина username
	MaxUsernameLen = 64
	// MaxPasswordLen ограничивает тело login запроса
	MaxPasswordLen = 1024
)

// ValidateUsername проверяет username перед отправкой на сервер
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if len(username) > MaxUsernameLen {
		return fmt.Errorf("username must not exceed %d characters", MaxUsernameLen)
	}

	if !UsernamePattern.MatchString(username) {
		return fmt.Errorf("username can only contain letters, numbers, '_', '.' and '-'")
	}

	return nil
}

// ValidatePassword проверяет пароль. Политика сложности - на стороне сервера,
// клиент лишь отсекает пустой ввод.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLen)
	}

	return nil
}
