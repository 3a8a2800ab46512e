package auth

import "errors"

var (
	// ErrInvalidCredentials возвращается Login, когда сервер отверг логин/пароль
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidInput возвращается Login до обращения к серверу
	ErrInvalidInput = errors.New("invalid login input")
)
