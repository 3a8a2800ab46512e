package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/pidash/pkg/api"
)

// RequestIDHeader carries a per-request id for server-side log correlation
const RequestIDHeader = "X-Request-ID"

// Client представляет HTTP клиент для взаимодействия с сервером.
// Методы Login/Refresh/Logout/CheckAuth ходят на сервер напрямую, без
// повторов; обычные API вызовы идут через Gateway.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// Option настраивает Client
type Option func(*Client)

// WithHTTPClient подменяет http.Client (тесты, кастомный transport)
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithCookieJar включает хранение cookie. Нужен в cookie-режиме:
// refresh token живет в HttpOnly cookie и отправляется сервером обратно сам.
func WithCookieJar() Option {
	return func(c *Client) {
		jar, err := cookiejar.New(nil)
		if err != nil {
			// cookiejar.New с nil options не возвращает ошибку
			panic(fmt.Sprintf("cookiejar: %v", err))
		}
		c.httpClient.Jar = jar
	}
}

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient создает новый API клиент
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.Default(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL возвращает адрес сервера
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasCookieJar сообщает, отправляет ли клиент cookie
func (c *Client) HasCookieJar() bool {
	return c.httpClient.Jar != nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/login", "", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Refresh обменивает refresh token на новую пару токенов.
// Пустой refreshToken означает cookie-режим: тело не отправляется,
// сервер читает HttpOnly cookie.
// Ошибка типа *StatusError - сервер отверг refresh token, любая другая - сеть.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
	var body any
	if refreshToken != "" {
		body = api.RefreshRequest{RefreshToken: refreshToken}
	}

	var resp api.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/refresh", "", body, &resp); err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("refresh request failed: empty access token in response")
	}
	return &resp, nil
}

// Logout уведомляет сервер о выходе: сервер отзывает refresh token и
// сбрасывает cookie
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var body any
	if refreshToken != "" {
		body = api.RefreshRequest{RefreshToken: refreshToken}
	}

	if err := c.doJSON(ctx, http.MethodPost, "/api/logout", accessToken, body, nil); err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// CheckAuth проверяет access token через GET /api/auth
func (c *Client) CheckAuth(ctx context.Context, accessToken string) error {
	var resp api.AuthStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth", accessToken, nil, &resp); err != nil {
		return fmt.Errorf("auth check failed: %w", err)
	}
	if !resp.Authenticated {
		return &StatusError{StatusCode: http.StatusUnauthorized, Message: "not authenticated"}
	}
	return nil
}

// StreamURL строит адрес realtime потока. Токен передается query параметром:
// при websocket handshake из браузера нельзя задать свои заголовки, и сервер
// ожидает именно такую форму.
func (c *Client) StreamURL(accessToken string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {accessToken}}.Encode()

	return u.String(), nil
}

// newRequest собирает запрос; bearer ставится только при непустом токене
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte, token string) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())

	return req, nil
}

// doJSON выполняет HTTP запрос и декодирует JSON ответ
func (c *Client) doJSON(ctx context.Context, method, path, token string, body, result any) error {
	var payload []byte
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = jsonData
	}

	req, err := c.newRequest(ctx, method, path, nil, payload, token)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return decodeResponse(resp, result)
}

// decodeResponse превращает non-2xx в *StatusError и декодирует успешный ответ
func decodeResponse(resp *http.Response, result any) error {
	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			statusErr.Message = errResp.Message
			if statusErr.Message == "" {
				statusErr.Message = errResp.Error
			}
		}
		return statusErr
	}

	// Декодируем успешный ответ
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
