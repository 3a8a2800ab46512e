package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/iudanet/pidash/internal/models"
	"github.com/iudanet/pidash/internal/server/metrics"
	"github.com/iudanet/pidash/internal/server/storage"
	"github.com/iudanet/pidash/internal/validation"
	"github.com/iudanet/pidash/pkg/api"
)

const maxAuthBody = 4 << 10

// Account is the single dashboard user
type Account struct {
	Username     string
	PasswordHash []byte // bcrypt
}

// NewAccount hashes password with bcrypt
func NewAccount(username, password string) (Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}
	return Account{Username: username, PasswordHash: hash}, nil
}

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	logger       *slog.Logger
	tokenStorage storage.TokenStorage
	metrics      *metrics.Metrics
	account      Account
	jwtConfig    JWTConfig
}

// NewAuthHandler создает новый handler для авторизации. m may be nil.
func NewAuthHandler(logger *slog.Logger, tokenStorage storage.TokenStorage, jwtConfig JWTConfig, account Account, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		logger:       logger,
		tokenStorage: tokenStorage,
		jwtConfig:    jwtConfig,
		account:      account,
		metrics:      m,
	}
}

// Login обрабатывает POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBody)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode login request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.checkPassword(req.Username, req.Password) {
		h.logger.WarnContext(ctx, "login failed: invalid credentials", slog.String("username", req.Username))
		h.recordLogin(metrics.ResultRejected)
		sendError(h.logger, w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	resp, expiresAt, err := h.issueTokens(r, "")
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue tokens", slog.Any("error", err))
		h.recordLogin(metrics.ResultError)
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	setRefreshCookie(w, r, resp.RefreshToken, expiresAt)
	h.recordLogin(metrics.ResultSuccess)

	h.logger.InfoContext(ctx, "user logged in successfully", slog.String("username", req.Username))
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Refresh обрабатывает POST /api/refresh
// Refresh token берется из тела запроса, иначе из cookie. Каждый обмен ротирует токен.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	presented, err := refreshTokenFromRequest(w, r)
	if err != nil {
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if presented == "" {
		h.recordRefresh(metrics.ResultRejected)
		sendError(h.logger, w, "refresh token is required", http.StatusUnauthorized)
		return
	}

	stored, err := h.tokenStorage.GetRefreshToken(ctx, presented)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			h.logger.WarnContext(ctx, "refresh token not found")
			h.rejectRefresh(w, r)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get refresh token", slog.Any("error", err))
		h.recordRefresh(metrics.ResultError)
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	if stored.Expired(time.Now()) {
		h.logger.WarnContext(ctx, "refresh token expired", slog.String("username", stored.Username))
		if err := h.tokenStorage.DeleteRefreshToken(ctx, presented); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
			h.logger.WarnContext(ctx, "failed to delete expired refresh token", slog.Any("error", err))
		}
		h.rejectRefresh(w, r)
		return
	}

	resp, expiresAt, err := h.issueTokens(r, presented)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			// уже использован параллельным запросом
			h.logger.WarnContext(ctx, "refresh token reused", slog.String("username", stored.Username))
			h.rejectRefresh(w, r)
			return
		}
		h.logger.ErrorContext(ctx, "failed to rotate refresh token", slog.Any("error", err))
		h.recordRefresh(metrics.ResultError)
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	setRefreshCookie(w, r, resp.RefreshToken, expiresAt)
	h.recordRefresh(metrics.ResultSuccess)

	h.logger.InfoContext(ctx, "tokens refreshed successfully", slog.String("username", stored.Username))
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Logout обрабатывает POST /api/logout
// Отзывает предъявленный refresh token и очищает cookie. Всегда 204.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	presented, err := refreshTokenFromRequest(w, r)
	if err != nil {
		h.logger.DebugContext(ctx, "ignoring malformed logout body", slog.Any("error", err))
	}

	if presented != "" {
		if err := h.tokenStorage.DeleteRefreshToken(ctx, presented); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
			h.logger.WarnContext(ctx, "failed to revoke refresh token", slog.Any("error", err))
		}
	}

	clearRefreshCookie(w, r)
	h.logger.InfoContext(ctx, "user logged out")
	w.WriteHeader(http.StatusNoContent)
}

// Check обрабатывает GET /api/auth
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r)
	if token == "" {
		sendError(h.logger, w, "missing token", http.StatusUnauthorized)
		return
	}

	if _, err := ValidateAccessToken(h.jwtConfig, token); err != nil {
		h.logger.DebugContext(r.Context(), "auth check failed", slog.Any("error", err))
		sendError(h.logger, w, "invalid or expired access token", http.StatusUnauthorized)
		return
	}

	sendJSON(h.logger, w, api.AuthStatusResponse{Authenticated: true}, http.StatusOK)
}

func (h *AuthHandler) checkPassword(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.account.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword(h.account.PasswordHash, []byte(password))
	return userOK && passErr == nil
}

// issueTokens выдает новую пару токенов. Если previous не пуст, он атомарно заменяется.
func (h *AuthHandler) issueTokens(r *http.Request, previous string) (api.TokenResponse, time.Time, error) {
	ctx := r.Context()

	accessToken, expiresIn, err := GenerateAccessToken(h.jwtConfig, h.account.Username)
	if err != nil {
		return api.TokenResponse{}, time.Time{}, err
	}

	refreshToken, expiresAt, err := GenerateRefreshToken(h.jwtConfig)
	if err != nil {
		return api.TokenResponse{}, time.Time{}, err
	}

	token := &models.RefreshToken{
		ID:        uuid.New().String(),
		Token:     refreshToken,
		Username:  h.account.Username,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}

	if previous == "" {
		err = h.tokenStorage.SaveRefreshToken(ctx, token)
	} else {
		err = h.tokenStorage.RotateRefreshToken(ctx, previous, token)
	}
	if err != nil {
		return api.TokenResponse{}, time.Time{}, err
	}

	return api.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, expiresAt, nil
}

// rejectRefresh отвечает 401 и сбрасывает refresh cookie
func (h *AuthHandler) rejectRefresh(w http.ResponseWriter, r *http.Request) {
	clearRefreshCookie(w, r)
	h.recordRefresh(metrics.ResultRejected)
	sendError(h.logger, w, "invalid refresh token", http.StatusUnauthorized)
}

func (h *AuthHandler) recordLogin(result string) {
	if h.metrics != nil {
		h.metrics.Login(result)
	}
}

func (h *AuthHandler) recordRefresh(result string) {
	if h.metrics != nil {
		h.metrics.Refresh(result)
	}
}

// TokenFromRequest извлекает access token из заголовка Authorization или query ?token=
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// refreshTokenFromRequest: тело {refresh_token} имеет приоритет над cookie
func refreshTokenFromRequest(w http.ResponseWriter, r *http.Request) (string, error) {
	var req api.RefreshRequest
	if r.Body != nil {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBody)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
	}
	if req.RefreshToken != "" {
		return req.RefreshToken, nil
	}

	if cookie, err := r.Cookie(api.RefreshCookieName); err == nil {
		return cookie.Value, nil
	}
	return "", nil
}

func setRefreshCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     api.RefreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     api.RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}
