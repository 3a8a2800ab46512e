package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/iudanet/pidash/pkg/api"
)

// TokenSource отдает текущий access token ("" - токена нет)
type TokenSource interface {
	AccessToken() string
}

// Renewer обновляет access token. ("", nil) означает, что обновить не удалось.
type Renewer interface {
	Renew(ctx context.Context) (string, error)
}

// Request описывает вызов API. Тело хранится байтами, чтобы запрос можно
// было повторить после обновления токена.
type Request struct {
	Query  url.Values
	Method string
	Path   string
	Body   []byte
}

// Gateway оборачивает аутентифицированные вызовы API: подставляет bearer
// token и на 401 делает ровно одно обновление и ровно один повтор.
type Gateway struct {
	client  *Client
	tokens  TokenSource
	renewer Renewer
	logger  *slog.Logger
}

// NewGateway создает gateway поверх клиента
func NewGateway(client *Client, tokens TokenSource, renewer Renewer) *Gateway {
	return &Gateway{
		client:  client,
		tokens:  tokens,
		renewer: renewer,
		logger:  client.logger,
	}
}

// Do выполняет запрос. Вызывающий обязан закрыть resp.Body.
//
// На 401 вызывается Renew; если он вернул новый токен, запрос повторяется
// один раз и результат повтора возвращается как есть (даже повторный 401).
// Если обновить токен не удалось, возвращается исходный ответ 401 -
// решение о выходе принимает вызывающий.
func (g *Gateway) Do(ctx context.Context, r Request) (*http.Response, error) {
	resp, err := g.send(ctx, r, g.tokens.AccessToken())
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	g.logger.DebugContext(ctx, "request unauthorized, renewing token", "path", r.Path)

	token, err := g.renewer.Renew(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "token renewal failed", "path", r.Path, "error", err)
		return resp, nil
	}
	if token == "" {
		return resp, nil
	}

	// исходный ответ больше не нужен
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return g.send(ctx, r, token)
}

// GetJSON выполняет GET через Do и декодирует ответ.
// Итоговый 401 возвращается как ошибка, удовлетворяющая errors.Is(err, ErrUnauthorized).
func (g *Gateway) GetJSON(ctx context.Context, path string, query url.Values, result any) error {
	resp, err := g.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return decodeResponse(resp, result)
}

// Stats возвращает текущий снимок метрик
func (g *Gateway) Stats(ctx context.Context) (*api.SystemStats, error) {
	var stats api.SystemStats
	if err := g.GetJSON(ctx, "/api/stats", nil, &stats); err != nil {
		return nil, fmt.Errorf("get stats failed: %w", err)
	}
	return &stats, nil
}

// History возвращает историю метрик за диапазон (raw, day, week)
func (g *Gateway) History(ctx context.Context, rng string) (*api.HistoryResponse, error) {
	var history api.HistoryResponse
	query := url.Values{"range": {rng}}
	if err := g.GetJSON(ctx, "/api/history", query, &history); err != nil {
		return nil, fmt.Errorf("get history failed: %w", err)
	}
	return &history, nil
}

func (g *Gateway) send(ctx context.Context, r Request, token string) (*http.Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := g.client.newRequest(ctx, method, r.Path, r.Query, r.Body, token)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
