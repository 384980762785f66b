// Пакет securitytrails — HTTP-клиент к SecurityTrails API.
// Частичная обёртка production-версии API
// (https://jsapi.apiary.io/apis/securitytrailsrestapi/): использование
// бюджета ключа, сведения о домене, поддомены, историческая DNS-таблица.
//
// HTTP-статусы провайдера переводятся в Status: 200 → Fetched,
// 429 → APIKeyExhausted, 401 → Unauthorized, 404 → NoInfo,
// 400 с известным сообщением → InvalidDomain, прочее → Undefined.
package securitytrails

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/domainguard/gateway/internal/domain/model"
)

// statusByMessage — известные детализации статуса 400.
var statusByMessage = map[string]Status{
	"The requested domain is invalid": StatusInvalidDomain,
}

// Client — клиент SecurityTrails API. Api-ключ передаётся per-request:
// один клиент обслуживает весь пул аккаунтов.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент SecurityTrails API.
// baseURL — базовый URL API (например, https://api.securitytrails.com/v1).
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "securitytrails_client")),
	}
}

// GetUsage возвращает использование месячного бюджета ключа.
func (c *Client) GetUsage(ctx context.Context, apiKey string) (Status, *Usage, error) {
	return fetch[Usage](ctx, c, "/account/usage/", apiKey)
}

// GetDomain возвращает сведения о домене с текущими DNS-записями.
func (c *Client) GetDomain(ctx context.Context, domain, apiKey string) (Status, *DomainData, error) {
	return fetch[DomainData](ctx, c, fmt.Sprintf("/domain/%s/", domain), apiKey)
}

// GetSubdomains возвращает список поддоменов домена.
func (c *Client) GetSubdomains(ctx context.Context, domain, apiKey string) (Status, *SubdomainData, error) {
	return fetch[SubdomainData](ctx, c, fmt.Sprintf("/domain/%s/subdomains/", domain), apiKey)
}

// GetHistoryDNS возвращает историю DNS-записей заданного типа.
func (c *Client) GetHistoryDNS(ctx context.Context, domain string, recordType model.RecordType, apiKey string) (Status, *HistoryData, error) {
	path := fmt.Sprintf("/history/%s/dns/%s/", domain, recordType)
	return fetch[HistoryData](ctx, c, path, apiKey)
}

// fetch выполняет GET-запрос и декодирует тело при статусе Fetched.
func fetch[T any](ctx context.Context, c *Client, path, apiKey string) (Status, *T, error) {
	status, body, err := c.get(ctx, path, apiKey)
	if err != nil {
		return StatusUndefined, nil, err
	}
	if status != StatusFetched {
		return status, nil, nil
	}

	var data T
	if err := json.Unmarshal(body, &data); err != nil {
		return StatusUndefined, nil, fmt.Errorf("декодирование ответа %s: %w", path, err)
	}
	return StatusFetched, &data, nil
}

// get выполняет запрос и переводит HTTP-статус провайдера в Status.
func (c *Client) get(ctx context.Context, path, apiKey string) (Status, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return StatusUndefined, nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("APIKEY", apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusUndefined, nil, fmt.Errorf("запрос к SecurityTrails: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return StatusUndefined, nil, fmt.Errorf("чтение ответа: %w", err)
		}
		return StatusFetched, body, nil

	case http.StatusTooManyRequests:
		return StatusAPIKeyExhausted, nil, nil

	case http.StatusBadRequest:
		var details errorDetails
		if err := json.NewDecoder(resp.Body).Decode(&details); err == nil {
			if status, ok := statusByMessage[details.Message]; ok {
				return status, nil, nil
			}
		}
		c.logger.Warn("Неизвестная детализация статуса 400",
			slog.String("path", path),
			slog.String("message", details.Message),
		)
		return StatusUndefined, nil, nil

	case http.StatusUnauthorized:
		return StatusUnauthorized, nil, nil

	case http.StatusNotFound:
		return StatusNoInfo, nil, nil

	default:
		c.logger.Warn("Неожиданный HTTP-статус SecurityTrails",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return StatusUndefined, nil, nil
	}
}
