package service

import (
	"context"
	"log/slog"

	"github.com/domainguard/gateway/internal/securitytrails"
)

// UsageClient — часть клиента SecurityTrails, нужная верификации.
type UsageClient interface {
	GetUsage(ctx context.Context, apiKey string) (securitytrails.Status, *securitytrails.Usage, error)
}

// VerifyService проверяет работоспособность api-ключа через
// usage-endpoint провайдера.
type VerifyService struct {
	client UsageClient
	logger *slog.Logger
}

// NewVerifyService создаёт сервис верификации api-ключей.
func NewVerifyService(client UsageClient, logger *slog.Logger) *VerifyService {
	return &VerifyService{
		client: client,
		logger: logger.With(slog.String("component", "verify")),
	}
}

// Verify возвращает активность ключа и остаток месячного бюджета.
// Любой неуспешный исход, включая транспортные ошибки, трактуется как
// неактивный ключ с нулевым бюджетом.
func (s *VerifyService) Verify(ctx context.Context, apiKey string) (bool, int) {
	status, usage, err := s.client.GetUsage(ctx, apiKey)
	if err != nil {
		s.logger.Warn("Ошибка верификации api-ключа", slog.String("error", err.Error()))
		return false, 0
	}
	if status != securitytrails.StatusFetched || usage == nil {
		s.logger.Info("Api-ключ не прошёл верификацию",
			slog.String("status", status.String()),
		)
		return false, 0
	}

	return true, usage.Available()
}
