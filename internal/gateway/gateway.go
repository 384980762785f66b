// Пакет gateway — RPC-канал анализа доменов поверх RabbitMQ:
// приём запросов агрегатора и публикация сводок в reply-очередь.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/domainguard/gateway/internal/domain/model"
	"github.com/domainguard/gateway/internal/service"
)

// EventAnalyzeDomain — входящий запрос анализа домена.
const EventAnalyzeDomain = "analyze_domain"

// Статусы ответа анализа.
const (
	statusOK    = "ok"
	statusError = "error"
)

// Analyzer — операция анализа, нужная шлюзу.
type Analyzer interface {
	Analyze(ctx context.Context, domain string) (*model.DomainSummary, error)
}

// parseAnalyzeRequest разбирает тело запроса по контракту:
// JSON-объект {"event": "analyze_domain", "data": {"domain": <строка>}}.
// Возвращает причину отбраковки вторым значением.
func parseAnalyzeRequest(body []byte) (string, string) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", "тело сообщения не является JSON-объектом"
	}

	event, ok := raw["event"].(string)
	if !ok || event != EventAnalyzeDomain {
		return "", fmt.Sprintf("неизвестное событие: %v", raw["event"])
	}

	data, ok := raw["data"].(map[string]any)
	if !ok {
		return "", "отсутствует объект data"
	}

	domain, ok := data["domain"].(string)
	if !ok || domain == "" {
		return "", "отсутствует корректный domain"
	}

	return domain, ""
}

// analyzeReply — конверт ответа анализа.
type analyzeReply struct {
	Event  string               `json:"event"`
	Status string               `json:"status"`
	Data   *model.DomainSummary `json:"data,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// buildReply сериализует результат анализа в тело ответа.
// Некорректный домен отражается в статусе, а не в транспортной ошибке.
func buildReply(summary *model.DomainSummary, err error) ([]byte, error) {
	reply := analyzeReply{Event: EventAnalyzeDomain}

	switch {
	case err == nil:
		reply.Status = statusOK
		reply.Data = summary
	case errors.Is(err, service.ErrInvalidDomain):
		reply.Status = statusError
		reply.Error = err.Error()
	default:
		reply.Status = statusError
		reply.Error = "внутренняя ошибка анализа"
	}

	return json.Marshal(reply)
}
