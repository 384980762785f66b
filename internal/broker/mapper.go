package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/domainguard/gateway/internal/domain/model"
	"github.com/domainguard/gateway/internal/pool"
)

// request — валидированный конверт входящего сообщения.
type request struct {
	event string
	id    string
	data  map[string]any
}

// knownConsumerEvents — закрытое множество событий входящего канала.
var knownConsumerEvents = map[string]bool{
	EventAccountResponse: true,
}

// validateRequest разбирает тело сообщения по контракту:
// JSON-объект с полями event (известное событие), _id (непустая строка)
// и data (объект). Возвращает причину отбраковки вторым значением.
func validateRequest(body []byte) (*request, string) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, "тело сообщения не является JSON-объектом"
	}

	event, ok := raw["event"].(string)
	if !ok || !knownConsumerEvents[event] {
		return nil, fmt.Sprintf("неизвестное событие: %v", raw["event"])
	}

	id, ok := raw["_id"].(string)
	if !ok || id == "" {
		return nil, "отсутствует корректный _id"
	}

	data, ok := raw["data"].(map[string]any)
	if !ok {
		return nil, "отсутствует объект data"
	}

	return &request{event: event, id: id, data: data}, ""
}

// mapAccountResponse интерпретирует payload ответа фабрикации по статусу.
// Статус ready даёт успешный результат с несохранённым активным аккаунтом
// (бюджет не установлен — его верифицирует получатель). Любой другой
// статус или ошибка декодирования дают неуспешный результат; ошибки
// никогда не поднимаются к consume-циклу.
func mapAccountResponse(token string, data map[string]any) *pool.FabricationResult {
	status, ok := data["status"].(string)
	if !ok {
		return mappingFailure(token, "отсутствует поле status")
	}

	if status == StatusReady {
		payload, ok := data["data"].(map[string]any)
		if !ok {
			return mappingFailure(token, "отсутствует payload аккаунта")
		}

		email, okEmail := payload["email"].(string)
		password, okPassword := payload["password"].(string)
		apiKey, okAPIKey := payload["api_key"].(string)
		if !okEmail || !okPassword || !okAPIKey || email == "" || apiKey == "" {
			return mappingFailure(token, "неполные учётные данные аккаунта")
		}

		return &pool.FabricationResult{
			CorrelationID: token,
			Success:       true,
			Account: &model.Account{
				Email:      email,
				Password:   password,
				APIKey:     apiKey,
				SignUpDate: time.Now().UTC(),
				IsActive:   true,
			},
		}
	}

	// Неуспешный статус: текст ошибки, либо сам статус, если ошибки нет
	errText := status
	if e, ok := data["error"].(string); ok && e != "" {
		errText = e
	}

	return &pool.FabricationResult{
		CorrelationID: token,
		Success:       false,
		Error:         errText,
	}
}

// mappingFailure — неуспешный результат с текстом ошибки маппинга.
func mappingFailure(token, reason string) *pool.FabricationResult {
	return &pool.FabricationResult{
		CorrelationID: token,
		Success:       false,
		Error:         fmt.Sprintf("ошибка разбора ответа фабрикации: %s", reason),
	}
}
