package broker

import (
	"strings"
	"testing"
)

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		valid bool
	}{
		{
			name:  "корректное сообщение",
			body:  `{"event":"account_response","_id":"tok-1","data":{"status":"ready"}}`,
			valid: true,
		},
		{
			name:  "не JSON",
			body:  `{{{`,
			valid: false,
		},
		{
			name:  "JSON-массив вместо объекта",
			body:  `[1,2,3]`,
			valid: false,
		},
		{
			name:  "неизвестное событие",
			body:  `{"event":"unknown_event","_id":"tok-1","data":{}}`,
			valid: false,
		},
		{
			name:  "событие не строка",
			body:  `{"event":42,"_id":"tok-1","data":{}}`,
			valid: false,
		},
		{
			name:  "пустой _id",
			body:  `{"event":"account_response","_id":"","data":{}}`,
			valid: false,
		},
		{
			name:  "_id не строка",
			body:  `{"event":"account_response","_id":7,"data":{}}`,
			valid: false,
		},
		{
			name:  "отсутствует data",
			body:  `{"event":"account_response","_id":"tok-1"}`,
			valid: false,
		},
		{
			name:  "data не объект",
			body:  `{"event":"account_response","_id":"tok-1","data":"строка"}`,
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, reason := validateRequest([]byte(tt.body))
			if tt.valid && req == nil {
				t.Errorf("сообщение отброшено: %s", reason)
			}
			if !tt.valid && req != nil {
				t.Error("невалидное сообщение принято")
			}
		})
	}
}

func TestMapAccountResponse_Ready(t *testing.T) {
	data := map[string]any{
		"status": "ready",
		"error":  nil,
		"data": map[string]any{
			"email":    "new@securitytrails.test",
			"password": "secret",
			"api_key":  "key-new",
		},
	}

	result := mapAccountResponse("tok-1", data)

	if !result.Success {
		t.Fatalf("ожидался успешный результат, ошибка: %s", result.Error)
	}
	if result.CorrelationID != "tok-1" {
		t.Errorf("CorrelationID = %q, ожидается tok-1", result.CorrelationID)
	}
	if result.Account == nil {
		t.Fatal("в успешном результате отсутствует аккаунт")
	}
	if result.Account.Email != "new@securitytrails.test" ||
		result.Account.APIKey != "key-new" {
		t.Errorf("аккаунт %q/%q не совпадает с payload",
			result.Account.Email, result.Account.APIKey)
	}
	if !result.Account.IsActive {
		t.Error("новый аккаунт должен быть активным")
	}
	// Бюджет не устанавливается: его верифицирует получатель
	if result.Account.AvailableRequests != nil {
		t.Error("бюджет аккаунта должен быть не установлен")
	}
}

func TestMapAccountResponse_Forbidden(t *testing.T) {
	data := map[string]any{
		"status": "forbidden",
		"error":  nil,
		"data":   map[string]any{},
	}

	result := mapAccountResponse("tok-2", data)

	if result.Success {
		t.Fatal("ожидался неуспешный результат")
	}
	if result.Error != "forbidden" {
		t.Errorf("Error = %q, ожидается forbidden", result.Error)
	}
	if result.Account != nil {
		t.Error("в неуспешном результате не должно быть аккаунта")
	}
}

func TestMapAccountResponse_ExplicitErrorWins(t *testing.T) {
	data := map[string]any{
		"status": "rejected",
		"error":  "лимит регистраций исчерпан",
	}

	result := mapAccountResponse("tok-3", data)

	if result.Success {
		t.Fatal("ожидался неуспешный результат")
	}
	if result.Error != "лимит регистраций исчерпан" {
		t.Errorf("Error = %q, ожидается текст из поля error", result.Error)
	}
}

func TestMapAccountResponse_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
	}{
		{"нет статуса", map[string]any{"data": map[string]any{}}},
		{"ready без payload", map[string]any{"status": "ready"}},
		{"ready с неполными данными", map[string]any{
			"status": "ready",
			"data":   map[string]any{"email": "a@b.c"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mapAccountResponse("tok-4", tt.data)
			if result.Success {
				t.Fatal("ожидался неуспешный результат")
			}
			if result.Account != nil {
				t.Error("аккаунт не должен создаваться при ошибке разбора")
			}
			if !strings.Contains(result.Error, "разбора") {
				t.Errorf("Error = %q, ожидается текст ошибки разбора", result.Error)
			}
		})
	}
}
