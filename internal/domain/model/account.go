package model

import "time"

// Account — учётная запись SecurityTrails с API-ключом и остатком бюджета запросов.
// Хранится в таблице securitytrails_accounts.
type Account struct {
	// ID — идентификатор записи (nil до первого сохранения в БД)
	ID *int64
	// Email — почта, на которую зарегистрирован аккаунт
	Email string
	// Password — пароль аккаунта
	Password string
	// APIKey — ключ доступа к API (идентичность аккаунта в пуле)
	APIKey string
	// SignUpDate — время регистрации аккаунта
	SignUpDate time.Time
	// IsActive — признак активности (деактивация терминальна, запись сохраняется для истории)
	IsActive bool
	// AvailableRequests — остаток бюджета запросов (nil до первой верификации у провайдера)
	AvailableRequests *int
}

// SetStatus обновляет активность и бюджет по результату верификации.
func (a *Account) SetStatus(isActive bool, availableRequests int) {
	a.IsActive = isActive
	a.AvailableRequests = &availableRequests
}

// DecrementRequests уменьшает бюджет на единицу.
// Нулевой или неустановленный бюджет не изменяется.
func (a *Account) DecrementRequests() {
	if a.AvailableRequests == nil || *a.AvailableRequests <= 0 {
		return
	}
	decremented := *a.AvailableRequests - 1
	a.AvailableRequests = &decremented
}

// HasAvailableRequests сообщает, остался ли у аккаунта бюджет запросов.
func (a *Account) HasAvailableRequests() bool {
	return a.AvailableRequests != nil && *a.AvailableRequests > 0
}

// Budget возвращает остаток бюджета; неустановленный бюджет считается нулевым.
func (a *Account) Budget() int {
	if a.AvailableRequests == nil {
		return 0
	}
	return *a.AvailableRequests
}
