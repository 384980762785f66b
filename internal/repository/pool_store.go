package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/domainguard/gateway/internal/domain/model"
)

// ErrAccountNotPersisted — операция над аккаунтом без идентификатора.
var ErrAccountNotPersisted = errors.New("аккаунт ещё не сохранён в БД")

// PoolStore — персистентность аккаунтов для менеджера пула.
// Мутации бюджета и статуса выполняются в транзакции: при ошибке
// транзакция откатывается, чтобы состояние бюджета оставалось однозначным.
type PoolStore struct {
	repo     AccountRepository
	txRunner *TxRunner
}

// NewPoolStore создаёт адаптер над репозиторием аккаунтов.
func NewPoolStore(repo AccountRepository, txRunner *TxRunner) *PoolStore {
	return &PoolStore{repo: repo, txRunner: txRunner}
}

// CreateAccount сохраняет сфабрикованный аккаунт.
func (s *PoolStore) CreateAccount(ctx context.Context, account *model.Account) (*model.Account, error) {
	return s.repo.Create(ctx, account)
}

// FetchMinimal возвращает минимальный покрывающий набор активных аккаунтов.
func (s *PoolStore) FetchMinimal(ctx context.Context, requiredBudget int) (int, []*model.Account, error) {
	return s.repo.FetchMinimal(ctx, requiredBudget)
}

// SaveBudget транзакционно сохраняет остаток бюджета аккаунта
// и деактивирует аккаунт при нулевом остатке.
func (s *PoolStore) SaveBudget(ctx context.Context, account *model.Account) error {
	if account.ID == nil {
		return ErrAccountNotPersisted
	}

	return s.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		txRepo := NewAccountRepository(tx)

		if _, err := txRepo.SetAvailableRequests(ctx, *account.ID, account.Budget()); err != nil {
			return fmt.Errorf("сохранение остатка бюджета: %w", err)
		}

		if account.Budget() == 0 {
			if _, err := txRepo.Deactivate(ctx, *account.ID); err != nil {
				return fmt.Errorf("деактивация исчерпанного аккаунта: %w", err)
			}
		}

		return nil
	})
}

// SaveStatus транзакционно сохраняет активность и бюджет аккаунта.
func (s *PoolStore) SaveStatus(ctx context.Context, account *model.Account) error {
	if account.ID == nil {
		return ErrAccountNotPersisted
	}

	return s.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		txRepo := NewAccountRepository(tx)

		if _, err := txRepo.UpdateStatus(ctx, *account.ID, account.IsActive, account.Budget()); err != nil {
			return fmt.Errorf("сохранение статуса: %w", err)
		}
		return nil
	})
}
