package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/domainguard/gateway/internal/domain/model"
)

// AccountRepository — интерфейс для таблицы securitytrails_accounts.
type AccountRepository interface {
	// Create сохраняет новый аккаунт и проставляет ему идентификатор.
	Create(ctx context.Context, account *model.Account) (*model.Account, error)
	// Get возвращает аккаунт по идентификатору.
	Get(ctx context.Context, id int64) (*model.Account, error)
	// Activate помечает аккаунт активным.
	Activate(ctx context.Context, id int64) (*model.Account, error)
	// Deactivate помечает аккаунт неактивным. Деактивация терминальна,
	// запись сохраняется для истории.
	Deactivate(ctx context.Context, id int64) (*model.Account, error)
	// SetAvailableRequests устанавливает остаток бюджета запросов.
	SetAvailableRequests(ctx context.Context, id int64, n int) (*model.Account, error)
	// UpdateStatus обновляет активность и бюджет одним запросом.
	UpdateStatus(ctx context.Context, id int64, isActive bool, n int) (*model.Account, error)
	// FetchMinimal возвращает минимальный по числу аккаунтов префикс
	// активных аккаунтов (в порядке регистрации), чей суммарный бюджет
	// покрывает requiredBudget, и сам суммарный бюджет набора.
	FetchMinimal(ctx context.Context, requiredBudget int) (int, []*model.Account, error)
}

// accountRepo — реализация AccountRepository.
type accountRepo struct {
	db DBTX
}

// NewAccountRepository создаёт репозиторий аккаунтов.
func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepo{db: db}
}

// accountColumns — список колонок для выборок аккаунта.
const accountColumns = `id, email, password, api_key, sign_up_date, is_active, available_requests`

func (r *accountRepo) Create(ctx context.Context, account *model.Account) (*model.Account, error) {
	query := `
		INSERT INTO securitytrails_accounts
			(email, password, api_key, sign_up_date, is_active, available_requests)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + accountColumns

	created, err := r.scanAccount(r.db.QueryRow(ctx, query,
		account.Email, account.Password, account.APIKey,
		account.SignUpDate, account.IsActive, account.AvailableRequests,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("аккаунт %s: %w", account.Email, ErrConflict)
		}
		return nil, fmt.Errorf("ошибка создания аккаунта: %w", err)
	}
	return created, nil
}

func (r *accountRepo) Get(ctx context.Context, id int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM securitytrails_accounts WHERE id = $1`

	account, err := r.scanAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения аккаунта: %w", err)
	}
	return account, nil
}

func (r *accountRepo) Activate(ctx context.Context, id int64) (*model.Account, error) {
	return r.updateReturning(ctx,
		`UPDATE securitytrails_accounts SET is_active = TRUE WHERE id = $1 RETURNING `+accountColumns,
		id)
}

func (r *accountRepo) Deactivate(ctx context.Context, id int64) (*model.Account, error) {
	return r.updateReturning(ctx,
		`UPDATE securitytrails_accounts SET is_active = FALSE WHERE id = $1 RETURNING `+accountColumns,
		id)
}

func (r *accountRepo) SetAvailableRequests(ctx context.Context, id int64, n int) (*model.Account, error) {
	return r.updateReturning(ctx,
		`UPDATE securitytrails_accounts SET available_requests = $2 WHERE id = $1 RETURNING `+accountColumns,
		id, n)
}

func (r *accountRepo) UpdateStatus(ctx context.Context, id int64, isActive bool, n int) (*model.Account, error) {
	return r.updateReturning(ctx,
		`UPDATE securitytrails_accounts
		 SET is_active = $2, available_requests = $3
		 WHERE id = $1 RETURNING `+accountColumns,
		id, isActive, n)
}

func (r *accountRepo) FetchMinimal(ctx context.Context, requiredBudget int) (int, []*model.Account, error) {
	// Нарастающий итог бюджета по порядку регистрации; в набор входят
	// строки, до которых требуемый бюджет ещё не был покрыт
	query := `
		WITH running AS (
			SELECT ` + accountColumns + `,
			       SUM(available_requests) OVER (ORDER BY sign_up_date, id) AS running_total
			FROM securitytrails_accounts
			WHERE is_active = TRUE AND available_requests > 0
		)
		SELECT ` + accountColumns + `, running_total
		FROM running
		WHERE running_total - available_requests < $1
		ORDER BY sign_up_date, id`

	rows, err := r.db.Query(ctx, query, requiredBudget)
	if err != nil {
		return 0, nil, fmt.Errorf("ошибка выборки покрывающего набора: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	var total int64
	for rows.Next() {
		a := &model.Account{}
		if err := rows.Scan(
			&a.ID, &a.Email, &a.Password, &a.APIKey,
			&a.SignUpDate, &a.IsActive, &a.AvailableRequests,
			&total,
		); err != nil {
			return 0, nil, fmt.Errorf("ошибка чтения аккаунта: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("ошибка обхода покрывающего набора: %w", err)
	}

	return int(total), accounts, nil
}

// updateReturning выполняет UPDATE ... RETURNING и маппит отсутствие строки в ErrNotFound.
func (r *accountRepo) updateReturning(ctx context.Context, query string, args ...any) (*model.Account, error) {
	account, err := r.scanAccount(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления аккаунта: %w", err)
	}
	return account, nil
}

// scanAccount читает одну строку аккаунта.
func (r *accountRepo) scanAccount(row pgx.Row) (*model.Account, error) {
	a := &model.Account{}
	err := row.Scan(
		&a.ID, &a.Email, &a.Password, &a.APIKey,
		&a.SignUpDate, &a.IsActive, &a.AvailableRequests,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}
