package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bingo_bot/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Withdrawal struct {
	ID             string `db:"id"`
	UserTelegramID int64  `db:"user_telegram_id"`
	Username       string `db:"username"`
	WalletAddress  string `db:"wallet_address"`
	Amount         int    `db:"amount"`
	Status         string `db:"status"`
	CreatedAt      int64  `db:"created_at"`
	CompletedAt    *int64 `db:"completed_at"`
}

var withdrawalColumns = []string{
	"id",
	"user_telegram_id",
	"username",
	"wallet_address",
	"amount",
	"status",
	"created_at",
	"completed_at",
}

func (w *Withdrawal) toModel() *model.Withdrawal {
	return &model.Withdrawal{
		ID:             w.ID,
		UserTelegramID: w.UserTelegramID,
		Username:       w.Username,
		WalletAddress:  w.WalletAddress,
		Amount:         w.Amount,
		Status:         model.WithdrawalStatus(w.Status),
		CreatedAt:      fromMillis(w.CreatedAt),
		CompletedAt:    fromNullableMillis(w.CompletedAt),
	}
}

// CreateWithdrawal deducts amount and records a pending withdrawal against
// the user's current wallet in one transaction.
func (r *Repository) CreateWithdrawal(ctx context.Context, telegramID int64, amount int) (*model.Withdrawal, *model.User, error) {
	var (
		withdrawal *model.Withdrawal
		updated    *model.User
	)

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := r.addPointsWithTx(ctx, tx, telegramID, -amount); err != nil {
			return err
		}

		user, err := r.getUserWithTx(ctx, tx, telegramID)
		if err != nil {
			return err
		}

		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate withdrawal id: %w", err)
		}

		w := &model.Withdrawal{
			ID:             id.String(),
			UserTelegramID: telegramID,
			Username:       user.Username,
			WalletAddress:  user.WalletAddress,
			Amount:         amount,
			Status:         model.WithdrawalPending,
			CreatedAt:      r.now().UTC(),
		}

		query, args, err := r.sb.
			Insert("withdrawals").
			SetMap(map[string]interface{}{
				"id":               w.ID,
				"user_telegram_id": w.UserTelegramID,
				"username":         w.Username,
				"wallet_address":   w.WalletAddress,
				"amount":           w.Amount,
				"status":           string(w.Status),
				"created_at":       toMillis(w.CreatedAt),
			}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build withdrawal insert query: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert withdrawal: %w", err)
		}

		withdrawal = w
		updated = user
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return withdrawal, updated, nil
}

func (r *Repository) GetWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error) {
	return r.getWithdrawalWithTx(ctx, r.db, id)
}

func (r *Repository) getWithdrawalWithTx(ctx context.Context, q sqlx.QueryerContext, id string) (*model.Withdrawal, error) {
	query, args, err := r.sb.
		Select(withdrawalColumns...).
		From("withdrawals").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var w Withdrawal
	if err := sqlx.GetContext(ctx, q, &w, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}

	return w.toModel(), nil
}

// CompleteWithdrawal moves a pending withdrawal to completed. Only the first
// call for an id succeeds.
func (r *Repository) CompleteWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error) {
	var completed *model.Withdrawal

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		query, args, err := r.sb.
			Update("withdrawals").
			Set("status", string(model.WithdrawalCompleted)).
			Set("completed_at", toMillis(r.now())).
			Where(squirrel.Eq{
				"id":     id,
				"status": string(model.WithdrawalPending),
			}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build withdrawal update query: %w", err)
		}

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update withdrawal: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}

		w, err := r.getWithdrawalWithTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrWithdrawalCompleted
		}

		completed = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	return completed, nil
}

func (r *Repository) ListPendingWithdrawals(ctx context.Context, limit int) ([]*model.Withdrawal, error) {
	return r.listWithdrawals(ctx, squirrel.Eq{"status": string(model.WithdrawalPending)}, "created_at", limit)
}

func (r *Repository) ListUserWithdrawals(ctx context.Context, telegramID int64, limit int) ([]*model.Withdrawal, error) {
	return r.listWithdrawals(ctx, squirrel.Eq{"user_telegram_id": telegramID}, "created_at DESC", limit)
}

func (r *Repository) listWithdrawals(ctx context.Context, where squirrel.Sqlizer, order string, limit int) ([]*model.Withdrawal, error) {
	builder := r.sb.
		Select(withdrawalColumns...).
		From("withdrawals").
		Where(where).
		OrderBy(order, "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build withdrawal list query: %w", err)
	}

	var rows []Withdrawal
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}

	withdrawals := make([]*model.Withdrawal, len(rows))
	for i := range rows {
		withdrawals[i] = rows[i].toModel()
	}

	return withdrawals, nil
}
