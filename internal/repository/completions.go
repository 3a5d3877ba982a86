package repository

import (
	"context"
	"fmt"

	"bingo_bot/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

func (r *Repository) HasCompletedTask(ctx context.Context, telegramID int64, taskID string) (bool, error) {
	return r.hasCompletedTaskWithTx(ctx, r.db, telegramID, taskID)
}

func (r *Repository) hasCompletedTaskWithTx(ctx context.Context, q sqlx.QueryerContext, telegramID int64, taskID string) (bool, error) {
	query, args, err := r.sb.
		Select("COUNT(*)").
		From("task_completions").
		Where(squirrel.Eq{
			"user_telegram_id": telegramID,
			"task_id":          taskID,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build completion query: %w", err)
	}

	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, args...); err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}

	return count > 0, nil
}

type TaskCompletion struct {
	UserTelegramID int64  `db:"user_telegram_id"`
	TaskID         string `db:"task_id"`
	CompletedAt    int64  `db:"completed_at"`
}

func (c *TaskCompletion) toModel() model.TaskCompletion {
	return model.TaskCompletion{
		UserTelegramID: c.UserTelegramID,
		TaskID:         c.TaskID,
		CompletedAt:    fromMillis(c.CompletedAt),
	}
}

// ListCompletions returns the user's completions, oldest first.
func (r *Repository) ListCompletions(ctx context.Context, telegramID int64) ([]model.TaskCompletion, error) {
	query, args, err := r.sb.
		Select("user_telegram_id", "task_id", "completed_at").
		From("task_completions").
		Where(squirrel.Eq{"user_telegram_id": telegramID}).
		OrderBy("completed_at", "task_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build completion list query: %w", err)
	}

	var rows []TaskCompletion
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}

	completions := make([]model.TaskCompletion, len(rows))
	for i := range rows {
		completions[i] = rows[i].toModel()
	}

	return completions, nil
}

// MarkTaskCompleted records the completion without touching the balance.
// It reports false when the pair was already recorded.
func (r *Repository) MarkTaskCompleted(ctx context.Context, telegramID int64, taskID string) (bool, error) {
	var inserted bool
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		inserted, err = r.insertCompletionWithTx(ctx, tx, telegramID, taskID)
		return err
	})
	return inserted, err
}

// CompleteTask atomically records the completion, credits reward and closes
// any pending manual review for the pair.
func (r *Repository) CompleteTask(ctx context.Context, telegramID int64, taskID string, reward int) (*model.User, error) {
	var updated *model.User

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := r.getUserWithTx(ctx, tx, telegramID); err != nil {
			return err
		}

		inserted, err := r.insertCompletionWithTx(ctx, tx, telegramID, taskID)
		if err != nil {
			return err
		}
		if !inserted {
			return ErrAlreadyCompleted
		}

		if err := r.addPointsWithTx(ctx, tx, telegramID, reward); err != nil {
			return err
		}

		if _, err := r.resolveReviewWithTx(ctx, tx, telegramID, taskID, model.ReviewApproved); err != nil {
			return err
		}

		user, err := r.getUserWithTx(ctx, tx, telegramID)
		if err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *Repository) insertCompletionWithTx(ctx context.Context, tx *sqlx.Tx, telegramID int64, taskID string) (bool, error) {
	query, args, err := r.sb.
		Insert("task_completions").
		Columns("user_telegram_id", "task_id", "completed_at").
		Values(telegramID, taskID, toMillis(r.now())).
		Suffix("ON CONFLICT (user_telegram_id, task_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build completion insert query: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert completion: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}
