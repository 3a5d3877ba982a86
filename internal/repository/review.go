package repository

import (
	"context"
	"errors"
	"fmt"

	"bingo_bot/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type ManualReview struct {
	ID             string `db:"id"`
	UserTelegramID int64  `db:"user_telegram_id"`
	TaskID         string `db:"task_id"`
	Handle         string `db:"handle"`
	Status         string `db:"status"`
	SubmittedAt    int64  `db:"submitted_at"`
	ResolvedAt     *int64 `db:"resolved_at"`
}

var reviewColumns = []string{
	"id",
	"user_telegram_id",
	"task_id",
	"handle",
	"status",
	"submitted_at",
	"resolved_at",
}

func (m *ManualReview) toModel() *model.ManualReview {
	return &model.ManualReview{
		ID:             m.ID,
		UserTelegramID: m.UserTelegramID,
		TaskID:         m.TaskID,
		Handle:         m.Handle,
		Status:         model.ReviewStatus(m.Status),
		SubmittedAt:    fromMillis(m.SubmittedAt),
		ResolvedAt:     fromNullableMillis(m.ResolvedAt),
	}
}

// CreateReview stores a pending review. A second pending review for the
// same user and task yields ErrReviewPending, and a task the user already
// completed yields ErrAlreadyCompleted.
func (r *Repository) CreateReview(ctx context.Context, telegramID int64, taskID, handle string) (*model.ManualReview, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate review id: %w", err)
	}

	review := &model.ManualReview{
		ID:             id.String(),
		UserTelegramID: telegramID,
		TaskID:         taskID,
		Handle:         handle,
		Status:         model.ReviewPending,
		SubmittedAt:    r.now().UTC(),
	}

	err = r.Transaction(ctx, func(tx *sqlx.Tx) error {
		done, err := r.hasCompletedTaskWithTx(ctx, tx, telegramID, taskID)
		if err != nil {
			return err
		}
		if done {
			return ErrAlreadyCompleted
		}

		pending, err := r.hasPendingReviewWithTx(ctx, tx, telegramID, taskID)
		if err != nil {
			return err
		}
		if pending {
			return ErrReviewPending
		}

		query, args, err := r.sb.
			Insert("manual_reviews").
			SetMap(map[string]interface{}{
				"id":               review.ID,
				"user_telegram_id": review.UserTelegramID,
				"task_id":          review.TaskID,
				"handle":           review.Handle,
				"status":           string(review.Status),
				"submitted_at":     toMillis(review.SubmittedAt),
			}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build review insert query: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return ErrReviewPending
			}
			return fmt.Errorf("failed to insert review: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return review, nil
}

func (r *Repository) HasPendingReview(ctx context.Context, telegramID int64, taskID string) (bool, error) {
	return r.hasPendingReviewWithTx(ctx, r.db, telegramID, taskID)
}

func (r *Repository) hasPendingReviewWithTx(ctx context.Context, q sqlx.QueryerContext, telegramID int64, taskID string) (bool, error) {
	query, args, err := r.sb.
		Select("COUNT(*)").
		From("manual_reviews").
		Where(squirrel.Eq{
			"user_telegram_id": telegramID,
			"task_id":          taskID,
			"status":           string(model.ReviewPending),
		}).
		ToSql()
	if err != nil {
		return false, err
	}

	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, args...); err != nil {
		return false, fmt.Errorf("failed to check pending review: %w", err)
	}

	return count > 0, nil
}

func (r *Repository) ListPendingReviewTaskIDs(ctx context.Context, telegramID int64) ([]string, error) {
	query, args, err := r.sb.
		Select("task_id").
		From("manual_reviews").
		Where(squirrel.Eq{
			"user_telegram_id": telegramID,
			"status":           string(model.ReviewPending),
		}).
		OrderBy("submitted_at").
		ToSql()
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list pending reviews: %w", err)
	}

	return ids, nil
}

// ResolveReview closes the pending review for the pair with status and
// reports whether one was open.
func (r *Repository) ResolveReview(ctx context.Context, telegramID int64, taskID string, status model.ReviewStatus) (bool, error) {
	var resolved bool
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		resolved, err = r.resolveReviewWithTx(ctx, tx, telegramID, taskID, status)
		return err
	})
	return resolved, err
}

func (r *Repository) resolveReviewWithTx(ctx context.Context, tx *sqlx.Tx, telegramID int64, taskID string, status model.ReviewStatus) (bool, error) {
	query, args, err := r.sb.
		Update("manual_reviews").
		Set("status", string(status)).
		Set("resolved_at", toMillis(r.now())).
		Where(squirrel.Eq{
			"user_telegram_id": telegramID,
			"task_id":          taskID,
			"status":           string(model.ReviewPending),
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build review update query: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to resolve review: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

func (r *Repository) ListPendingReviews(ctx context.Context, limit int) ([]*model.ManualReview, error) {
	builder := r.sb.
		Select(reviewColumns...).
		From("manual_reviews").
		Where(squirrel.Eq{"status": string(model.ReviewPending)}).
		OrderBy("submitted_at", "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []ManualReview
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}

	reviews := make([]*model.ManualReview, len(rows))
	for i := range rows {
		reviews[i] = rows[i].toModel()
	}

	return reviews, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}

	return false
}
