package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bingo_bot/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

type User struct {
	TelegramID    int64  `db:"telegram_id"`
	Username      string `db:"username"`
	Points        int    `db:"points"`
	WalletAddress string `db:"wallet_address"`
	ReferrerID    *int64 `db:"referrer_id"`
	Referrals     int    `db:"referrals"`
	RegisteredAt  int64  `db:"registered_at"`
}

var userColumns = []string{
	"telegram_id",
	"username",
	"points",
	"wallet_address",
	"referrer_id",
	"referrals",
	"registered_at",
}

func (u *User) toModel() *model.User {
	return &model.User{
		TelegramID:    u.TelegramID,
		Username:      u.Username,
		Points:        u.Points,
		WalletAddress: u.WalletAddress,
		ReferrerID:    u.ReferrerID,
		Referrals:     u.Referrals,
		RegisteredAt:  fromMillis(u.RegisteredAt),
	}
}

// CreateUser inserts a freshly onboarded user. When the user carries a
// referrer that exists and is not the user itself, the referrer is credited
// referralBonus points in the same transaction and credited is true. A
// referrer that does not exist is dropped from the record.
func (r *Repository) CreateUser(ctx context.Context, user *model.User, referralBonus int) (bool, error) {
	var credited bool

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := r.getUserWithTx(ctx, tx, user.TelegramID)
		switch {
		case err == nil:
			return ErrAlreadyExists
		case !errors.Is(err, ErrNotFound):
			return err
		}

		referrerID := user.ReferrerID
		if referrerID != nil {
			if *referrerID == user.TelegramID {
				referrerID = nil
			} else if _, err := r.getUserWithTx(ctx, tx, *referrerID); err != nil {
				if !errors.Is(err, ErrNotFound) {
					return err
				}
				referrerID = nil
			}
		}

		query, args, err := r.sb.
			Insert("users").
			SetMap(map[string]interface{}{
				"telegram_id":    user.TelegramID,
				"username":       user.Username,
				"points":         user.Points,
				"wallet_address": user.WalletAddress,
				"referrer_id":    referrerID,
				"referrals":      0,
				"registered_at":  toMillis(user.RegisteredAt),
			}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build user insert query: %w", err)
		}

		_, err = tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}

		if referrerID != nil {
			updateQuery, updateArgs, err := r.sb.
				Update("users").
				Set("referrals", squirrel.Expr("referrals + 1")).
				Set("points", squirrel.Expr("points + ?", referralBonus)).
				Where(squirrel.Eq{"telegram_id": *referrerID}).
				ToSql()
			if err != nil {
				return fmt.Errorf("failed to build referrer update query: %w", err)
			}

			_, err = tx.ExecContext(ctx, updateQuery, updateArgs...)
			if err != nil {
				return fmt.Errorf("failed to update referrer: %w", err)
			}
			credited = true
		}

		user.ReferrerID = referrerID
		return nil
	})
	if err != nil {
		return false, err
	}

	return credited, nil
}

func (r *Repository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return r.getUserWithTx(ctx, r.db, telegramID)
}

func (r *Repository) getUserWithTx(ctx context.Context, q sqlx.QueryerContext, telegramID int64) (*model.User, error) {
	var user User
	query, args, err := r.sb.
		Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"telegram_id": telegramID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	err = sqlx.GetContext(ctx, q, &user, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return user.toModel(), nil
}

// AddPoints applies delta to the balance and returns the updated user. The
// update is conditional on the result staying non-negative.
func (r *Repository) AddPoints(ctx context.Context, telegramID int64, delta int) (*model.User, error) {
	var updated *model.User

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := r.addPointsWithTx(ctx, tx, telegramID, delta); err != nil {
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

func (r *Repository) addPointsWithTx(ctx context.Context, tx *sqlx.Tx, telegramID int64, delta int) error {
	updateQuery, updateArgs, err := r.sb.
		Update("users").
		Set("points", squirrel.Expr("points + ?", delta)).
		Where(squirrel.Eq{"telegram_id": telegramID}).
		Where("points + ? >= 0", delta).
		ToSql()
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, updateQuery, updateArgs...)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := r.getUserWithTx(ctx, tx, telegramID); err != nil {
			return err
		}
		return ErrInsufficientBalance
	}

	return nil
}

func (r *Repository) UpdateWalletAddress(ctx context.Context, telegramID int64, address string) error {
	query, args, err := r.sb.
		Update("users").
		Set("wallet_address", address).
		Where(squirrel.Eq{"telegram_id": telegramID}).
		ToSql()
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) ListUserIDs(ctx context.Context) ([]int64, error) {
	query, args, err := r.sb.
		Select("telegram_id").
		From("users").
		OrderBy("registered_at", "telegram_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return ids, nil
}

func (r *Repository) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	query, args, err := r.sb.
		Select(userColumns...).
		From("users").
		OrderBy("points DESC", "telegram_id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	var users []User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, err
	}

	userList := make([]*model.User, len(users))
	for i := range users {
		userList[i] = users[i].toModel()
	}

	return userList, nil
}
