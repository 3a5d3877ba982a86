package repository

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"bingo_bot/pkg/logger"

	"github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrAlreadyCompleted    = errors.New("task already completed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrReviewPending       = errors.New("review already pending")
	ErrWithdrawalCompleted = errors.New("withdrawal already completed")
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Repository struct {
	db  *sqlx.DB
	sb  squirrel.StatementBuilderType
	now func() time.Time
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Transaction(ctx context.Context, t func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	err = t(tx)
	if err != nil {
		txErr := tx.Rollback()
		if txErr != nil {
			return errors.Wrapf(err, "rollback error: %v", txErr)
		}
		return err
	}
	return tx.Commit()
}

type Config struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

func New(cfg Config) (*Repository, error) {
	driver, placeholder, err := cfg.driver()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(driver, cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// One connection serializes every writer; SQLite would otherwise
		// answer concurrent transactions with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	err = db.Ping()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &Repository{
		db:  db,
		sb:  squirrel.StatementBuilder.PlaceholderFormat(placeholder),
		now: time.Now,
	}

	if err := r.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Logger().Info("Connected to database successfully", zap.String("driver", driver))

	return r, nil
}

func (c *Config) driver() (string, squirrel.PlaceholderFormat, error) {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "", DriverSQLite:
		return DriverSQLite, squirrel.Question, nil
	case DriverPostgres, "pgx":
		return "pgx", squirrel.Dollar, nil
	default:
		return "", nil, fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

func (c *Config) GetDatabaseURL() string {
	if driver, _, _ := c.driver(); driver == DriverSQLite {
		p := c.Path
		if p == "" {
			p = "bingo.db"
		}
		return "file:" + p + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}

// Migrate applies every embedded migration that is not yet recorded in
// schema_migrations, each inside its own transaction.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("failed to ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		query, args, err := r.sb.
			Select("COUNT(*)").
			From("schema_migrations").
			Where(squirrel.Eq{"name": name}).
			ToSql()
		if err != nil {
			return err
		}

		var applied int
		if err := r.db.GetContext(ctx, &applied, query, args...); err != nil {
			return fmt.Errorf("failed to check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile(path.Join("migrations", name))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		err = r.Transaction(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return err
			}

			insert, insertArgs, err := r.sb.
				Insert("schema_migrations").
				Columns("name", "applied_at").
				Values(name, toMillis(r.now())).
				ToSql()
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx, insert, insertArgs...)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}

		logger.Logger().Info("applied migration", zap.String("name", name))
	}

	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func fromNullableMillis(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := fromMillis(*v)
	return &t
}
