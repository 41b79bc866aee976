// Package postgresdb provides a PostgreSQL-based implementation of the user
// repository. The favorites list is stored as an ordered TEXT[] column.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/favsync/internal/db/storage"
	"github.com/patric-chuzhbe/favsync/internal/user"
)

// PostgresDB is a PostgreSQL-backed user repository.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset drops every public table before migrating. Test setups only.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New connects to databaseDSN, runs the goose migrations found in
// migrationsDir and returns the repository.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if err := result.Ping(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `result.Ping()` calling: %w", err)
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w", err)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w", err)
	}

	if err := goose.UpContext(ctx, result.database, migrationsDir); err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `goose.Up()` calling: %w", err)
	}

	return result, nil
}

// GetUser loads one user by email.
func (db *PostgresDB) GetUser(ctx context.Context, email string) (*user.User, error) {
	usr := &user.User{}
	var favorites []string
	err := db.database.QueryRowContext(
		ctx,
		`
			SELECT email, name, password_hash, favorites
				FROM users
				WHERE email = $1
		`,
		email,
	).Scan(&usr.Email, &usr.Name, &usr.PasswordHash, pq.Array(&favorites))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/GetUser(): error while `db.database.QueryRowContext()` calling: %w", err)
	}
	usr.Favorites = user.CopyFavorites(favorites)

	return usr, nil
}

// PutUser inserts or fully replaces the user row in a single statement.
func (db *PostgresDB) PutUser(ctx context.Context, usr *user.User) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			INSERT INTO users (email, name, password_hash, favorites, updated_at)
				VALUES ($1, $2, $3, $4, NOW())
				ON CONFLICT (email) DO UPDATE
				SET
					name = EXCLUDED.name,
					password_hash = EXCLUDED.password_hash,
					favorites = EXCLUDED.favorites,
					updated_at = NOW()
		`,
		usr.Email,
		usr.Name,
		usr.PasswordHash,
		pq.Array(user.CopyFavorites(usr.Favorites)),
	)
	if err != nil {
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/PutUser(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return nil
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return nil
}
