package login

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.TransactionManager
	Validate() error
	MustValidate()
	Users() Users
}

type mngr struct {
	db    *bun.DB
	users Users
	txOpt *sql.TxOptions
}

// RepositoryOption customizes the repository manager
type RepositoryOption func(*mngr)

// WithTxIsolation sets the isolation level used by RunInTx when the
// caller passes no options. Leave unset for sqlite.
func WithTxIsolation(level sql.IsolationLevel) RepositoryOption {
	return func(m *mngr) {
		m.txOpt = &sql.TxOptions{Isolation: level}
	}
}

// WithUsersRepository overrides the users repository
func WithUsersRepository(users Users) RepositoryOption {
	return func(m *mngr) {
		if users != nil {
			m.users = users
		}
	}
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryOption) RepositoryManager {
	m := &mngr{
		db:    db,
		users: NewUsersRepository(db),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("database should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	if opts == nil {
		opts = m.txOpt
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

// CreateSchema creates the users table and its case insensitive
// username index when missing
func CreateSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	_, err := db.NewCreateIndex().
		Model((*User)(nil)).
		Unique().
		IfNotExists().
		Index("users_username_lower_idx").
		ColumnExpr("lower(username)").
		Exec(ctx)
	return err
}
