package login

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// CredentialChange is a compare-and-swap write of the mail/hash pair.
// It only applies when the row still holds FromMail, and FromHash
// when MatchHash is set.
type CredentialChange struct {
	ID        uuid.UUID
	FromMail  string
	FromHash  string
	MatchHash bool
	Mail      string
	Hash      string
}

type Users interface {
	repository.Repository[*User]

	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	ExistsTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	UpdateProfileTx(ctx context.Context, tx bun.IDB, user *User) error
	RebindCredentialsTx(ctx context.Context, tx bun.IDB, change CredentialChange) error
	TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error
	TouchActivityTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
		ResolveIdentifier: func(identifier string) []repository.IdentifierOption {
			if _, err := uuid.Parse(strings.TrimSpace(identifier)); err == nil {
				return []repository.IdentifierOption{{Column: "id"}}
			}
			return []repository.IdentifierOption{{Column: "username"}}
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

// SelectForUpdate locks the selected row on dialects that have row locks.
// sqlite serializes writers so it is left alone.
func SelectForUpdate(tx bun.IDB) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if tx.Dialect().Name() == dialect.PG {
			return q.For("UPDATE")
		}
		return q
	}
}

func (a *users) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id, criteria...)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*User, error) {
	record, err := a.Repository.GetByIDTx(ctx, tx, id, criteria...)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, userNotFound(map[string]any{"id": id})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

// GetByUsernameTx matches usernames case insensitively
func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	name := strings.TrimSpace(username)
	record, err := a.Repository.GetTx(ctx, tx, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("lower(?TableAlias.username) = lower(?)", name)
	}))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, userNotFound(map[string]any{"username": username})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return a.ExistsTx(ctx, a.db, id)
}

func (a *users) ExistsTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error) {
	if id == GuestID {
		return false, nil
	}
	n, err := a.Repository.CountTx(ctx, tx, repository.SelectByID(id.String()))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

// UpdateProfileTx writes username, last activity and the data bag.
// Mail and hash are left to RebindCredentialsTx.
func (a *users) UpdateProfileTx(ctx context.Context, tx bun.IDB, user *User) error {
	now := time.Now()
	user.UpdatedAt = &now
	if user.Data == nil {
		user.Data = map[string]any{}
	}

	res, err := tx.NewUpdate().
		Model(user).
		Column("username", "last_activity_at", "data", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}

	return expectRow(res, user.ID)
}

func (a *users) RebindCredentialsTx(ctx context.Context, tx bun.IDB, change CredentialChange) error {
	q := tx.NewUpdate().
		Model((*User)(nil)).
		Set("email = ?", change.Mail).
		Set("password_hash = ?", change.Hash).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", change.ID).
		Where("email = ?", change.FromMail)

	if change.MatchHash {
		q = q.Where("password_hash = ?", change.FromHash)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		exists, err := a.ExistsTx(ctx, tx, change.ID)
		if err != nil {
			return err
		}
		if !exists {
			return userNotFound(map[string]any{"id": change.ID.String()})
		}
		return ErrCredentialConflict
	}

	return nil
}

func (a *users) TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	return a.TouchActivityTx(ctx, a.db, id, at)
}

func (a *users) TouchActivityTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("last_activity_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.Data == nil {
		record.Data = map[string]any{}
	}
}

func expectRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return userNotFound(map[string]any{"id": id.String()})
	}
	return nil
}
