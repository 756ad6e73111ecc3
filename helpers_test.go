package login

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	fsys, err := DialectMigrations("sqlite")
	require.NoError(t, err)

	raw, err := fs.ReadFile(fsys, "20240101000000_create_users.up.sql")
	require.NoError(t, err)

	for _, stmt := range strings.Split(string(raw), "--bun:split") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	return db
}

type testEnv struct {
	db    *bun.DB
	repo  RepositoryManager
	creds *HashPool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	return &testEnv{
		db:    db,
		repo:  NewRepositoryManager(db),
		creds: NewHashPool(NewBcryptHasher(testPepper, bcrypt.MinCost), 4),
	}
}

func (e *testEnv) register(t *testing.T, username, mail, password string) *User {
	t.Helper()

	user, err := NewRegisterUserHandler(e.repo, e.creds).Execute(context.Background(), RegisterUserMessage{
		Username: username,
		Email:    mail,
		Password: password,
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) load(t *testing.T, user *User) *Account {
	t.Helper()

	account, err := LoadAccount(context.Background(), e.repo, e.creds, user.ID)
	require.NoError(t, err)
	return account
}
