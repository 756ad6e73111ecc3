package login

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountAliceScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "a@x.io", "secret1")

	alice := env.load(t, user)

	ok, err := alice.CheckPassword(ctx, "secret1")
	require.NoError(t, err)
	assert.True(t, ok)

	changed, err := alice.SetMail(ctx, "b@x.io", "secret1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "b@x.io", alice.Mail())

	ok, err = alice.CheckPassword(ctx, "secret1")
	require.NoError(t, err)
	assert.True(t, ok, "rebind keeps the password working")

	fresh := env.load(t, user)
	assert.Equal(t, "b@x.io", fresh.Mail())

	ok, err = fresh.CheckPassword(ctx, "secret1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.creds.Verify(ctx, "secret1", "a@x.io", fresh.Record().PasswordHash)
	require.NoError(t, err)
	assert.False(t, ok, "hash no longer verifies under the old mail")
}

func TestAccountSetMailWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "a@x.io", "secret1")
	alice := env.load(t, user)

	changed, err := alice.SetMail(ctx, "b@x.io", "nope")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "a@x.io", alice.Mail())

	fresh := env.load(t, user)
	assert.Equal(t, "a@x.io", fresh.Mail())
	assert.Equal(t, user.PasswordHash, fresh.Record().PasswordHash)
}

func TestAccountSetMailAfterPasswordChangedElsewhere(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "a@x.io", "secret1")

	stale := env.load(t, user)
	other := env.load(t, user)

	require.NoError(t, other.SetPassword(ctx, "secret2"))

	changed, err := stale.SetMail(ctx, "b@x.io", "secret1")
	require.NoError(t, err)
	assert.False(t, changed, "the old password no longer confirms")

	fresh := env.load(t, user)
	assert.Equal(t, "a@x.io", fresh.Mail())

	ok, err := fresh.CheckPassword(ctx, "secret2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccountConcurrentSetMailStaysConsistent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "a@x.io", "secret1")

	mails := []string{"b@x.io", "c@x.io", "d@x.io", "e@x.io"}

	var wg sync.WaitGroup
	for _, mail := range mails {
		account := env.load(t, user)
		wg.Add(1)
		go func(mail string) {
			defer wg.Done()
			_, err := account.SetMail(ctx, mail, "secret1")
			if err != nil {
				assert.True(t, IsCredentialConflict(err), "unexpected error %v", err)
			}
		}(mail)
	}
	wg.Wait()

	fresh := env.load(t, user)
	assert.Contains(t, mails, fresh.Mail())

	ok, err := fresh.CheckPassword(ctx, "secret1")
	require.NoError(t, err)
	assert.True(t, ok, "stored hash must match the stored mail")
}

func TestAccountSetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "a@x.io", "secret1")
	alice := env.load(t, user)

	require.NoError(t, alice.SetPassword(ctx, "secret2"))

	ok, err := alice.CheckPassword(ctx, "secret2")
	require.NoError(t, err)
	assert.True(t, ok)

	fresh := env.load(t, user)
	ok, err = fresh.CheckPassword(ctx, "secret1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = fresh.CheckPassword(ctx, "secret2")
	require.NoError(t, err)
	assert.True(t, ok)

	err = alice.SetPassword(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestAccountSetPasswordAfterMailChangedElsewhere(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "a@x.io", "secret1")

	stale := env.load(t, user)
	other := env.load(t, user)

	changed, err := other.SetMail(ctx, "b@x.io", "secret1")
	require.NoError(t, err)
	require.True(t, changed)

	err = stale.SetPassword(ctx, "secret2")
	assert.True(t, IsCredentialConflict(err))

	fresh := env.load(t, user)
	ok, err := fresh.CheckPassword(ctx, "secret1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccountUpdateReloads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "a@x.io", "secret1")
	alice := env.load(t, user)

	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	alice.SetData(DataKeyLanguage, "de")
	alice.Touch(at)
	require.NoError(t, alice.Update(ctx))

	assert.Equal(t, "de", alice.Language())
	require.NotNil(t, alice.LastActivity())
	assert.True(t, at.Equal(*alice.LastActivity()))

	fresh := env.load(t, user)
	assert.Equal(t, "de", fresh.Language())
}

func TestAccountUpdateDoesNotRevertRebind(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "a@x.io", "secret1")

	stale := env.load(t, user)
	other := env.load(t, user)

	changed, err := other.SetMail(ctx, "b@x.io", "secret1")
	require.NoError(t, err)
	require.True(t, changed)

	stale.SetData(DataKeyLanguage, "de")
	require.NoError(t, stale.Update(ctx))
	assert.Equal(t, "b@x.io", stale.Mail(), "update reloads the rebound mail")

	ok, err := stale.CheckPassword(ctx, "secret1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuestAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	guest, err := LoadAccount(ctx, env.repo, env.creds, GuestID)
	require.NoError(t, err)
	assert.True(t, guest.IsGuest())
	assert.False(t, guest.HasPassword())

	ok, err := guest.CheckPassword(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	changed, err := guest.SetMail(ctx, "g@x.io", "whatever")
	require.NoError(t, err)
	assert.False(t, changed)

	assert.ErrorIs(t, guest.SetPassword(ctx, "secret1"), ErrGuestAccount)
	assert.NoError(t, guest.Update(ctx))

	data := guest.TemplateData()
	assert.Equal(t, true, data["isGuest"])
	assert.Nil(t, data["name"])
	assert.Nil(t, data["mail"])
}

func TestLoadAccountNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := LoadAccount(context.Background(), env.repo, env.creds, uuid.New())
	assert.True(t, IsUserNotFound(err))
}

func TestAccountTemplateData(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "alice", "a@x.io", "secret1")
	alice := env.load(t, user)

	data := alice.TemplateData()
	assert.Equal(t, user.ID.String(), data["id"])
	assert.Equal(t, "alice", data["name"])
	assert.Equal(t, "a@x.io", data["mail"])
	assert.Equal(t, true, data["hasPassword"])
	assert.Equal(t, false, data["isGuest"])
	assert.Nil(t, data["lastActivity"])
}

func TestAccountPasswordThenMailScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "a@x.com", "secret1")
	alice := env.load(t, user)

	require.NoError(t, alice.SetPassword(ctx, "secret2"))

	ok, err := alice.CheckPassword(ctx, "secret2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = alice.CheckPassword(ctx, "secret1")
	require.NoError(t, err)
	assert.False(t, ok)

	changed, err := alice.SetMail(ctx, "b@x.com", "secret2")
	require.NoError(t, err)
	assert.True(t, changed)

	ok, err = alice.CheckPassword(ctx, "secret2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b@x.com", env.load(t, user).Mail())
}
