package login

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the request scoped view of one user. Mail and password
// hash only change together through SetMail or SetPassword, and only
// after the write committed. Not safe for concurrent use.
type Account struct {
	record *User
	repo   RepositoryManager
	creds  Credentials
}

// GuestAccount returns the synthetic guest, which has no mail,
// no password and no persisted record.
func GuestAccount(repo RepositoryManager, creds Credentials) *Account {
	return &Account{
		record: &User{ID: GuestID, Data: map[string]any{}},
		repo:   repo,
		creds:  creds,
	}
}

// LoadAccount resolves id to an account. GuestID never hits the store.
func LoadAccount(ctx context.Context, repo RepositoryManager, creds Credentials, id uuid.UUID) (*Account, error) {
	if id == GuestID {
		return GuestAccount(repo, creds), nil
	}

	record, err := repo.Users().GetByID(ctx, id.String())
	if err != nil {
		return nil, err
	}

	if record.Data == nil {
		record.Data = map[string]any{}
	}

	return &Account{
		record: record,
		repo:   repo,
		creds:  creds,
	}, nil
}

func (a *Account) ID() uuid.UUID { return a.record.ID }

func (a *Account) Name() string { return a.record.Username }

func (a *Account) Mail() string { return a.record.Email }

func (a *Account) IsGuest() bool { return a.record.ID == GuestID }

func (a *Account) HasPassword() bool { return a.record.HasPassword() }

func (a *Account) LastActivity() *time.Time { return a.record.LastActivityAt }

// Record returns a copy of the backing record
func (a *Account) Record() *User { return a.record.clone() }

// CheckPassword verifies plain against the current mail and hash
func (a *Account) CheckPassword(ctx context.Context, plain string) (bool, error) {
	if a.IsGuest() || !a.HasPassword() {
		return false, nil
	}
	return a.creds.Verify(ctx, plain, a.record.Email, a.record.PasswordHash)
}

// SetPassword derives a new hash bound to the current mail and
// persists it right away.
func (a *Account) SetPassword(ctx context.Context, plain string) error {
	if a.IsGuest() {
		return ErrGuestAccount
	}

	mail := a.record.Email
	hash, err := a.creds.Derive(ctx, plain, mail)
	if err != nil {
		return err
	}

	change := CredentialChange{
		ID:       a.record.ID,
		FromMail: mail,
		Mail:     mail,
		Hash:     hash,
	}

	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return a.repo.Users().RebindCredentialsTx(ctx, tx, change)
	})
	if err != nil {
		return wrapPersistence(err, "failed to persist password")
	}

	a.record.PasswordHash = hash
	return nil
}

// SetMail changes the mail address and rebinds the password hash to
// it in one write. It returns false, without mutating anything, when
// confirmingPassword does not verify against the old mail.
func (a *Account) SetMail(ctx context.Context, mail, confirmingPassword string) (bool, error) {
	ok, err := a.CheckPassword(ctx, confirmingPassword)
	if err != nil || !ok {
		return false, err
	}

	hash, err := a.creds.Derive(ctx, confirmingPassword, mail)
	if err != nil {
		return false, err
	}

	verified := true
	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := a.repo.Users().GetByIDTx(ctx, tx, a.record.ID.String(), SelectForUpdate(tx))
		if err != nil {
			return err
		}

		// the row moved on since we loaded it, confirm against what is stored now
		if current.Email != a.record.Email || current.PasswordHash != a.record.PasswordHash {
			ok, err := a.creds.Verify(ctx, confirmingPassword, current.Email, current.PasswordHash)
			if err != nil {
				return err
			}
			if !ok {
				verified = false
				return nil
			}
		}

		return a.repo.Users().RebindCredentialsTx(ctx, tx, CredentialChange{
			ID:        a.record.ID,
			FromMail:  current.Email,
			FromHash:  current.PasswordHash,
			MatchHash: true,
			Mail:      mail,
			Hash:      hash,
		})
	})
	if err != nil {
		return false, wrapPersistence(err, "failed to rebind credentials")
	}

	if !verified {
		return false, nil
	}

	a.record.Email = mail
	a.record.PasswordHash = hash
	return true, nil
}

// SetName changes the display name, persisted on Update
func (a *Account) SetName(name string) {
	a.record.Username = name
}

// Touch sets the last activity, persisted on Update
func (a *Account) Touch(at time.Time) {
	a.record.LastActivityAt = &at
}

// SetData stores key in the data bag, persisted on Update
func (a *Account) SetData(key string, value any) {
	a.record.SetData(key, value)
}

// GetData returns the value stored under key
func (a *Account) GetData(key string) (any, bool) {
	if a.record.Data == nil {
		return nil, false
	}
	v, ok := a.record.Data[key]
	return v, ok
}

// Language returns the stored language preference, if any
func (a *Account) Language() string {
	v, ok := a.GetData(DataKeyLanguage)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Update persists name, last activity and data, then reloads the
// record inside the same transaction. Guests are never persisted.
func (a *Account) Update(ctx context.Context) error {
	if a.IsGuest() {
		return nil
	}

	var fresh *User
	err := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := a.repo.Users().UpdateProfileTx(ctx, tx, a.record); err != nil {
			return err
		}

		var err error
		fresh, err = a.repo.Users().GetByIDTx(ctx, tx, a.record.ID.String())
		return err
	})
	if err != nil {
		return wrapPersistence(err, "failed to update user")
	}

	if fresh.Data == nil {
		fresh.Data = map[string]any{}
	}
	a.record = fresh
	return nil
}

// TemplateData returns the account attributes for the view layer
func (a *Account) TemplateData() map[string]any {
	var lastActivity any
	if a.record.LastActivityAt != nil {
		lastActivity = a.record.LastActivityAt.Unix()
	}

	data := map[string]any{
		"id":           a.record.ID.String(),
		"name":         a.record.Username,
		"mail":         a.record.Email,
		"lastActivity": lastActivity,
		"hasPassword":  a.HasPassword(),
		"isGuest":      a.IsGuest(),
	}
	if a.IsGuest() {
		data["name"] = nil
		data["mail"] = nil
	}
	return data
}

func wrapPersistence(err error, msg string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
