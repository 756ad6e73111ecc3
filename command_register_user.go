package login

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// RegisterUserHandler creates accounts with a mail-bound password hash
type RegisterUserHandler struct {
	repo      RepositoryManager
	creds     Credentials
	UseHashid bool
}

func NewRegisterUserHandler(repo RepositoryManager, creds Credentials) *RegisterUserHandler {
	return &RegisterUserHandler{repo: repo, creds: creds}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{
		Username: strings.TrimSpace(event.Username),
		Email:    strings.TrimSpace(event.Email),
	}

	if event.Language != "" {
		user.SetData(DataKeyLanguage, event.Language)
	}

	if h.UseHashid {
		if id, err := hashid.NewUUID(strings.ToLower(user.Username)); err == nil {
			user.ID = id
		}
	}

	hash, err := h.creds.Derive(ctx, event.Password, user.Email)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	user.PasswordHash = hash

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().GetByUsernameTx(ctx, tx, user.Username); err == nil {
			return goerrors.New("username already taken", goerrors.CategoryConflict).
				WithTextCode("USERNAME_TAKEN").
				WithMetadata(map[string]any{"username": user.Username})
		} else if !IsUserNotFound(err) {
			return err
		}

		if _, err := h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	return user, nil
}
