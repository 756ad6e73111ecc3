package login

import (
	"context"

	"github.com/goliatone/go-login/session"
)

var accountCtxKey = &contextKey{"account"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithAccountContext sets the acting Account in the given context
func WithAccountContext(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountCtxKey, account)
}

// AccountFromContext finds the acting account. Activity sinks receive a
// context carrying the account as it is after the transition.
func AccountFromContext(ctx context.Context) (*Account, bool) {
	raw, ok := ctx.Value(accountCtxKey).(*Account)
	return raw, ok && raw != nil
}

// WithSessionContext sets the request session in the given context
func WithSessionContext(ctx context.Context, sess *session.Manager) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sess)
}

// SessionFromContext finds the request session
func SessionFromContext(ctx context.Context) (*session.Manager, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*session.Manager)
	return raw, ok && raw != nil
}
