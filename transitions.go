package login

import (
	"context"

	"github.com/goliatone/go-login/notify"
)

// Transition names one state change the login page can perform
type Transition string

const (
	TransitionLogin          Transition = "login"
	TransitionLogout         Transition = "logout"
	TransitionChangeMail     Transition = "change_mail"
	TransitionChangePassword Transition = "change_password"
	TransitionChangeLanguage Transition = "change_language"
)

const messagePrefix = "system.page.login."

// Notification keys, without messagePrefix
const (
	MsgLoginSuccess            = "login.success"
	MsgLoginUserPassword       = "login.error.userPassword"
	MsgLoginGeneric            = "login.error.generic"
	MsgLogoutSuccess           = "logout.success"
	MsgLogoutGuest             = "logout.error.guest"
	MsgChangeMailSuccess       = "changeMail.success"
	MsgChangeMailMissing       = "changeMail.error.missing"
	MsgChangeMailPattern       = "changeMail.error.mailPattern"
	MsgChangeMailWrongPassword = "changeMail.error.wrongPassword"
	MsgChangeMailGeneric       = "changeMail.error.generic"
	MsgChangePasswordSuccess   = "changePassword.success"
	MsgChangePasswordMissing   = "changePassword.error.missing"
	MsgChangePasswordMismatch  = "changePassword.error.mismatch"
	MsgChangePasswordGuest     = "changePassword.error.guest"
	MsgChangePasswordGeneric   = "changePassword.error.generic"
	MsgChooseLanguageSuccess   = "chooseLanguage.success"
	MsgChooseLanguageNotExists = "chooseLanguage.error.notExists"
)

// MessageKey returns the full translation key for msg
func MessageKey(msg string) string {
	return messagePrefix + msg
}

// TransitionResult describes what a transition did. The controller
// applies results in one place.
type TransitionResult struct {
	Transition   Transition
	Mutated      bool
	Notification *notify.Notification
	Persist      bool
	Redirect     string

	outcome string
	event   *ActivityEvent
}

func succeeded(t Transition, msg string, params map[string]any) *TransitionResult {
	return &TransitionResult{
		Transition: t,
		Mutated:    true,
		Notification: &notify.Notification{
			Severity: notify.SeveritySuccess,
			Key:      MessageKey(msg),
			Params:   params,
		},
		outcome: OutcomeSuccess,
	}
}

func rejected(t Transition, msg string) *TransitionResult {
	return &TransitionResult{
		Transition: t,
		Notification: &notify.Notification{
			Severity: notify.SeverityError,
			Key:      MessageKey(msg),
		},
		outcome: OutcomeRejected,
	}
}

func conflicted(t Transition, msg string) *TransitionResult {
	res := rejected(t, msg)
	res.outcome = OutcomeConflict
	return res
}

func (r *TransitionResult) withEvent(event ActivityEvent) *TransitionResult {
	r.event = &event
	return r
}

type transitionFunc func(ctx context.Context, st *flowState) (*TransitionResult, error)

func (c *Controller) login(ctx context.Context, st *flowState) (*TransitionResult, error) {
	sub := st.req.Submission
	if !sub.Has(FieldLogin) {
		return nil, nil
	}

	username := sub.Value(FieldUsername)
	failure := func() *TransitionResult {
		return rejected(TransitionLogin, MsgLoginUserPassword).withEvent(ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     actorFor(st.account),
			Metadata:  map[string]any{"username": username},
		})
	}

	if !sub.Filled(FieldUsername) || !sub.Filled(FieldPassword) {
		return failure(), nil
	}

	id, err := c.directory.ResolveUsername(ctx, username)
	if err != nil {
		if IsUserNotFound(err) {
			c.dummyVerify(ctx, sub.Value(FieldPassword))
			return failure(), nil
		}
		return nil, err
	}

	account, err := LoadAccount(ctx, c.repo, c.creds, id)
	if err != nil {
		if IsUserNotFound(err) {
			c.dummyVerify(ctx, sub.Value(FieldPassword))
			return failure(), nil
		}
		return nil, err
	}

	if !account.HasPassword() {
		c.dummyVerify(ctx, sub.Value(FieldPassword))
		return failure(), nil
	}

	ok, err := account.CheckPassword(ctx, sub.Value(FieldPassword))
	if err != nil {
		return nil, err
	}
	if !ok {
		return failure(), nil
	}

	if err := st.req.Session.Login(ctx, account.ID(), sub.Filled(FieldLongSession)); err != nil {
		c.logger.Warn("session login failed", "user", account.ID(), "error", err)
		res := rejected(TransitionLogin, MsgLoginGeneric)
		res.outcome = OutcomeError
		return res, nil
	}

	account.Touch(c.now())
	if err := account.Update(ctx); err != nil {
		c.logger.Warn("failed to record last activity", "user", account.ID(), "error", err)
	}
	st.account = account

	res := succeeded(TransitionLogin, MsgLoginSuccess, map[string]any{
		"userName": account.Name(),
	}).withEvent(ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     actorFor(account),
		UserID:    account.ID().String(),
		Metadata:  map[string]any{"remembered": sub.Filled(FieldLongSession)},
	})

	if sub.Segment(0) == SegmentRefer {
		res.Persist = true
		res.Redirect = c.referTarget(sub)
	}

	return res, nil
}

const dummyMail = "nobody@login.invalid"

// dummyVerify runs one verification against a throwaway hash so a failed
// lookup costs as much as a wrong password
func (c *Controller) dummyVerify(ctx context.Context, password string) {
	c.dummyMu.Lock()
	hash := c.dummyHash
	if hash == "" {
		derived, err := c.creds.Derive(ctx, "login-dummy-secret", dummyMail)
		if err != nil {
			c.dummyMu.Unlock()
			c.logger.Debug("failed to derive dummy hash", "error", err)
			return
		}
		c.dummyHash = derived
		hash = derived
	}
	c.dummyMu.Unlock()

	_, _ = c.creds.Verify(ctx, password, dummyMail, hash)
}

// referTarget rebuilds the return path from the segments after the
// refer marker, falling back to the HTTP referrer when none are given.
func (c *Controller) referTarget(sub Submission) string {
	if len(sub.Segments) > 1 {
		return joinPath(c.basePath, sub.Segments[1:]...)
	}
	if sub.Referrer != "" {
		return sub.Referrer
	}
	return joinPath(c.basePath)
}

func (c *Controller) logout(ctx context.Context, st *flowState) (*TransitionResult, error) {
	sub := st.req.Submission
	if sub.Segment(0) != SegmentLogout && !sub.HasQuery(QueryLogout) {
		return nil, nil
	}

	if st.req.Session.IsGuest() {
		return rejected(TransitionLogout, MsgLogoutGuest), nil
	}

	actor := actorFor(st.account)
	if err := st.req.Session.Logout(ctx); err != nil {
		return nil, err
	}
	st.account = GuestAccount(c.repo, c.creds)

	res := succeeded(TransitionLogout, MsgLogoutSuccess, nil).withEvent(ActivityEvent{
		EventType: ActivityEventLogout,
		Actor:     actor,
		UserID:    actor.ID,
	})
	res.Persist = true
	res.Redirect = joinPath(c.basePath)
	return res, nil
}

func (c *Controller) changeMail(ctx context.Context, st *flowState) (*TransitionResult, error) {
	sub := st.req.Submission
	if !sub.Has(FieldChangeMailSubmit) {
		return nil, nil
	}

	if !sub.Has(FieldChangeMail) || !sub.Has(FieldChangeMailPassword) {
		return rejected(TransitionChangeMail, MsgChangeMailMissing), nil
	}

	mail := sub.Value(FieldChangeMail)
	if err := ValidateMail(mail); err != nil {
		return rejected(TransitionChangeMail, MsgChangeMailPattern), nil
	}

	oldMail := st.account.Mail()
	ok, err := st.account.SetMail(ctx, mail, sub.Value(FieldChangeMailPassword))
	if err != nil {
		if IsCredentialConflict(err) {
			c.logger.Warn("mail change lost a concurrent update", "user", st.account.ID())
			return conflicted(TransitionChangeMail, MsgChangeMailGeneric), nil
		}
		return nil, err
	}
	if !ok {
		return rejected(TransitionChangeMail, MsgChangeMailWrongPassword), nil
	}

	return succeeded(TransitionChangeMail, MsgChangeMailSuccess, map[string]any{
		"newMail": st.account.Mail(),
	}).withEvent(ActivityEvent{
		EventType: ActivityEventMailChanged,
		Actor:     actorFor(st.account),
		UserID:    st.account.ID().String(),
		Metadata:  map[string]any{"from": oldMail, "to": st.account.Mail()},
	}), nil
}

func (c *Controller) changePassword(ctx context.Context, st *flowState) (*TransitionResult, error) {
	sub := st.req.Submission
	if !sub.Has(FieldChangePasswordSubmit) {
		return nil, nil
	}

	if !sub.Filled(FieldChangePassword1) || !sub.Filled(FieldChangePassword2) {
		return rejected(TransitionChangePassword, MsgChangePasswordMissing), nil
	}

	if sub.Value(FieldChangePassword1) != sub.Value(FieldChangePassword2) {
		return rejected(TransitionChangePassword, MsgChangePasswordMismatch), nil
	}

	if st.account.IsGuest() {
		return rejected(TransitionChangePassword, MsgChangePasswordGuest), nil
	}

	if err := st.account.SetPassword(ctx, sub.Value(FieldChangePassword1)); err != nil {
		if IsCredentialConflict(err) {
			c.logger.Warn("password change lost a concurrent update", "user", st.account.ID())
			return conflicted(TransitionChangePassword, MsgChangePasswordGeneric), nil
		}
		return nil, err
	}

	return succeeded(TransitionChangePassword, MsgChangePasswordSuccess, nil).withEvent(ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     actorFor(st.account),
		UserID:    st.account.ID().String(),
	}), nil
}

func (c *Controller) changeLanguage(ctx context.Context, st *flowState) (*TransitionResult, error) {
	sub := st.req.Submission
	if !sub.Has(FieldChooseLanguageSubmit) {
		return nil, nil
	}

	lang, ok := findLanguage(st.languages, sub.Value(FieldChooseLanguage))
	if !ok {
		return rejected(TransitionChangeLanguage, MsgChooseLanguageNotExists), nil
	}

	if st.account.IsGuest() {
		if err := st.req.Session.SetLanguage(ctx, lang.ID); err != nil {
			return nil, err
		}
	} else {
		st.account.SetData(DataKeyLanguage, lang.ID)
		if err := st.account.Update(ctx); err != nil {
			return nil, err
		}
	}

	res := succeeded(TransitionChangeLanguage, MsgChooseLanguageSuccess, map[string]any{
		"language": lang.ID,
	}).withEvent(ActivityEvent{
		EventType: ActivityEventLanguageChanged,
		Actor:     actorFor(st.account),
		UserID:    st.account.ID().String(),
		Metadata:  map[string]any{"language": lang.ID},
	})

	if c.languageRedirect {
		res.Persist = true
		res.Redirect = joinPath(c.basePath, c.pagePath)
	}
	return res, nil
}
