package login

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-login/notify"
	"github.com/goliatone/go-login/session"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type failingSessionStore struct {
	session.Store
	failSave bool
}

func (s *failingSessionStore) Save(ctx context.Context, id string, record session.Record, ttl time.Duration) error {
	if s.failSave {
		return errors.New("store down")
	}
	return s.Store.Save(ctx, id, record, ttl)
}

type controllerEnv struct {
	*testEnv
	sessions session.Store
	carried  *notify.MemoryStore
	activity *recordingSink
	metrics  *Metrics
	ctrl     *Controller
	alice    *User
}

var testLanguages = StaticLanguages{
	{ID: "en", Name: "English", Locale: "en_US"},
	{ID: "de", Name: "Deutsch", Locale: "de_DE"},
}

func newControllerEnv(t *testing.T, opts ...ControllerOption) *controllerEnv {
	t.Helper()

	env := &controllerEnv{
		testEnv:  newTestEnv(t),
		sessions: session.NewMemoryStore(),
		carried:  notify.NewMemoryStore(time.Minute),
		activity: &recordingSink{},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}

	opts = append([]ControllerOption{
		WithActivitySink(env.activity),
		WithMetrics(env.metrics),
	}, opts...)

	env.ctrl = NewController(env.repo, env.creds, testLanguages, opts...)
	env.alice = env.register(t, "alice", "a@x.io", "secret1")
	return env
}

func (e *controllerEnv) open(t *testing.T, id string) *session.Manager {
	t.Helper()
	sess, err := session.Open(context.Background(), e.sessions, id)
	require.NoError(t, err)
	return sess
}

func (e *controllerEnv) handle(t *testing.T, sess *session.Manager, sub Submission) (*Effects, []notify.Notification) {
	t.Helper()
	ctx := context.Background()

	sink := notify.NewSink(e.carried)
	require.NoError(t, sink.Restore(ctx, sess.ID()))

	effects, err := e.ctrl.Handle(ctx, Request{
		Submission:    sub,
		Session:       sess,
		Notifications: sink,
	})
	require.NoError(t, err)

	notes, err := sink.Commit(ctx, sess.ID(), effects.Redirecting())
	require.NoError(t, err)
	return effects, notes
}

func (e *controllerEnv) loggedIn(t *testing.T) *session.Manager {
	t.Helper()
	sess := e.open(t, "")
	require.NoError(t, sess.Login(context.Background(), e.alice.ID, false))
	return sess
}

func form(kv ...string) Submission {
	f := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[kv[i]] = kv[i+1]
	}
	return Submission{Form: f}
}

func keys(notes []notify.Notification) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Key)
	}
	return out
}

func TestControllerLoginSuccess(t *testing.T) {
	env := newControllerEnv(t)
	sess := env.open(t, "")
	guestID := sess.ID()

	effects, notes := env.handle(t, sess, form(
		FieldLogin, "1",
		FieldUsername, "alice",
		FieldPassword, "secret1",
	))

	assert.False(t, effects.Redirecting())
	assert.False(t, sess.IsGuest())
	assert.Equal(t, env.alice.ID, sess.CurrentUser())
	assert.False(t, sess.Remembered())
	assert.NotEqual(t, guestID, sess.ID(), "login rotates the session id")

	require.Len(t, notes, 1)
	assert.Equal(t, MessageKey(MsgLoginSuccess), notes[0].Key)
	assert.Equal(t, notify.SeveritySuccess, notes[0].Severity)
	assert.Equal(t, "alice", notes[0].Params["userName"])

	user := effects.View["user"].(map[string]any)
	assert.Equal(t, "alice", user["name"])
	assert.NotNil(t, user["lastActivity"])

	assert.Equal(t, []ActivityEventType{ActivityEventLoginSuccess}, env.activity.types())
}

func TestControllerLoginRemember(t *testing.T) {
	env := newControllerEnv(t)
	sess := env.open(t, "")

	env.handle(t, sess, form(
		FieldLogin, "1",
		FieldUsername, "alice",
		FieldPassword, "secret1",
		FieldLongSession, "on",
	))

	assert.True(t, sess.Remembered())
}

func TestControllerLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newControllerEnv(t)

	cases := map[string]Submission{
		"unknown user":     form(FieldLogin, "1", FieldUsername, "bob", FieldPassword, "secret1"),
		"wrong password":   form(FieldLogin, "1", FieldUsername, "alice", FieldPassword, "nope"),
		"missing password": form(FieldLogin, "1", FieldUsername, "alice"),
		"missing username": form(FieldLogin, "1", FieldPassword, "secret1"),
		"invalid username": form(FieldLogin, "1", FieldUsername, "x' OR 1=1", FieldPassword, "secret1"),
	}

	var reference []notify.Notification
	for name, sub := range cases {
		t.Run(name, func(t *testing.T) {
			sess := env.open(t, "")
			effects, notes := env.handle(t, sess, sub)

			assert.False(t, effects.Redirecting())
			assert.True(t, sess.IsGuest())
			require.Len(t, notes, 1)
			assert.Equal(t, MessageKey(MsgLoginUserPassword), notes[0].Key)
			assert.Equal(t, notify.SeverityError, notes[0].Severity)

			if reference == nil {
				reference = notes
			}
			assert.Equal(t, reference, notes)
		})
	}
}

type countingCreds struct {
	Credentials
	verifies atomic.Int32
}

func (c *countingCreds) Verify(ctx context.Context, password, mail, hash string) (bool, error) {
	c.verifies.Add(1)
	return c.Credentials.Verify(ctx, password, mail, hash)
}

func TestControllerLoginFailuresCostOneVerification(t *testing.T) {
	env := newControllerEnv(t)
	creds := &countingCreds{Credentials: env.creds}
	env.ctrl = NewController(env.repo, creds, testLanguages)

	cases := map[string]Submission{
		"unknown user":     form(FieldLogin, "1", FieldUsername, "bob", FieldPassword, "secret1"),
		"invalid username": form(FieldLogin, "1", FieldUsername, "x' OR 1=1", FieldPassword, "secret1"),
		"wrong password":   form(FieldLogin, "1", FieldUsername, "alice", FieldPassword, "nope"),
	}

	for name, sub := range cases {
		t.Run(name, func(t *testing.T) {
			creds.verifies.Store(0)
			env.handle(t, env.open(t, ""), sub)
			assert.Equal(t, int32(1), creds.verifies.Load())
		})
	}
}

func TestControllerLoginSessionStoreFailure(t *testing.T) {
	env := newControllerEnv(t)
	env.sessions = &failingSessionStore{Store: session.NewMemoryStore(), failSave: true}

	sess := env.open(t, "")
	effects, notes := env.handle(t, sess, form(
		FieldLogin, "1",
		FieldUsername, "alice",
		FieldPassword, "secret1",
	))

	assert.False(t, effects.Redirecting())
	assert.True(t, sess.IsGuest())
	assert.Equal(t, []string{MessageKey(MsgLoginGeneric)}, keys(notes))
}

func TestControllerLoginReferSegments(t *testing.T) {
	env := newControllerEnv(t, WithBasePath("site"))
	sess := env.open(t, "")

	sub := form(FieldLogin, "1", FieldUsername, "alice", FieldPassword, "secret1")
	sub.Segments = []string{SegmentRefer, "news", "2024"}
	sub.Referrer = "https://elsewhere.example/"

	effects, notes := env.handle(t, sess, sub)
	assert.Equal(t, "/site/news/2024/", effects.Redirect)
	assert.Empty(t, notes)
	assert.Nil(t, effects.View)

	_, notes = env.handle(t, sess, Submission{})
	assert.Equal(t, []string{MessageKey(MsgLoginSuccess)}, keys(notes), "success is carried across the redirect")

	_, notes = env.handle(t, sess, Submission{})
	assert.Empty(t, notes, "carried notifications render once")
}

func TestControllerLoginReferFallsBackToReferrer(t *testing.T) {
	env := newControllerEnv(t)

	sub := form(FieldLogin, "1", FieldUsername, "alice", FieldPassword, "secret1")
	sub.Segments = []string{SegmentRefer}
	sub.Referrer = "/forum/thread/1"

	effects, _ := env.handle(t, env.open(t, ""), sub)
	assert.Equal(t, "/forum/thread/1", effects.Redirect)

	sub.Referrer = ""
	effects, _ = env.handle(t, env.open(t, ""), sub)
	assert.Equal(t, "/", effects.Redirect)
}

func TestControllerRedirectStopsEvaluation(t *testing.T) {
	env := newControllerEnv(t)

	sub := form(
		FieldLogin, "1",
		FieldUsername, "alice",
		FieldPassword, "secret1",
		FieldChangeMailSubmit, "1",
		FieldChangeMail, "b@x.io",
		FieldChangeMailPassword, "secret1",
	)
	sub.Segments = []string{SegmentRefer, "home"}

	effects, _ := env.handle(t, env.open(t, ""), sub)
	require.True(t, effects.Redirecting())
	require.Len(t, effects.Transitions, 1)

	got, err := env.repo.Users().GetByID(context.Background(), env.alice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", got.Email)
}

func TestControllerLogoutGuest(t *testing.T) {
	env := newControllerEnv(t)
	sess := env.open(t, "")
	id := sess.ID()

	effects, notes := env.handle(t, sess, Submission{Segments: []string{SegmentLogout}})

	assert.False(t, effects.Redirecting())
	assert.Equal(t, []string{MessageKey(MsgLogoutGuest)}, keys(notes))
	assert.True(t, sess.IsGuest())
	assert.Equal(t, id, sess.ID(), "guest logout leaves the session untouched")
}

func TestControllerLogout(t *testing.T) {
	for name, sub := range map[string]Submission{
		"segment": {Segments: []string{SegmentLogout}},
		"query":   {Query: map[string]string{QueryLogout: ""}},
	} {
		t.Run(name, func(t *testing.T) {
			env := newControllerEnv(t, WithBasePath("/site/"))
			sess := env.loggedIn(t)
			before := sess.ID()

			effects, notes := env.handle(t, sess, sub)

			assert.Equal(t, "/site/", effects.Redirect)
			assert.Empty(t, notes)
			assert.True(t, sess.IsGuest())
			assert.NotEqual(t, before, sess.ID())

			_, err := env.sessions.Load(context.Background(), before)
			assert.Error(t, err, "old session record is gone")

			next := env.open(t, sess.ID())
			_, notes = env.handle(t, next, Submission{})
			assert.Equal(t, []string{MessageKey(MsgLogoutSuccess)}, keys(notes))

			assert.Contains(t, env.activity.types(), ActivityEventLogout)
		})
	}
}

func TestControllerChangeMail(t *testing.T) {
	tests := []struct {
		name     string
		sub      Submission
		wantKey  string
		wantMail string
	}{
		{
			name:     "missing",
			sub:      form(FieldChangeMailSubmit, "1", FieldChangeMail, "b@x.io"),
			wantKey:  MsgChangeMailMissing,
			wantMail: "a@x.io",
		},
		{
			name:     "pattern",
			sub:      form(FieldChangeMailSubmit, "1", FieldChangeMail, "not-a-mail", FieldChangeMailPassword, "secret1"),
			wantKey:  MsgChangeMailPattern,
			wantMail: "a@x.io",
		},
		{
			name:     "wrong password",
			sub:      form(FieldChangeMailSubmit, "1", FieldChangeMail, "b@x.io", FieldChangeMailPassword, "nope"),
			wantKey:  MsgChangeMailWrongPassword,
			wantMail: "a@x.io",
		},
		{
			name:     "success",
			sub:      form(FieldChangeMailSubmit, "1", FieldChangeMail, "b@x.io", FieldChangeMailPassword, "secret1"),
			wantKey:  MsgChangeMailSuccess,
			wantMail: "b@x.io",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newControllerEnv(t)
			sess := env.loggedIn(t)

			effects, notes := env.handle(t, sess, tt.sub)
			assert.Equal(t, []string{MessageKey(tt.wantKey)}, keys(notes))

			got, err := env.repo.Users().GetByID(context.Background(), env.alice.ID.String())
			require.NoError(t, err)
			assert.Equal(t, tt.wantMail, got.Email)

			page := effects.View["loginPage"].(map[string]any)
			assert.Equal(t, tt.sub.Form[FieldChangeMail], page["changeMail"])
		})
	}
}

func TestControllerChangeMailThenLogin(t *testing.T) {
	env := newControllerEnv(t)
	sess := env.loggedIn(t)

	_, notes := env.handle(t, sess, form(
		FieldChangeMailSubmit, "1",
		FieldChangeMail, "b@x.io",
		FieldChangeMailPassword, "secret1",
	))
	require.Len(t, notes, 1)
	assert.Equal(t, "b@x.io", notes[0].Params["newMail"])

	fresh := env.open(t, "")
	env.handle(t, fresh, form(FieldLogin, "1", FieldUsername, "alice", FieldPassword, "secret1"))
	assert.Equal(t, env.alice.ID, fresh.CurrentUser(), "password still works after the mail rebind")
}

func TestControllerChangeMailAsGuest(t *testing.T) {
	env := newControllerEnv(t)

	_, notes := env.handle(t, env.open(t, ""), form(
		FieldChangeMailSubmit, "1",
		FieldChangeMail, "b@x.io",
		FieldChangeMailPassword, "secret1",
	))
	assert.Equal(t, []string{MessageKey(MsgChangeMailWrongPassword)}, keys(notes))
}

func TestControllerChangePassword(t *testing.T) {
	tests := []struct {
		name    string
		sub     Submission
		guest   bool
		wantKey string
		wantPw  string
	}{
		{
			name:    "missing",
			sub:     form(FieldChangePasswordSubmit, "1", FieldChangePassword1, "secret2"),
			wantKey: MsgChangePasswordMissing,
			wantPw:  "secret1",
		},
		{
			name:    "empty",
			sub:     form(FieldChangePasswordSubmit, "1", FieldChangePassword1, "", FieldChangePassword2, ""),
			wantKey: MsgChangePasswordMissing,
			wantPw:  "secret1",
		},
		{
			name:    "mismatch",
			sub:     form(FieldChangePasswordSubmit, "1", FieldChangePassword1, "secret2", FieldChangePassword2, "secret3"),
			wantKey: MsgChangePasswordMismatch,
			wantPw:  "secret1",
		},
		{
			name:    "guest",
			sub:     form(FieldChangePasswordSubmit, "1", FieldChangePassword1, "secret2", FieldChangePassword2, "secret2"),
			guest:   true,
			wantKey: MsgChangePasswordGuest,
			wantPw:  "secret1",
		},
		{
			name:    "success",
			sub:     form(FieldChangePasswordSubmit, "1", FieldChangePassword1, "secret2", FieldChangePassword2, "secret2"),
			wantKey: MsgChangePasswordSuccess,
			wantPw:  "secret2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newControllerEnv(t)
			sess := env.open(t, "")
			if !tt.guest {
				sess = env.loggedIn(t)
			}

			_, notes := env.handle(t, sess, tt.sub)
			assert.Equal(t, []string{MessageKey(tt.wantKey)}, keys(notes))

			account := env.load(t, env.alice)
			ok, err := account.CheckPassword(context.Background(), tt.wantPw)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestControllerChangeLanguage(t *testing.T) {
	env := newControllerEnv(t)
	sess := env.loggedIn(t)

	effects, notes := env.handle(t, sess, form(FieldChooseLanguageSubmit, "1", FieldChooseLanguage, "fr"))
	assert.Equal(t, []string{MessageKey(MsgChooseLanguageNotExists)}, keys(notes))
	assert.False(t, effects.Redirecting())
	assert.Equal(t, "", env.load(t, env.alice).Language())

	effects, notes = env.handle(t, sess, form(FieldChooseLanguageSubmit, "1", FieldChooseLanguage, "de"))
	assert.Equal(t, []string{MessageKey(MsgChooseLanguageSuccess)}, keys(notes))
	assert.False(t, effects.Redirecting())
	assert.Equal(t, "de", env.load(t, env.alice).Language())

	page := effects.View["loginPage"].(map[string]any)
	assert.Equal(t, "de", page["language"])
	assert.Len(t, page["availableLanguages"], 2)
}

func TestControllerChangeLanguageGuest(t *testing.T) {
	env := newControllerEnv(t)
	sess := env.open(t, "")

	effects, notes := env.handle(t, sess, form(FieldChooseLanguageSubmit, "1", FieldChooseLanguage, "de"))
	assert.Equal(t, []string{MessageKey(MsgChooseLanguageSuccess)}, keys(notes))
	assert.Equal(t, "de", sess.Language())

	page := effects.View["loginPage"].(map[string]any)
	assert.Equal(t, "de", page["language"])

	again := env.open(t, sess.ID())
	assert.Equal(t, "de", again.Language())
}

func TestControllerChangeLanguageRedirect(t *testing.T) {
	env := newControllerEnv(t, WithLanguageRedirect(true), WithBasePath("site"), WithPagePath("login"))
	sess := env.loggedIn(t)

	effects, notes := env.handle(t, sess, form(FieldChooseLanguageSubmit, "1", FieldChooseLanguage, "de"))
	assert.Equal(t, "/site/login/", effects.Redirect)
	assert.Empty(t, notes)

	_, notes = env.handle(t, sess, Submission{})
	assert.Equal(t, []string{MessageKey(MsgChooseLanguageSuccess)}, keys(notes))
}

func TestControllerSessionForDeletedUser(t *testing.T) {
	env := newControllerEnv(t)
	sess := env.open(t, "")
	require.NoError(t, sess.Login(context.Background(), uuid.New(), false))

	effects, notes := env.handle(t, sess, Submission{})
	assert.Empty(t, notes)
	assert.True(t, sess.IsGuest())

	user := effects.View["user"].(map[string]any)
	assert.Equal(t, true, user["isGuest"])
}

func TestControllerView(t *testing.T) {
	env := newControllerEnv(t, WithDebug(true))

	effects, notes := env.handle(t, env.open(t, ""), Submission{})
	assert.Empty(t, notes)

	page := effects.View["loginPage"].(map[string]any)
	assert.Equal(t, MailPattern, page["mailPattern"])
	assert.Equal(t, UsernamePattern, page["usernamePattern"])
	assert.Nil(t, page["changeMail"])
}

func TestControllerRequiresSessionAndSink(t *testing.T) {
	env := newControllerEnv(t)

	_, err := env.ctrl.Handle(context.Background(), Request{})
	assert.Error(t, err)
}

func TestControllerCancelledContext(t *testing.T) {
	env := newControllerEnv(t)
	sess := env.open(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.ctrl.Handle(ctx, Request{
		Submission:    Submission{},
		Session:       sess,
		Notifications: notify.NewSink(nil),
	})
	assert.Error(t, err)
}
