package login

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-login/notify"
	"github.com/goliatone/go-login/session"
	"github.com/goliatone/go-print"
)

const DefaultOperationTimeout = 10 * time.Second

// Request is everything one login page request hands to the controller
type Request struct {
	Submission    Submission
	Session       *session.Manager
	Notifications *notify.Sink
}

// Effects is what the HTTP layer must do once the controller returns.
// Redirect is empty when the page should render View.
type Effects struct {
	Redirect    string
	View        map[string]any
	Transitions []TransitionResult
}

// Redirecting reports whether the response is a redirect
func (e *Effects) Redirecting() bool {
	return e != nil && e.Redirect != ""
}

type ControllerOption func(*Controller)

func WithLogger(l Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = normalizeLogger(l)
	}
}

func WithActivitySink(s ActivitySink) ControllerOption {
	return func(c *Controller) {
		c.activity = normalizeActivitySink(s)
	}
}

func WithMetrics(m *Metrics) ControllerOption {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithLanguageRedirect redirects back to the page after a language change
func WithLanguageRedirect(enabled bool) ControllerOption {
	return func(c *Controller) {
		c.languageRedirect = enabled
	}
}

func WithBasePath(base string) ControllerOption {
	return func(c *Controller) {
		c.basePath = base
	}
}

func WithPagePath(page string) ControllerOption {
	return func(c *Controller) {
		if page != "" {
			c.pagePath = page
		}
	}
}

func WithOperationTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithDebug(debug bool) ControllerOption {
	return func(c *Controller) {
		c.debug = debug
	}
}

func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithConfig applies every controller setting found in cfg
func WithConfig(cfg Config) ControllerOption {
	return func(c *Controller) {
		if cfg == nil {
			return
		}
		WithBasePath(cfg.GetBasePath())(c)
		WithPagePath(cfg.GetPagePath())(c)
		WithOperationTimeout(cfg.GetOperationTimeout())(c)
		WithLanguageRedirect(cfg.GetLanguageRedirect())(c)
		WithDebug(cfg.GetDebug())(c)
	}
}

// Controller evaluates login page submissions against the session and
// the stored user. Transitions run in a fixed order and evaluation stops
// at the first one that redirects.
type Controller struct {
	repo      RepositoryManager
	creds     Credentials
	directory *Directory
	languages LanguageProvider

	logger   Logger
	activity ActivitySink
	metrics  *Metrics
	now      func() time.Time

	basePath         string
	pagePath         string
	timeout          time.Duration
	languageRedirect bool
	debug            bool

	transitions []transitionFunc

	dummyMu   sync.Mutex
	dummyHash string
}

type flowState struct {
	req       Request
	account   *Account
	languages []Language
}

func NewController(repo RepositoryManager, creds Credentials, languages LanguageProvider, opts ...ControllerOption) *Controller {
	c := &Controller{
		repo:      repo,
		creds:     creds,
		languages: languages,
		logger:    defLogger{},
		activity:  noopActivitySink{},
		now:       time.Now,
		pagePath:  "login",
		timeout:   DefaultOperationTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.languages == nil {
		c.languages = StaticLanguages(nil)
	}

	c.directory = NewDirectory(repo.Users()).WithLogger(c.logger)
	c.transitions = []transitionFunc{
		c.login,
		c.logout,
		c.changeMail,
		c.changePassword,
		c.changeLanguage,
	}
	return c
}

// Handle runs every transition the submission asks for. Validation
// failures become notifications, infrastructure failures are returned.
func (c *Controller) Handle(ctx context.Context, req Request) (*Effects, error) {
	if req.Session == nil || req.Notifications == nil {
		return nil, goerrors.New("request requires a session and a notification sink", goerrors.CategoryBadInput).
			WithTextCode("INVALID_REQUEST")
	}

	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled before handling login page")
	default:
	}

	ctx = WithSessionContext(ctx, req.Session)

	started := c.now()
	defer func() {
		c.metrics.observeHandle(c.now().Sub(started))
	}()

	if c.debug {
		c.logger.Debug("login page submission", "payload", print.MaybePrettyJSON(req.Submission.masked()))
	}

	account, err := c.currentAccount(ctx, req.Session)
	if err != nil {
		return nil, err
	}

	languages, err := c.languages.ListLanguages(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list languages")
	}

	st := &flowState{
		req:       req,
		account:   account,
		languages: languages,
	}

	effects := &Effects{}
	for _, transition := range c.transitions {
		res, err := c.run(ctx, transition, st)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}

		c.apply(ctx, st, res)
		effects.Transitions = append(effects.Transitions, *res)

		if res.Redirect != "" {
			effects.Redirect = res.Redirect
			return effects, nil
		}
	}

	effects.View = c.view(st)
	return effects, nil
}

func (c *Controller) run(ctx context.Context, transition transitionFunc, st *flowState) (*TransitionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return transition(ctx, st)
}

// currentAccount loads the user bound to the session. A session that
// points at a vanished user is logged out.
func (c *Controller) currentAccount(ctx context.Context, sess *session.Manager) (*Account, error) {
	id := sess.CurrentUser()
	if id == GuestID {
		return GuestAccount(c.repo, c.creds), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	account, err := LoadAccount(ctx, c.repo, c.creds, id)
	if err == nil {
		return account, nil
	}

	if !IsUserNotFound(err) {
		return nil, err
	}

	c.logger.Warn("session bound to missing user, logging out", "user", id)
	if err := sess.Logout(ctx); err != nil {
		return nil, err
	}
	return GuestAccount(c.repo, c.creds), nil
}

func (c *Controller) apply(ctx context.Context, st *flowState, res *TransitionResult) {
	if n := res.Notification; n != nil {
		if res.Persist {
			st.req.Notifications.AddPersisted(n.Severity, n.Key, n.Params)
		} else {
			st.req.Notifications.Add(n.Severity, n.Key, n.Params)
		}
	}

	c.metrics.recordTransition(res.Transition, res.outcome)

	if res.event == nil {
		return
	}

	event := *res.event
	if event.OccurredAt.IsZero() {
		event.OccurredAt = c.now()
	}
	if err := c.activity.Record(WithAccountContext(ctx, st.account), event); err != nil {
		c.logger.Warn("failed to record activity", "event", event.EventType, "error", err)
	}
}

func (c *Controller) view(st *flowState) map[string]any {
	language := st.account.Language()
	if language == "" {
		language = st.req.Session.Language()
	}

	var changeMail any
	if st.req.Submission.Has(FieldChangeMail) {
		changeMail = st.req.Submission.Value(FieldChangeMail)
	}

	return map[string]any{
		"loginPage": map[string]any{
			"mailPattern":        MailPattern,
			"usernamePattern":    UsernamePattern,
			"availableLanguages": languagesTemplateData(st.languages),
			"changeMail":         changeMail,
			"language":           language,
		},
		"user": st.account.TemplateData(),
	}
}
