package login

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-login/notify"
	"github.com/goliatone/go-login/session"
)

const DefaultSessionCookie = "login_session"

// HTTPHandler serves the login page on a fiber router
type HTTPHandler struct {
	controller  *Controller
	sessions    session.Store
	carried     notify.CarriedStore
	sessionOpts []session.Option
	cookieName  string
	pagePath    string
	view        string
	secure      bool
	logger      Logger
}

type HTTPHandlerOption func(*HTTPHandler) *HTTPHandler

func WithSessionOptions(opts ...session.Option) HTTPHandlerOption {
	return func(h *HTTPHandler) *HTTPHandler {
		h.sessionOpts = append(h.sessionOpts, opts...)
		return h
	}
}

func WithCookieName(name string) HTTPHandlerOption {
	return func(h *HTTPHandler) *HTTPHandler {
		if name != "" {
			h.cookieName = name
		}
		return h
	}
}

func WithView(name string) HTTPHandlerOption {
	return func(h *HTTPHandler) *HTTPHandler {
		if name != "" {
			h.view = name
		}
		return h
	}
}

func WithSecureCookie(secure bool) HTTPHandlerOption {
	return func(h *HTTPHandler) *HTTPHandler {
		h.secure = secure
		return h
	}
}

func WithHTTPLogger(l Logger) HTTPHandlerOption {
	return func(h *HTTPHandler) *HTTPHandler {
		h.logger = normalizeLogger(l)
		return h
	}
}

func NewHTTPHandler(controller *Controller, sessions session.Store, carried notify.CarriedStore, opts ...HTTPHandlerOption) *HTTPHandler {
	h := &HTTPHandler{
		controller: controller,
		sessions:   sessions,
		carried:    carried,
		cookieName: DefaultSessionCookie,
		pagePath:   controller.pagePath,
		view:       "login",
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			h = opt(h)
		}
	}
	return h
}

// Register mounts the page and its sub paths on r
func (h *HTTPHandler) Register(r fiber.Router) {
	page := "/" + strings.Trim(h.pagePath, "/")
	r.Get(page, h.Serve)
	r.Post(page, h.Serve)
	r.Get(page+"/*", h.Serve)
	r.Post(page+"/*", h.Serve)
}

// Serve handles one login page request
func (h *HTTPHandler) Serve(c *fiber.Ctx) error {
	ctx := c.UserContext()

	sess, err := session.Open(ctx, h.sessions, c.Cookies(h.cookieName), h.sessionOpts...)
	if err != nil {
		h.logger.Error("failed to open session", "error", err)
		return err
	}

	sink := notify.NewSink(h.carried)
	if err := sink.Restore(ctx, sess.ID()); err != nil {
		h.logger.Error("failed to restore notifications", "error", err)
		return err
	}

	// until the cookie is written the client still holds the opened id
	key := sess.ID()
	requeue := func(cause error) error {
		if err := sink.Requeue(ctx, key); err != nil {
			h.logger.Error("failed to requeue notifications", "error", err)
		}
		return cause
	}

	effects, err := h.controller.Handle(ctx, Request{
		Submission:    h.submission(c),
		Session:       sess,
		Notifications: sink,
	})
	if err != nil {
		return requeue(err)
	}

	if err := h.writeCookie(c, sess); err != nil {
		return requeue(err)
	}
	key = sess.ID()

	notifications, err := sink.Commit(ctx, sess.ID(), effects.Redirecting())
	if err != nil {
		h.logger.Error("failed to carry notifications", "error", err)
		return requeue(err)
	}

	if effects.Redirecting() {
		return c.Redirect(effects.Redirect, fiber.StatusSeeOther)
	}

	return c.Render(h.view, fiber.Map{
		"loginPage":     effects.View["loginPage"],
		"user":          effects.View["user"],
		"notifications": notificationsTemplateData(notifications),
	})
}

func (h *HTTPHandler) writeCookie(c *fiber.Ctx, sess *session.Manager) error {
	token, err := sess.Token()
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt(),
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}

func (h *HTTPHandler) submission(c *fiber.Ctx) Submission {
	sub := Submission{
		Form:     map[string]string{},
		Query:    map[string]string{},
		Segments: SplitSegments(c.Params("*")),
		Referrer: c.Get(fiber.HeaderReferer),
		Path:     c.Path(),
	}

	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		sub.Query[string(k)] = string(v)
	})

	if c.Method() != fiber.MethodPost {
		return sub
	}

	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		sub.Form[string(k)] = string(v)
	})

	if form, err := c.MultipartForm(); err == nil && form != nil {
		for k, v := range form.Value {
			if len(v) > 0 {
				sub.Form[k] = v[0]
			}
		}
	}

	return sub
}

func notificationsTemplateData(items []notify.Notification) []fiber.Map {
	out := make([]fiber.Map, 0, len(items))
	for _, n := range items {
		out = append(out, fiber.Map{
			"severity": string(n.Severity),
			"key":      n.Key,
			"params":   n.Params,
		})
	}
	return out
}
