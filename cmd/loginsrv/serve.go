package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/template/django/v3"
	login "github.com/goliatone/go-login"
	"github.com/goliatone/go-login/activitymap"
	"github.com/goliatone/go-login/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

//go:embed views
var viewsFS embed.FS

func newServeCmd(root *rootOptions) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the login page",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if address != "" {
				a.cfg.Server.Address = address
			}

			srv, err := a.server()
			if err != nil {
				return err
			}
			return a.listen(ctx, srv)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Listen address, overrides server.address")

	return cmd
}

func (a *app) server() (*fiber.App, error) {
	views, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, err
	}

	engine := django.NewFileSystem(http.FS(views), ".django")
	engine.Reload(a.cfg.GetDebug())

	srv := fiber.New(fiber.Config{
		Views:                 engine,
		DisableStartupMessage: true,
		ErrorHandler:          a.errorHandler,
		PassLocalsToViews:     true,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	srv.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	logger := login.NewSlogLogger(a.logger)
	sessions, carried := a.stores()

	controller := login.NewController(
		a.repo,
		a.creds,
		login.StaticLanguages(a.cfg.GetLanguages()),
		login.WithConfig(a.cfg),
		login.WithLogger(logger),
		login.WithMetrics(login.NewMetrics(reg)),
		login.WithActivitySink(activitymap.LogSink(logger,
			activitymap.WithRedactedKeys("from", "to", "username"),
		)),
	)

	handler := login.NewHTTPHandler(controller, sessions, carried,
		login.WithCookieName(a.cfg.GetSessionCookieName()),
		login.WithSecureCookie(a.cfg.Auth.SecureCookie),
		login.WithHTTPLogger(logger),
		login.WithSessionOptions(
			session.WithTTL(a.cfg.GetSessionTTL()),
			session.WithRememberedTTL(a.cfg.GetRememberedSessionTTL()),
			session.WithCodec(session.NewTokenCodec(a.cfg.GetSigningKey())),
		),
	)

	var router fiber.Router = srv
	if base := strings.Trim(a.cfg.GetBasePath(), "/"); base != "" {
		router = srv.Group("/" + base)
	}

	// the token reaches the view as the csrf local
	router.Use(csrf.New(csrf.Config{
		KeyLookup:      "form:_csrf",
		CookieName:     a.cfg.GetSessionCookieName() + "_csrf",
		CookieSameSite: "Lax",
		CookieSecure:   a.cfg.Auth.SecureCookie,
		CookieHTTPOnly: true,
		Expiration:     a.cfg.GetSessionTTL(),
		ContextKey:     "csrf",
	}))
	handler.Register(router)

	return srv, nil
}

func (a *app) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	a.logger.Error("request failed", "path", c.Path(), "status", code, "error", err)
	return c.Status(code).SendString(http.StatusText(code))
}

func (a *app) listen(ctx context.Context, srv *fiber.App) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "address", a.cfg.Server.Address)
		errCh <- srv.Listen(a.cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.logger.Info("shutting down")
	return srv.ShutdownWithContext(shutdownCtx)
}
