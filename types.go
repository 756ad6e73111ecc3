package login

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// GuestID is the reserved identifier of the unauthenticated principal
var GuestID = uuid.Nil

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds login flow options
type Config interface {
	GetBasePath() string
	GetPagePath() string
	GetSessionCookieName() string
	GetSessionTTL() time.Duration
	GetRememberedSessionTTL() time.Duration
	GetCarriedTTL() time.Duration
	GetOperationTimeout() time.Duration
	GetHashAlgorithm() string
	GetHashCost() int
	GetPepper() string
	GetSigningKey() string
	GetLanguageRedirect() bool
	GetLanguages() []Language
	GetDebug() bool
}

// LanguageProvider lists the languages a user may pick
type LanguageProvider interface {
	ListLanguages(ctx context.Context) ([]Language, error)
}

// Credentials derives and verifies password hashes under a deadline
type Credentials interface {
	Derive(ctx context.Context, password, mail string) (string, error)
	Verify(ctx context.Context, password, mail, hash string) (bool, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] LOGIN "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] LOGIN "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] LOGIN "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] LOGIN "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// SlogLogger adapts a *slog.Logger to Logger. Arguments are
// treated as key/value pairs.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps l, falling back to slog.Default
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *SlogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *SlogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *SlogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

var _ Logger = (*SlogLogger)(nil)
var _ Logger = defLogger{}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
