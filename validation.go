package login

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Patterns are exported to the view so forms can validate client side
const (
	UsernamePattern = `^[A-Za-z0-9][A-Za-z0-9_.\-]{2,31}$`
	MailPattern     = `^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`
)

var (
	usernameRegexp = regexp.MustCompile(UsernamePattern)
	mailRegexp     = regexp.MustCompile(MailPattern)
)

// ValidateUsername checks name against UsernamePattern
func ValidateUsername(name string) error {
	return validation.Validate(strings.TrimSpace(name),
		validation.Required,
		validation.Match(usernameRegexp),
	)
}

// ValidateMail checks mail against MailPattern
func ValidateMail(mail string) error {
	return validation.Validate(mail,
		validation.Required,
		validation.Length(6, 254),
		validation.Match(mailRegexp),
	)
}

// RegisterUserMessage is the payload to create an account
type RegisterUserMessage struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Language string `json:"language"`
}

// Validate will run validation rules
func (r RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Match(usernameRegexp)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 254), validation.Match(mailRegexp)),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 128)),
	)
}
