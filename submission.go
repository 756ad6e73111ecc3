package login

import (
	"strings"
)

// Form field and marker names posted by the login page
const (
	FieldLogin                = "login"
	FieldUsername             = "username"
	FieldPassword             = "password"
	FieldLongSession          = "longSession"
	FieldChangeMailSubmit     = "changeMailSubmit"
	FieldChangeMail           = "changeMail"
	FieldChangeMailPassword   = "changeMailPassword"
	FieldChangePasswordSubmit = "changePasswordSubmit"
	FieldChangePassword1      = "changePassword1"
	FieldChangePassword2      = "changePassword2"
	FieldChooseLanguageSubmit = "chooseLanguageSubmit"
	FieldChooseLanguage       = "chooseLanguage"

	SegmentRefer  = "refer"
	SegmentLogout = "logout"
	QueryLogout   = "logout"
)

// Submission is one normalized request to the login page. Segments are
// the path parts after the page itself.
type Submission struct {
	Form     map[string]string
	Query    map[string]string
	Segments []string
	Referrer string
	Path     string
}

// Has reports whether the form carries field, even if empty
func (s Submission) Has(field string) bool {
	if s.Form == nil {
		return false
	}
	_, ok := s.Form[field]
	return ok
}

// Value returns the posted value of field
func (s Submission) Value(field string) string {
	if s.Form == nil {
		return ""
	}
	return s.Form[field]
}

// Filled reports whether field is present and non-empty
func (s Submission) Filled(field string) bool {
	return s.Value(field) != ""
}

func (s Submission) HasQuery(key string) bool {
	if s.Query == nil {
		return false
	}
	_, ok := s.Query[key]
	return ok
}

// Segment returns the i-th path segment after the page, 0 based
func (s Submission) Segment(i int) string {
	if i < 0 || i >= len(s.Segments) {
		return ""
	}
	return s.Segments[i]
}

// masked returns the form with secrets blanked for debug output
func (s Submission) masked() map[string]any {
	form := make(map[string]string, len(s.Form))
	for k, v := range s.Form {
		if isSecretField(k) && v != "" {
			v = "******"
		}
		form[k] = v
	}
	return map[string]any{
		"form":     form,
		"query":    s.Query,
		"segments": s.Segments,
		"referrer": s.Referrer,
		"path":     s.Path,
	}
}

func isSecretField(name string) bool {
	switch name {
	case FieldPassword, FieldChangeMailPassword, FieldChangePassword1, FieldChangePassword2:
		return true
	}
	return false
}

// SplitSegments splits a slash separated path into its non-empty parts
func SplitSegments(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// joinPath builds an absolute path with a trailing slash, "/" when empty
func joinPath(base string, segments ...string) string {
	parts := SplitSegments(base)
	for _, s := range segments {
		parts = append(parts, SplitSegments(s)...)
	}
	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/") + "/"
}
