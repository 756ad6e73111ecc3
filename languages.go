package login

import (
	"context"
	"strings"
)

// Language is a selectable user interface language
type Language struct {
	ID     string `json:"id" mapstructure:"id"`
	Name   string `json:"name" mapstructure:"name"`
	Locale string `json:"locale" mapstructure:"locale"`
}

func (l Language) TemplateData() map[string]any {
	return map[string]any{
		"id":     l.ID,
		"name":   l.Name,
		"locale": l.Locale,
	}
}

// StaticLanguages serves a fixed list of languages
type StaticLanguages []Language

func (s StaticLanguages) ListLanguages(_ context.Context) ([]Language, error) {
	out := make([]Language, len(s))
	copy(out, s)
	return out, nil
}

// findLanguage returns the language with id from the list, ids compare
// case sensitively as stored.
func findLanguage(languages []Language, id string) (Language, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Language{}, false
	}
	for _, lang := range languages {
		if lang.ID == id {
			return lang, true
		}
	}
	return Language{}, false
}

func languagesTemplateData(languages []Language) []map[string]any {
	out := make([]map[string]any, 0, len(languages))
	for _, lang := range languages {
		out = append(out, lang.TemplateData())
	}
	return out
}

var _ LanguageProvider = StaticLanguages(nil)
