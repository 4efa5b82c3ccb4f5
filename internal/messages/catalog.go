// Package messages holds the localized texts the assistant sends to users.
package messages

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var defaultCatalog []byte

const (
	LangEnglish = "en"
	LangHindi   = "hi"
)

type Catalog struct {
	lang    string
	entries map[string]map[string]string
}

// Load parses the embedded catalog and selects lang as the primary language.
func Load(lang string) (*Catalog, error) {
	return Parse(defaultCatalog, lang)
}

func Parse(raw []byte, lang string) (*Catalog, error) {
	var entries map[string]map[string]string
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse message catalog: %w", err)
	}
	for key, variants := range entries {
		if variants[LangEnglish] == "" {
			return nil, fmt.Errorf("message %q has no english text", key)
		}
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = LangEnglish
	}
	return &Catalog{lang: lang, entries: entries}, nil
}

func (c *Catalog) Lang() string {
	return c.lang
}

// Text renders key in the primary language, falling back to English. Unknown
// keys render a generic error line instead of failing.
func (c *Catalog) Text(key string, args ...any) string {
	return c.render(key, c.lang, args...)
}

func (c *Catalog) Has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

func (c *Catalog) render(key, lang string, args ...any) string {
	variants, ok := c.entries[key]
	if !ok {
		return "An error occurred."
	}
	msg, ok := variants[lang]
	if !ok || msg == "" {
		msg = variants[LangEnglish]
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
