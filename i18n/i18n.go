// Package i18n resolves message keys against embedded YAML bundles using
// the locale negotiated from an Accept-Language header.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localesFS embed.FS

// Bundle names
const (
	Messages = "messages"
	Errors   = "errors"
)

// Catalog holds every bundle for one language
type Catalog map[string]map[string]string

// Bundle is safe for concurrent use once loaded
type Bundle struct {
	tags     []language.Tag
	catalogs []Catalog
	matcher  language.Matcher
}

// New loads the embedded locales, def is the fallback language
func New(def string) (*Bundle, error) {
	return Load(localesFS, "locales", def)
}

// Load reads <dir>/<lang>.yaml files from fsys. The default language is
// tried first when negotiation finds no match.
func Load(fsys fs.FS, dir, def string) (*Bundle, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read locales: %w", err)
	}

	b := &Bundle{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}

		tag, err := language.Parse(strings.TrimSuffix(name, ".yaml"))
		if err != nil {
			return nil, fmt.Errorf("i18n: locale file %s: %w", name, err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", name, err)
		}

		catalog := Catalog{}
		if err := yaml.Unmarshal(raw, &catalog); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", name, err)
		}

		if def != "" && tag.String() == def {
			b.tags = append([]language.Tag{tag}, b.tags...)
			b.catalogs = append([]Catalog{catalog}, b.catalogs...)
			continue
		}
		b.tags = append(b.tags, tag)
		b.catalogs = append(b.catalogs, catalog)
	}

	if len(b.tags) == 0 {
		return nil, fmt.Errorf("i18n: no locales found in %s", dir)
	}

	b.matcher = language.NewMatcher(b.tags)
	return b, nil
}

// Languages lists the loaded languages, default first
func (b *Bundle) Languages() []string {
	out := make([]string, len(b.tags))
	for i, t := range b.tags {
		out[i] = t.String()
	}
	return out
}

// Localizer negotiates the language for an Accept-Language value
func (b *Bundle) Localizer(acceptLanguage string) *Localizer {
	idx := 0
	if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil && len(tags) > 0 {
		if _, i, conf := b.matcher.Match(tags...); conf != language.No {
			idx = i
		}
	}
	return &Localizer{tag: b.tags[idx], catalog: b.catalogs[idx], fallback: b.catalogs[0]}
}

// Localizer resolves keys for one negotiated language
type Localizer struct {
	tag      language.Tag
	catalog  Catalog
	fallback Catalog
}

// Language returns the negotiated language
func (l *Localizer) Language() string {
	return l.tag.String()
}

// Message resolves key in the messages bundle
func (l *Localizer) Message(key string, args ...any) string {
	return l.Get(Messages, key, args...)
}

// Error resolves key in the errors bundle
func (l *Localizer) Error(key string, args ...any) string {
	return l.Get(Errors, key, args...)
}

// Get resolves key in bundle. Unknown keys render as the key itself.
func (l *Localizer) Get(bundle, key string, args ...any) string {
	if tmpl, ok := l.catalog[bundle][key]; ok {
		return Format(tmpl, args...)
	}
	if tmpl, ok := l.fallback[bundle][key]; ok {
		return Format(tmpl, args...)
	}
	return key
}

// Format replaces {0}, {1}... with args. Placeholders without an arg are
// left as they are.
func Format(tmpl string, args ...any) string {
	if len(args) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}

	var sb strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] == '{' {
			if end := strings.IndexByte(tmpl[i:], '}'); end > 1 {
				if n, err := strconv.Atoi(tmpl[i+1 : i+end]); err == nil && n >= 0 && n < len(args) {
					sb.WriteString(fmt.Sprint(args[n]))
					i += end
					continue
				}
			}
		}
		sb.WriteByte(tmpl[i])
	}
	return sb.String()
}
