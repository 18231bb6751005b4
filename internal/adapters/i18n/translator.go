// Package i18n renders UI text, dates and amounts for the supported locales.
package i18n

import (
	"embed"
	"log/slog"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"coursedesk/internal/domain/record"
)

//go:embed active.*.toml
var localeFS embed.FS

// DefaultLocale is used when no supported locale matches.
const DefaultLocale = "de"

var supported = []language.Tag{language.German, language.English}

// Translator wraps a go-i18n bundle.
type Translator struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
	matcher         language.Matcher
}

// NewTranslator builds a Translator from the embedded message files.
// An unsupported defaultLocale falls back to German.
func NewTranslator(defaultLocale string) *Translator {
	tag, err := language.Parse(defaultLocale)
	if err != nil || !isSupported(tag) {
		tag = language.German
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, file := range []string{"active.de.toml", "active.en.toml"} {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			slog.Error("i18n_load_failed", "file", file, "error", err)
		}
	}

	return &Translator{
		bundle:          bundle,
		defaultLanguage: tag,
		matcher:         language.NewMatcher(supported),
	}
}

func isSupported(tag language.Tag) bool {
	base, _ := tag.Base()
	for _, s := range supported {
		if b, _ := s.Base(); b == base {
			return true
		}
	}
	return false
}

// Default returns the default locale code.
func (t *Translator) Default() string {
	return t.defaultLanguage.String()
}

// T renders the message identified by key for locale. A missing message
// falls back to the default locale, then to the key itself.
func (t *Translator) T(locale, key string, data map[string]any) string {
	if key == "" {
		return ""
	}
	languages := []string{}
	if locale != "" {
		languages = append(languages, locale)
	}
	languages = append(languages, t.defaultLanguage.String())

	localizer := i18n.NewLocalizer(t.bundle, languages...)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		slog.Debug("i18n_missing", "key", key, "locales", languages)
		return key
	}
	return msg
}

// Match picks the supported locale that best fits an Accept-Language
// header, or the default locale.
func (t *Translator) Match(acceptLanguage string) string {
	if strings.TrimSpace(acceptLanguage) == "" {
		return t.Default()
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.Default()
	}
	_, idx, conf := t.matcher.Match(tags...)
	if conf == language.No {
		return t.Default()
	}
	return supported[idx].String()
}

// Supported reports whether locale is one of the available locales.
func (t *Translator) Supported(locale string) bool {
	tag, err := language.Parse(locale)
	return err == nil && isSupported(tag)
}

// FormatDate renders a YYYY-MM-DD (or timestamp) value for display.
// Empty input renders "-" and unparseable input is returned unchanged.
func (t *Translator) FormatDate(locale, date string) string {
	if strings.TrimSpace(date) == "" {
		return "-"
	}
	d := record.ParseTimestamp(date)
	if d.IsZero() {
		return date
	}
	if strings.HasPrefix(locale, "en") {
		return d.Format("Jan 2, 2006")
	}
	return d.Format("02.01.2006")
}

// FormatMoney renders an amount in euros with locale separators.
func (t *Translator) FormatMoney(locale string, amount float64) string {
	tag := language.Make(locale)
	if !isSupported(tag) {
		tag = t.defaultLanguage
	}
	p := message.NewPrinter(tag)
	n := number.Decimal(amount, number.Scale(2))
	if b, _ := tag.Base(); b.String() == "en" {
		return p.Sprintf("€%v", n)
	}
	return p.Sprintf("%v €", n)
}
