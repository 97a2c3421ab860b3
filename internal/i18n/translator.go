// Package i18n renders user-facing messages from embedded TOML catalogs.
package i18n

import (
	"embed"
	"log/slog"
	"strconv"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"

	"github.com/m3rciful/regbot/core/logger"
)

//go:embed active.*.toml
var localeFS embed.FS

var catalogs = []string{"active.ru.toml", "active.en.toml"}

// Translator is a thin wrapper around go-i18n's Bundle.
type Translator struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
}

// NewTranslator builds a Translator whose fallback language is defaultLocale.
// An unparsable locale falls back to Russian.
func NewTranslator(defaultLocale string) *Translator {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.Russian
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, file := range catalogs {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			logger.Warn(logger.Background(), "app", "i18n.load",
				slog.String("status", "fail"),
				slog.String("payload", file),
				slog.String("err", err.Error()),
			)
		}
	}

	return &Translator{
		bundle:          bundle,
		defaultLanguage: tag,
	}
}

// T renders the message identified by key for the given locale.
// Missing keys fall back to the default locale and finally to the key itself.
func (t *Translator) T(locale, key string, data map[string]any) string {
	if key == "" {
		return ""
	}
	msg, err := t.localizer(locale).Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		logger.Debug(logger.Background(), "app", "i18n.missing",
			slog.String("status", "skip"),
			slog.String("lang", locale),
			slog.String("payload", key),
		)
		return key
	}
	return msg
}

func (t *Translator) localizer(locale string) *i18n.Localizer {
	languages := make([]string, 0, 2)
	if locale != "" {
		languages = append(languages, locale)
	}
	languages = append(languages, t.defaultLanguage.String())
	return i18n.NewLocalizer(t.bundle, languages...)
}

// For binds the translator to one locale.
func (t *Translator) For(locale string) Locale {
	if locale == "" {
		locale = t.defaultLanguage.String()
	}
	return Locale{tr: t, locale: locale}
}

// Locale renders messages for a fixed language.
type Locale struct {
	tr     *Translator
	locale string
}

// Tag returns the bound locale.
func (l Locale) Tag() string { return l.locale }

// T renders key with optional template data.
func (l Locale) T(key string, data map[string]any) string {
	return l.tr.T(l.locale, key, data)
}

// MonthName returns the catalog name of m (month_1 .. month_12).
func (l Locale) MonthName(m time.Month) string {
	return l.T("month_"+strconv.Itoa(int(m)), nil)
}
