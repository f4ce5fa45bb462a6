// Package i18n picks a message printer for CLI output from the user's locale.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is used when the locale is unset or unsupported.
var DefaultLang = language.English

// SupportedLangs lists the locales the CLI formats for.
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// MatchLanguage maps a POSIX locale ("de_DE.UTF-8", "C") or a BCP 47 tag
// onto the closest supported language.
func MatchLanguage(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, ".@"); i != -1 {
		locale = locale[:i]
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return DefaultLang
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return DefaultLang
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return DefaultLang
	}
	return SupportedLangs[idx]
}

// LocaleFromEnv returns the effective locale using the usual precedence:
// LC_ALL, then LC_MESSAGES, then LANG.
func LocaleFromEnv(lookup LookupFunc) string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
	}
	return ""
}

// NewCLIPrinter returns a printer for the locale found through lookup.
func NewCLIPrinter(lookup LookupFunc) *message.Printer {
	return message.NewPrinter(MatchLanguage(LocaleFromEnv(lookup)))
}
