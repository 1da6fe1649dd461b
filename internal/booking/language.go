package booking

import "strings"

// Supported conversation languages.
const (
	LanguageEnglish   = "en-US"
	LanguageMalayalam = "ml-IN"
)

var languageNames = map[string]string{
	LanguageEnglish:   "English",
	LanguageMalayalam: "Malayalam",
}

// NormalizeLanguage maps a requested locale onto a supported one, falling back
// to def (or English) when the request is unknown.
func NormalizeLanguage(requested, def string) string {
	for code := range languageNames {
		if strings.EqualFold(strings.TrimSpace(requested), code) {
			return code
		}
	}
	if _, ok := languageNames[def]; ok {
		return def
	}
	return LanguageEnglish
}

// LanguageName returns the human-readable name used in model instructions.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return languageNames[LanguageEnglish]
}
