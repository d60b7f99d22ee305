package transcription

import "strings"

const (
	LanguageAuto    = "auto"
	LanguageEnglish = "en"
	LanguageArabic  = "ar"
)

// NormalizeLanguage collapses a detected language code onto the two codes
// the routing layer understands. Any Arabic variant ("ar", "ar-SA", ...)
// becomes "ar"; everything else, including unknown codes, becomes "en".
func NormalizeLanguage(code string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(code)), LanguageArabic) {
		return LanguageArabic
	}
	return LanguageEnglish
}

// usesSyncProvider reports whether a language selector routes to the
// synchronous provider.
func usesSyncProvider(language string) bool {
	return language == LanguageArabic
}

// enhancedSupported reports whether enhanced-accuracy options may be
// forwarded for the given language selector. The asynchronous provider
// only honors them for English and auto-detected audio.
func enhancedSupported(language string) bool {
	return language == "" || language == LanguageAuto || language == LanguageEnglish
}
