package core

import (
	"strings"
	"sync"
)

const DefaultLanguage = "en"

// Language holds the instruction strings a locale adds to prompts.
type Language struct {
	Code string
	// AnalysisInstruction steers the summary of analyze requests.
	AnalysisInstruction string
	// ChatInstruction is the short reminder prepended to chat turns.
	ChatInstruction string
	// Difficulty holds the easy, medium and hard labels in this language.
	Difficulty [3]string
}

var (
	languagesMu sync.RWMutex
	languages   = map[string]Language{
		"en": {
			Code:                "en",
			AnalysisInstruction: "Respond in English.",
			ChatInstruction:     "Respond in English.",
			Difficulty:          [3]string{"Easy", "Medium", "Hard"},
		},
		"tr": {
			Code:                "tr",
			AnalysisInstruction: "Respond in Turkish. Translate technical terms only if commonly used in Turkish, otherwise keep them in English.",
			ChatInstruction:     "Respond in Turkish.",
			Difficulty:          [3]string{"Kolay", "Orta", "Zor"},
		},
	}
)

// RegisterLanguage adds or replaces a locale.
func RegisterLanguage(l Language) {
	languagesMu.Lock()
	defer languagesMu.Unlock()
	languages[strings.ToLower(l.Code)] = l
}

// LanguageFor resolves a tag such as "tr", "tr-TR" or "en_US" to a
// registered locale, falling back to English.
func LanguageFor(tag string) Language {
	code := strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}

	languagesMu.RLock()
	defer languagesMu.RUnlock()
	if l, ok := languages[code]; ok {
		return l
	}
	return languages[DefaultLanguage]
}
