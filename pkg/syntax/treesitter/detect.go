package treesitter

import (
	"path/filepath"
	"strings"

	"github.com/src-d/enry/v2"
)

// sqlDialects are the linguist language names that parse with the generic
// SQL grammar.
var sqlDialects = map[string]string{
	"SQL":     "sql",
	"PLSQL":   "sql",
	"PLpgSQL": "sql",
	"SQLPL":   "sql",
	"TSQL":    "sql",
}

// DetectGrammar guesses a grammar locator for a file from its name and
// content. It returns "" when the language is unknown or has no grammar.
func DetectGrammar(filename string, content []byte) string {
	lang := enry.GetLanguage(filepath.Base(filename), content)
	if lang == "" {
		return ""
	}

	if locator, ok := sqlDialects[lang]; ok {
		return locator
	}

	locator := strings.ToLower(strings.ReplaceAll(lang, " ", "_"))
	if Language(locator) == nil {
		return ""
	}

	return locator
}
