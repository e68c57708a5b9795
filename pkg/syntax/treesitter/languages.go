package treesitter

import (
	"sync"
	"unsafe"

	forest "github.com/alexaandru/go-sitter-forest"
	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/alexaandru/go-sitter-forest/sql"
	"github.com/alexaandru/go-sitter-forest/sql_bigquery"
	"github.com/alexaandru/go-sitter-forest/sqlite"
)

// DefaultGrammar is the grammar locator used when none is configured.
const DefaultGrammar = "sql"

// languageFuncs maps the SQL grammars linked directly into the binary.
// Anything else is resolved through the forest registry.
var languageFuncs = map[string]func() unsafe.Pointer{
	"sql":          sql.GetLanguage,
	"sql_bigquery": sql_bigquery.GetLanguage,
	"sqlite":       sqlite.GetLanguage,
}

var languageCache sync.Map

// Language returns the tree-sitter Language for the given name, or nil if not supported.
func Language(name string) *sitter.Language {
	if cached, ok := languageCache.Load(name); ok {
		lang, castOK := cached.(*sitter.Language)
		if castOK {
			return lang
		}
	}

	var lang *sitter.Language

	if fn, ok := languageFuncs[name]; ok {
		lang = sitter.NewLanguage(fn())
	} else {
		lang = forestLanguage(name)
	}

	if lang == nil {
		return nil
	}

	languageCache.Store(name, lang)

	return lang
}

// forestLanguage looks a grammar up in the forest registry. The registry
// panics on some unknown names, which is reported as "not available".
func forestLanguage(name string) (lang *sitter.Language) {
	defer func() {
		if recover() != nil {
			lang = nil
		}
	}()

	return forest.GetLanguage(name)
}
