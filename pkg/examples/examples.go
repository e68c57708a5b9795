// Package examples holds the sample queries offered by every host.
package examples

import (
	"embed"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownExample is returned by Get for a name not in All.
var ErrUnknownExample = errors.New("unknown example")

//go:embed queries/*.sql
var queriesFS embed.FS

// Example is a named sample query.
type Example struct {
	Name  string `json:"name"  yaml:"name"`
	Query string `json:"query" yaml:"query"`
}

// Names in display order. The first one is the initial editor content.
var names = []string{"Basic", "Comments", "Aliases"}

// All returns the examples in display order.
func All() []Example {
	out := make([]Example, 0, len(names))

	for _, name := range names {
		data, err := queriesFS.ReadFile("queries/" + strings.ToLower(name) + ".sql")
		if err != nil {
			panic(fmt.Sprintf("examples: embedded query %s: %v", name, err))
		}

		out = append(out, Example{Name: name, Query: string(data)})
	}

	return out
}

// Default returns the query shown before the user types anything.
func Default() Example {
	return All()[0]
}

// Get finds an example by case-insensitive name.
func Get(name string) (Example, error) {
	for _, ex := range All() {
		if strings.EqualFold(ex.Name, name) {
			return ex, nil
		}
	}

	return Example{}, fmt.Errorf("%w: %q", ErrUnknownExample, name)
}

// Names returns the example names in display order.
func Names() []string {
	return append([]string(nil), names...)
}
