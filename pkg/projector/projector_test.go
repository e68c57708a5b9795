package projector_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sqltree/pkg/position"
	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax"
	st "github.com/Sumatoshi-tech/sqltree/pkg/syntax/syntaxtest"
)

const (
	basicQuery = "SELECT name, email FROM users;"
	aliasQuery = "SELECT u.name AS user_name FROM users AS u;"
)

// basicTree is a hand-built tree for basicQuery.
func basicTree() *st.Tree {
	src := basicQuery

	selectClause := st.Named("select_clause", st.Between(st.At(src, "SELECT", 0), st.At(src, "email", 0)),
		st.Anon("SELECT", st.At(src, "SELECT", 0)),
		st.Named("column_reference", st.At(src, "name", 0)),
		st.Anon(",", st.At(src, ",", 0)),
		st.Named("column_reference", st.At(src, "email", 0)),
	)
	fromClause := st.Named("from_clause", st.Between(st.At(src, "FROM", 0), st.At(src, "users", 0)),
		st.Anon("FROM", st.At(src, "FROM", 0)),
		st.Named("table_reference", st.At(src, "users", 0)),
	)
	statement := st.Named("statement", st.Between(st.At(src, "SELECT", 0), st.At(src, "users", 0)),
		selectClause, fromClause)

	return st.NewTree(src, 0, st.Named("program", st.All(src), statement, st.Anon(";", st.At(src, ";", 0))))
}

func aliasTree() *st.Tree {
	src := aliasQuery

	term := st.Named("term", st.Between(st.At(src, "u.name", 0), st.At(src, "user_name", 0)),
		st.Named("field_reference", st.At(src, "u.name", 0)).As("value"),
		st.Anon("AS", st.At(src, "AS", 0)),
		st.Named("identifier", st.At(src, "user_name", 0)).As("alias"),
	)
	relation := st.Named("relation", st.Between(st.At(src, "users", 0), st.At(src, "u;", 0)),
		st.Named("table_reference", st.At(src, "users", 0)).As("table"),
		st.Anon("AS", st.At(src, "AS", 1)),
		st.Named("identifier", st.Span{Start: st.At(src, "u;", 0).Start, End: st.At(src, "u;", 0).Start + 1}).As("alias"),
	)
	statement := st.Named("statement", st.Between(st.At(src, "SELECT", 0), st.At(src, "u;", 0)),
		st.Named("select", st.Between(st.At(src, "SELECT", 0), st.At(src, "user_name", 0)),
			st.Anon("SELECT", st.At(src, "SELECT", 0)), term),
		st.Named("from", st.Between(st.At(src, "FROM", 0), st.At(src, "u;", 0)),
			st.Anon("FROM", st.At(src, "FROM", 0)), relation),
	)

	return st.NewTree(src, 0, st.Named("program", st.All(src), statement, st.Anon(";", st.At(src, ";", 0))))
}

type row struct {
	Depth int
	Field string
	Type  string
	Text  string
}

func rows(nodes []projector.DisplayNode) []row {
	out := make([]row, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, row{Depth: n.Depth, Field: n.FieldName, Type: n.Type, Text: n.Snippet})
	}

	return out
}

func TestProject_EndToEnd(t *testing.T) {
	t.Parallel()

	nodes := projector.Project(basicTree())

	want := []row{
		{0, "", "program", basicQuery},
		{1, "", "statement", "SELECT name, email FROM users"},
		{2, "", "select_clause", "SELECT name, email"},
		{3, "", "column_reference", "name"},
		{3, "", "column_reference", "email"},
		{2, "", "from_clause", "FROM users"},
		{3, "", "table_reference", "users"},
	}

	if diff := cmp.Diff(want, rows(nodes)); diff != "" {
		t.Errorf("projection mismatch (-want +got):\n%s", diff)
	}

	for _, n := range nodes {
		assert.True(t, n.Named, "anonymous row %q emitted", n.Type)
		assert.NotContains(t, []string{"SELECT", ",", "FROM", ";"}, n.Type)
	}
}

func TestProject_FieldNames(t *testing.T) {
	t.Parallel()

	nodes := projector.Project(aliasTree())

	var alias *projector.DisplayNode

	for idx := range nodes {
		if nodes[idx].Snippet == "user_name" {
			alias = &nodes[idx]
		}
	}

	require.NotNil(t, alias)
	assert.Equal(t, "alias", alias.FieldName)
	assert.Equal(t, "identifier", alias.Type)
	assert.Equal(t, position.Range{
		Start: position.Position{Row: 0, Column: 17},
		End:   position.Position{Row: 0, Column: 26},
	}, alias.Range)

	assert.Empty(t, nodes[0].FieldName, "root has no field name")

	fields := map[string]string{}
	for _, n := range nodes {
		if n.FieldName != "" {
			fields[n.Snippet] = n.FieldName
		}
	}

	assert.Equal(t, map[string]string{
		"u.name":    "value",
		"user_name": "alias",
		"users":     "table",
		"u":         "alias",
	}, fields)
}

func TestProject_Idempotent(t *testing.T) {
	t.Parallel()

	tree := aliasTree()

	first := projector.Project(tree)
	second := projector.Project(tree)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated projection differs (-first +second):\n%s", diff)
	}
}

func TestProject_PreOrder(t *testing.T) {
	t.Parallel()

	for name, tree := range map[string]*st.Tree{"basic": basicTree(), "alias": aliasTree()} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			nodes := projector.Project(tree)
			require.NotEmpty(t, nodes)
			assert.Equal(t, 0, nodes[0].Depth)

			for idx := 1; idx < len(nodes); idx++ {
				cur := nodes[idx]
				assert.Positive(t, cur.Depth)
				assert.LessOrEqual(t, cur.Depth, nodes[idx-1].Depth+1, "depth jumps at row %d", idx)

				// The nearest preceding shallower row is the parent and encloses the child.
				parent := idx - 1
				for nodes[parent].Depth >= cur.Depth {
					parent--
				}

				assert.True(t, nodes[parent].Range.Encloses(cur.Range),
					"%s %s not inside parent %s %s", cur.Type, cur.Range, nodes[parent].Type, nodes[parent].Range)

				// Siblings follow source order.
				if prev := nodes[idx-1]; prev.Depth == cur.Depth {
					assert.False(t, cur.Range.Start.Less(prev.Range.Start))
				}
			}
		})
	}
}

func TestProject_AnonymousChildrenKeepDepth(t *testing.T) {
	t.Parallel()

	src := "SELECT * FROM t;"
	root := st.Named("program", st.All(src),
		st.Named("select", st.At(src, "SELECT *", 0),
			st.Anon("SELECT", st.At(src, "SELECT", 0)),
			st.Anon("*", st.At(src, "*", 0)),
		),
		st.Named("from", st.At(src, "FROM t", 0),
			st.Anon("FROM", st.At(src, "FROM", 0)),
			st.Named("table_reference", st.At(src, "t", 0)),
		),
	)

	nodes := projector.Project(st.NewTree(src, 0, root))

	want := []row{
		{0, "", "program", src},
		{1, "", "select", "SELECT *"},
		{1, "", "from", "FROM t"},
		{2, "", "table_reference", "t"},
	}

	if diff := cmp.Diff(want, rows(nodes)); diff != "" {
		t.Errorf("projection mismatch (-want +got):\n%s", diff)
	}
}

func TestProject_WithAnonymous(t *testing.T) {
	t.Parallel()

	nodes := projector.Project(basicTree(), projector.WithAnonymous(true))

	types := make([]string, 0, len(nodes))
	for _, n := range nodes {
		types = append(types, n.Type)
	}

	assert.Equal(t, []string{
		"program", "statement", "select_clause", "SELECT", "column_reference", ",",
		"column_reference", "from_clause", "FROM", "table_reference", ";",
	}, types)
	assert.False(t, nodes[3].Named)
}

func TestProject_EmptyTrees(t *testing.T) {
	t.Parallel()

	assert.Nil(t, projector.Project(nil))
	assert.Nil(t, projector.Project(st.NewTree("SELECT", 0, nil)))

	single := projector.Project(st.NewTree("x", 0, st.Named("program", st.All("x"))))
	require.Len(t, single, 1)
	assert.Equal(t, "program", single[0].Type)
}

func TestProject_ErrorFlag(t *testing.T) {
	t.Parallel()

	src := "SELECT FROM"
	root := st.Named("program", st.All(src),
		st.Named("ERROR", st.All(src)).Broken(),
	)

	nodes := projector.Project(st.NewTree(src, 0, root))
	require.Len(t, nodes, 2)
	assert.True(t, nodes[0].HasError, "errors propagate to the root")
	assert.True(t, nodes[1].HasError)
}

func TestProject_DeepTree(t *testing.T) {
	t.Parallel()

	const levels = 1000

	src := strings.Repeat("(", levels) + strings.Repeat(")", levels)

	var node *st.Node

	for depth := levels - 1; depth >= 0; depth-- {
		span := st.Span{Start: depth, End: len(src) - depth}
		if node == nil {
			node = st.Named("group", span)
		} else {
			node = st.Named("group", span, node)
		}
	}

	nodes := projector.Project(st.NewTree(src, 0, node))
	require.Len(t, nodes, levels)
	assert.Equal(t, levels-1, nodes[levels-1].Depth)
}

// dupTree reports the same ID for every column_reference, as a cursor
// revisiting one node would.
type dupTree struct{ *st.Tree }

func (d dupTree) Walk() syntax.Cursor { return dupCursor{d.Tree.Walk()} }

type dupCursor struct{ syntax.Cursor }

func (c dupCursor) Node() syntax.Node {
	node := c.Cursor.Node()
	if node != nil && node.Type() == "column_reference" {
		return fixedID{node}
	}

	return node
}

type fixedID struct{ syntax.Node }

func (fixedID) ID() uint64 { return 4242 }

func TestProject_DeduplicatesNodeIdentity(t *testing.T) {
	t.Parallel()

	nodes := projector.Project(dupTree{basicTree()})

	count := 0

	for _, n := range nodes {
		if n.Type == "column_reference" {
			count++

			assert.Equal(t, "name", n.Snippet)
		}
	}

	assert.Equal(t, 1, count)
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 60)

	tests := []struct {
		name     string
		text     string
		max      int
		expected string
	}{
		{"short", "users", 50, "users"},
		{"newline_escaped", "SELECT\n\tname", 50, `SELECT\n` + "\tname"},
		{"exact_limit", long[:50], 50, long[:50]},
		{"truncated", long, 50, long[:50] + "..."},
		{"escape_counts_toward_limit", strings.Repeat("a", 49) + "\n", 50, strings.Repeat("a", 49) + `\` + "..."},
		{"multibyte", strings.Repeat("é", 51), 50, strings.Repeat("é", 50) + "..."},
		{"unlimited", long, 0, long},
		{"empty", "", 50, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, projector.Snippet(tt.text, tt.max))
		})
	}
}

func TestProject_WithMaxSnippet(t *testing.T) {
	t.Parallel()

	nodes := projector.Project(basicTree(), projector.WithMaxSnippet(6))
	assert.Equal(t, "SELECT...", nodes[0].Snippet)
	assert.Equal(t, "name", nodes[3].Snippet)
}

func TestStats(t *testing.T) {
	t.Parallel()

	sum := projector.Stats(projector.Project(basicTree()))

	assert.Equal(t, 7, sum.Nodes)
	assert.Equal(t, 3, sum.MaxDepth)
	assert.Zero(t, sum.Errors)
	assert.Equal(t, 2, sum.ByType["column_reference"])
}
