package treesitter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sqltree/pkg/syntax"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax/treesitter"
)

const aliasQuery = "SELECT u.name AS user_name FROM users AS u;"

type visit struct {
	id    uint64
	kind  string
	named bool
	text  string
}

func walk(t *testing.T, tree syntax.Tree) []visit {
	t.Helper()

	cursor := tree.Walk()
	defer cursor.Close()

	var out []visit

	for {
		node := cursor.Node()
		require.NotNil(t, node)

		out = append(out, visit{id: node.ID(), kind: node.Type(), named: node.IsNamed(), text: node.Text()})

		if cursor.GoToFirstChild() {
			continue
		}

		for !cursor.GoToNextSibling() {
			if !cursor.GoToParent() {
				return out
			}
		}
	}
}

func newParser(t *testing.T) syntax.Parser {
	t.Helper()

	engine := treesitter.NewEngine()

	grammar, err := engine.LoadGrammar(context.Background(), treesitter.DefaultGrammar)
	require.NoError(t, err)
	assert.Equal(t, "sql", grammar.Name())

	parser, err := engine.NewParser(grammar)
	require.NoError(t, err)
	t.Cleanup(parser.Close)

	return parser
}

func TestEngine_LoadGrammar_Unknown(t *testing.T) {
	t.Parallel()

	_, err := treesitter.NewEngine().LoadGrammar(context.Background(), "no_such_grammar")
	require.ErrorIs(t, err, syntax.ErrLoad)
}

func TestEngine_LoadGrammar_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := treesitter.NewEngine().LoadGrammar(ctx, treesitter.DefaultGrammar)
	require.ErrorIs(t, err, context.Canceled)
}

func TestParser_Parse(t *testing.T) {
	t.Parallel()

	parser := newParser(t)

	tree, err := parser.Parse(context.Background(), aliasQuery, nil)
	require.NoError(t, err)
	require.NotNil(t, tree)

	defer tree.Close()

	root := tree.Root()
	require.NotNil(t, root)
	assert.Equal(t, "program", root.Type())
	assert.False(t, root.HasError())
	assert.Equal(t, aliasQuery, tree.Source())
	assert.Equal(t, 0, root.Range().Start.Row)

	visits := walk(t, tree)
	require.NotEmpty(t, visits)
	assert.Equal(t, root.ID(), visits[0].id)

	seen := make(map[uint64]bool, len(visits))
	for _, v := range visits {
		assert.False(t, seen[v.id], "duplicate node id for %s", v.kind)
		seen[v.id] = true
	}

	var alias *visit

	for idx := range visits {
		if visits[idx].named && visits[idx].text == "user_name" {
			alias = &visits[idx]

			break
		}
	}

	require.NotNil(t, alias, "alias identifier not found")
}

func TestParser_Parse_ReusesPrevious(t *testing.T) {
	t.Parallel()

	parser := newParser(t)
	ctx := context.Background()

	first, err := parser.Parse(ctx, "SELECT name FROM users;", nil)
	require.NoError(t, err)

	defer first.Close()

	second, err := parser.Parse(ctx, "SELECT name, email FROM users;", first)
	require.NoError(t, err)

	defer second.Close()

	fresh, err := parser.Parse(ctx, "SELECT name, email FROM users;", nil)
	require.NoError(t, err)

	defer fresh.Close()

	kinds := func(tree syntax.Tree) []string {
		var out []string
		for _, v := range walk(t, tree) {
			out = append(out, v.kind+":"+v.text)
		}

		return out
	}

	assert.Equal(t, kinds(fresh), kinds(second))
	assert.Equal(t, "SELECT name FROM users;", first.Source())
	assert.Equal(t, "SELECT name FROM users;", first.Root().Text())
}

func TestParser_Parse_SyntaxError(t *testing.T) {
	t.Parallel()

	parser := newParser(t)

	tree, err := parser.Parse(context.Background(), "SELECT FROM WHERE ;;", nil)
	require.NoError(t, err)
	require.NotNil(t, tree)

	defer tree.Close()

	require.NotNil(t, tree.Root())
	assert.True(t, tree.Root().HasError())
}

func TestTree_CloseTwice(t *testing.T) {
	t.Parallel()

	parser := newParser(t)

	tree, err := parser.Parse(context.Background(), "SELECT 1;", nil)
	require.NoError(t, err)

	tree.Close()
	tree.Close()

	assert.Nil(t, tree.Root())
}

func TestParser_CloseStopsParsing(t *testing.T) {
	t.Parallel()

	engine := treesitter.NewEngine()

	grammar, err := engine.LoadGrammar(context.Background(), treesitter.DefaultGrammar)
	require.NoError(t, err)

	parser, err := engine.NewParser(grammar)
	require.NoError(t, err)

	parser.Close()
	parser.Close()

	tree, err := parser.Parse(context.Background(), "SELECT 1;", nil)
	require.Error(t, err)
	assert.Nil(t, tree)
}

func TestCursor_CloseDetaches(t *testing.T) {
	t.Parallel()

	parser := newParser(t)

	tree, err := parser.Parse(context.Background(), "SELECT 1;", nil)
	require.NoError(t, err)

	defer tree.Close()

	cursor := tree.Walk()
	require.NotNil(t, cursor.Node())

	cursor.Close()
	cursor.Close()

	assert.Nil(t, cursor.Node())
	assert.False(t, cursor.GoToFirstChild())
	assert.Empty(t, cursor.FieldName())
}

func TestDetectGrammar(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sql", treesitter.DetectGrammar("query.sql", []byte("SELECT 1;")))
	assert.Empty(t, treesitter.DetectGrammar("notes", nil))
}
