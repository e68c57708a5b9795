package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/sqltree/pkg/cache"
	"github.com/Sumatoshi-tech/sqltree/pkg/hover"
	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
	"github.com/Sumatoshi-tech/sqltree/pkg/session"
	"github.com/Sumatoshi-tech/sqltree/pkg/view"
)

func (s *Server) handleParseTree(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input ParseTreeInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	text, err := resolveSQL(input.SQL, input.Example)
	if err != nil {
		return errorResult(err)
	}

	if input.MaxSnippet < 0 {
		return errorResult(ErrInvalidSnippet)
	}

	maxSnippet := input.MaxSnippet
	if maxSnippet == 0 {
		maxSnippet = s.snippetMax
	}

	sess, nodes, err := s.project(ctx, input.Grammar, text, input.AllNodes, maxSnippet)
	if err != nil {
		return errorResult(err)
	}

	screen := view.Render(view.State{Status: session.StatusReady, Nodes: nodes})

	var tree strings.Builder

	err = view.WriteText(&tree, screen, view.TextOptions{Plain: true})
	if err != nil {
		return errorResult(fmt.Errorf("render tree: %w", err))
	}

	return jsonResult(ParseTreeResult{
		Grammar: sess.Grammar(),
		Summary: projector.Stats(nodes),
		Nodes:   nodes,
		Tree:    tree.String(),
	})
}

func (s *Server) handleNodeAt(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input NodeAtInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateSQLInput(input.SQL)
	if err != nil {
		return errorResult(err)
	}

	if input.Line < 1 || input.Column < 1 {
		return errorResult(fmt.Errorf("%w: %d:%d", ErrInvalidPosition, input.Line, input.Column))
	}

	_, nodes, err := s.project(ctx, input.Grammar, input.SQL, false, s.snippetMax)
	if err != nil {
		return errorResult(err)
	}

	pos := hover.FromEditorPositionIn(input.SQL, hover.EditorPosition{Line: input.Line, Column: input.Column})

	node, ok := hover.NodeAt(nodes, pos)
	if !ok {
		return errorResult(fmt.Errorf("%w %d:%d", ErrNoNode, input.Line, input.Column))
	}

	return jsonResult(NodeAtResult{
		Node:        node,
		EditorRange: hover.ToEditorRangeIn(input.SQL, node.Range),
	})
}

// project returns the display rows of text, parsing it with a fresh tree
// unless the cache already holds them.
func (s *Server) project(
	ctx context.Context, grammar, text string, allNodes bool, maxSnippet int,
) (*session.Session, []projector.DisplayNode, error) {
	sess, err := s.session(ctx, grammar)
	if err != nil {
		return nil, nil, err
	}

	key := cache.NewKey(sess.Grammar(), text, allNodes, maxSnippet)
	if nodes, ok := s.cache.Get(key); ok {
		return sess, nodes, nil
	}

	tree, err := sess.Reparse(ctx, text, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tree.Close()

	nodes := projector.Project(tree,
		projector.WithMaxSnippet(maxSnippet),
		projector.WithAnonymous(allNodes),
	)
	s.cache.Put(key, nodes)

	return sess, nodes, nil
}
