package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/sqltree/pkg/examples"
	"github.com/Sumatoshi-tech/sqltree/pkg/hover"
	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
	"github.com/Sumatoshi-tech/sqltree/pkg/textutil"
)

// Tool name constants.
const (
	ToolNameParseTree = "sql_parse_tree"
	ToolNameNodeAt    = "sql_node_at"
	ToolNameExamples  = "sql_examples"
)

// Input size limits.
const (
	// MaxSQLInputBytes is the maximum allowed size for inline SQL input (1 MB).
	MaxSQLInputBytes = 1 << 20
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptySQL indicates neither sql nor example was given.
	ErrEmptySQL = errors.New("sql or example parameter is required")
	// ErrAmbiguousInput indicates both sql and example were given.
	ErrAmbiguousInput = errors.New("sql and example are mutually exclusive")
	// ErrSQLTooLarge indicates the SQL input exceeds the size limit.
	ErrSQLTooLarge = errors.New("sql input exceeds maximum size")
	// ErrInvalidSnippet indicates a negative snippet limit.
	ErrInvalidSnippet = errors.New("max_snippet must not be negative")
	// ErrInvalidPosition indicates a line or column below 1.
	ErrInvalidPosition = errors.New("line and column must be at least 1")
	// ErrNoNode indicates nothing in the tree covers the requested position.
	ErrNoNode = errors.New("no syntax node at position")
)

// Input types (auto-generate JSON schemas via struct tags).

// ParseTreeInput is the input schema for the sql_parse_tree tool.
type ParseTreeInput struct {
	SQL        string `json:"sql,omitempty"         jsonschema:"SQL text to parse"`
	Example    string `json:"example,omitempty"     jsonschema:"name of a bundled example to parse instead of sql"`
	Grammar    string `json:"grammar,omitempty"     jsonschema:"grammar locator (sql sqlite sql_bigquery); defaults to the server grammar"`
	AllNodes   bool   `json:"all_nodes,omitempty"   jsonschema:"include anonymous nodes such as keywords and punctuation"`
	MaxSnippet int    `json:"max_snippet,omitempty" jsonschema:"snippet length before truncation (default 50)"`
}

// NodeAtInput is the input schema for the sql_node_at tool.
type NodeAtInput struct {
	SQL     string `json:"sql"               jsonschema:"SQL text to parse"`
	Line    int    `json:"line"              jsonschema:"1-based line number"`
	Column  int    `json:"column"            jsonschema:"1-based column number"`
	Grammar string `json:"grammar,omitempty" jsonschema:"grammar locator; defaults to the server grammar"`
}

// ExamplesInput is the input schema for the sql_examples tool.
type ExamplesInput struct{}

// Output types.

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// ParseTreeResult is the sql_parse_tree payload.
type ParseTreeResult struct {
	Grammar string                  `json:"grammar"`
	Summary projector.Summary       `json:"summary"`
	Nodes   []projector.DisplayNode `json:"nodes"`
	Tree    string                  `json:"tree"`
}

// NodeAtResult is the sql_node_at payload.
type NodeAtResult struct {
	Node        projector.DisplayNode `json:"node"`
	EditorRange hover.EditorRange     `json:"editorRange"`
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

// validateSQLInput checks common SQL input constraints.
func validateSQLInput(sql string) error {
	if sql == "" {
		return ErrEmptySQL
	}

	if len(sql) > MaxSQLInputBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrSQLTooLarge, len(sql), MaxSQLInputBytes)
	}

	return textutil.CheckText([]byte(sql))
}

// resolveSQL picks the text to parse from inline SQL or an example name.
func resolveSQL(sql, example string) (string, error) {
	if example == "" {
		return sql, validateSQLInput(sql)
	}

	if sql != "" {
		return "", ErrAmbiguousInput
	}

	ex, err := examples.Get(example)
	if err != nil {
		return "", err
	}

	return ex.Query, nil
}

func handleExamples(
	_ context.Context, _ *mcpsdk.CallToolRequest, _ ExamplesInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return jsonResult(examples.All())
}
