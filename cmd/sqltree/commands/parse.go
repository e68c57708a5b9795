package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/sqltree/pkg/examples"
	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
	"github.com/Sumatoshi-tech/sqltree/pkg/session"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax/treesitter"
	"github.com/Sumatoshi-tech/sqltree/pkg/textutil"
	"github.com/Sumatoshi-tech/sqltree/pkg/view"
)

// Output formats.
const (
	FormatText  = "text"
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var (
	// ErrUnsupportedFormat is returned for an unknown --format value.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrExampleWithFile is returned when --example is combined with a file.
	ErrExampleWithFile = errors.New("--example cannot be combined with a file argument")
	// ErrSyntaxErrors is returned by --check when the tree contains ERROR nodes.
	ErrSyntaxErrors = errors.New("query has syntax errors")
)

// stdinPath selects standard input.
const stdinPath = "-"

// ParseOptions holds the parse command flags.
type ParseOptions struct {
	Format     string
	Example    string
	Grammar    string
	AllNodes   bool
	MaxSnippet int
	Plain      bool
	Check      bool
	NoSummary  bool
}

// parseDocument is the json and yaml output.
type parseDocument struct {
	Grammar string                  `json:"grammar"         yaml:"grammar"`
	Bytes   int                     `json:"bytes"           yaml:"bytes"`
	Summary projector.Summary       `json:"summary"         yaml:"summary"`
	Nodes   []projector.DisplayNode `json:"nodes"           yaml:"nodes"`
	Error   string                  `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewParseCommand creates the one-shot parse command.
func NewParseCommand() *cobra.Command {
	var opts ParseOptions

	cmd := &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Print the syntax tree of a SQL query",
		Long: `Parse a SQL query and print its syntax tree.

Examples:
  sqltree parse query.sql              # Tree of a file
  echo 'SELECT 1' | sqltree parse      # Tree of stdin
  sqltree parse --example Aliases      # Tree of a bundled example
  sqltree parse -f json query.sql      # Rows as JSON
  sqltree parse --check query.sql      # Fail when the tree has ERROR nodes`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer e.close()

			if opts.MaxSnippet == 0 {
				opts.MaxSnippet = e.cfg.SnippetMax
			}

			path := stdinPath
			if len(args) == 1 {
				path = args[0]
			}

			input, err := readParseInput(cmd.InOrStdin(), path, opts.Example, len(args) == 1)
			if err != nil {
				return err
			}

			if opts.Grammar == "" {
				opts.Grammar = input.detected
			}

			if opts.Grammar == "" {
				opts.Grammar = e.cfg.Grammar
			}

			sess := e.session(treesitter.NewEngine(), opts.Grammar)
			defer sess.Close()

			return runParse(cmd.Context(), sess, input.text, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", FormatText, "output format (text, table, json, yaml)")
	cmd.Flags().StringVarP(&opts.Example, "example", "e", "", "parse a bundled example instead of input")
	cmd.Flags().StringVarP(&opts.Grammar, "grammar", "g", "", "grammar locator (default: detected or configured)")
	cmd.Flags().BoolVarP(&opts.AllNodes, "all-nodes", "a", false, "include anonymous nodes (keywords, punctuation)")
	cmd.Flags().IntVar(&opts.MaxSnippet, "max-snippet", 0, "snippet length before truncation (default: configured)")
	cmd.Flags().BoolVar(&opts.Plain, "plain", false, "disable colors")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "exit non-zero when the tree contains ERROR nodes")
	cmd.Flags().BoolVar(&opts.NoSummary, "no-summary", false, "omit the summary line in text and table output")

	return cmd
}

type parseInput struct {
	text     string
	detected string
}

// readParseInput resolves the query text from an example, a file or stdin.
func readParseInput(stdin io.Reader, path, example string, explicitPath bool) (parseInput, error) {
	if example != "" {
		if explicitPath {
			return parseInput{}, ErrExampleWithFile
		}

		ex, err := examples.Get(example)
		if err != nil {
			return parseInput{}, err
		}

		return parseInput{text: ex.Query}, nil
	}

	if path == stdinPath {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return parseInput{}, fmt.Errorf("read stdin: %w", err)
		}

		if err := textutil.CheckText(data); err != nil {
			return parseInput{}, fmt.Errorf("stdin: %w", err)
		}

		return parseInput{text: string(data)}, nil
	}

	data, resolved, err := safeReadFile(path)
	if err != nil {
		return parseInput{}, err
	}

	if err := textutil.CheckText(data); err != nil {
		return parseInput{}, fmt.Errorf("%s: %w", resolved, err)
	}

	return parseInput{text: string(data), detected: treesitter.DetectGrammar(resolved, data)}, nil
}

// runParse parses text once and writes it in the requested format. An empty
// text renders the input prompt without a reparse.
func runParse(ctx context.Context, sess *session.Session, text string, opts ParseOptions, out io.Writer) error {
	switch opts.Format {
	case FormatText, FormatTable, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.Format)
	}

	err := sess.Initialize(ctx)
	if err != nil {
		return writeParse(out, opts, sess, text, nil, err)
	}

	var nodes []projector.DisplayNode

	if text != "" {
		nodes, err = project(ctx, sess, text, opts)
	}

	writeErr := writeParse(out, opts, sess, text, nodes, err)
	if writeErr != nil || err != nil {
		return writeErr
	}

	if opts.Check {
		if sum := projector.Stats(nodes); sum.Errors > 0 {
			return fmt.Errorf("%w: %d error nodes", ErrSyntaxErrors, sum.Errors)
		}
	}

	return nil
}

func project(ctx context.Context, sess *session.Session, text string, opts ParseOptions) ([]projector.DisplayNode, error) {
	tree, err := sess.Reparse(ctx, text, nil)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	return projector.Project(tree,
		projector.WithMaxSnippet(opts.MaxSnippet),
		projector.WithAnonymous(opts.AllNodes),
	), nil
}

// writeParse writes the result and returns parseErr, so failures are both
// shown and reflected in the exit status.
func writeParse(
	out io.Writer, opts ParseOptions, sess *session.Session, text string, nodes []projector.DisplayNode, parseErr error,
) error {
	switch opts.Format {
	case FormatJSON, FormatYAML:
		doc := parseDocument{
			Grammar: sess.Grammar(),
			Bytes:   len(text),
			Summary: projector.Stats(nodes),
			Nodes:   nodes,
		}

		if doc.Nodes == nil {
			doc.Nodes = []projector.DisplayNode{}
		}

		if parseErr != nil {
			doc.Error = parseErr.Error()
		}

		if err := encodeDocument(out, opts.Format, doc); err != nil {
			return err
		}

		return parseErr
	}

	screen := view.Render(view.State{Status: sess.Status(), Err: parseErr, Nodes: nodes})

	var err error
	if opts.Format == FormatTable {
		err = view.WriteTable(out, screen)
	} else {
		err = view.WriteText(out, screen, view.TextOptions{Plain: opts.Plain})
	}

	if err != nil {
		return err
	}

	if parseErr != nil {
		return parseErr
	}

	if !opts.NoSummary && screen.Kind == view.KindTree {
		_, err = fmt.Fprintln(out, summaryLine(sess.Grammar(), text, projector.Stats(nodes)))
		if err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	return nil
}

func encodeDocument(out io.Writer, format string, doc parseDocument) error {
	if format == FormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}

		return nil
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)

	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return nil
}

// summaryLine reads like "5 nodes, depth 2, 0 errors, 1 row, 20 B of sql".
func summaryLine(grammar, text string, sum projector.Summary) string {
	return fmt.Sprintf("%s, depth %d, %s, %s, %s of %s",
		english.Plural(sum.Nodes, "node", ""),
		sum.MaxDepth,
		english.Plural(sum.Errors, "error", ""),
		english.Plural(textutil.Rows(text), "row", ""),
		humanize.Bytes(uint64(len(text))),
		grammar,
	)
}
