package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"collector/internal/config"
	"collector/internal/document"
	"collector/internal/etl"
)

// readDocument parses the JSON document in path, or stdin for "" and "-".
func (e *cmdEnv) readDocument(path string) (document.Value, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(e.stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return document.Value{}, fmt.Errorf("read document: %w", err)
	}
	doc, err := document.Parse(data)
	if err != nil {
		return document.Value{}, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func newRenderCommand(e *cmdEnv) *cobra.Command {
	var docPath, table string
	cmd := &cobra.Command{
		Use:   "render TEMPLATE",
		Short: "Render a statement template against a JSON document.",
		Long: `Render a statement template against a JSON document read from --doc or stdin
and print one statement per line.

  echo '{"rows":[{"id":"1"},{"id":"2"}]}' | collector render 'INSERT INTO ${@table} VALUES (${rows#id})' --table t`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := e.readDocument(docPath)
			if err != nil {
				return err
			}
			rows, err := etl.RenderTable(args[0], table, doc)
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Fprintln(e.stdout, r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&docPath, "doc", "", "JSON document file (default stdin).")
	cmd.Flags().StringVar(&table, "table", "", "Table substituted for ${@table}.")
	return cmd
}

func newResolveCommand(e *cmdEnv) *cobra.Command {
	var (
		docPath string
		flatten bool
	)
	cmd := &cobra.Command{
		Use:   "resolve PATH",
		Short: "Resolve a path against a JSON document.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := e.readDocument(docPath)
			if err != nil {
				return err
			}
			var opts []document.ResolveOption
			if flatten {
				opts = append(opts, document.WithFlatten())
			}
			v, ok := document.Resolve(doc, args[0], opts...)
			if !ok {
				return fmt.Errorf("%q: %w", args[0], document.ErrPathNotFound)
			}
			fmt.Fprintln(e.stdout, v.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&docPath, "doc", "", "JSON document file (default stdin).")
	cmd.Flags().BoolVar(&flatten, "flatten", false, "Collapse one nesting level of array results.")
	return cmd
}

func newConfigCommand(e *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration.",
		Long: `config prints the effective settings as a YAML file that --config accepts.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Write(e.stdout, cmd.Root().PersistentFlags())
		},
	}
}
