package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// newDocsCmd writes reference pages for every visible command.
func newDocsCmd() *cobra.Command {
	var dir, format string

	cmd := &cobra.Command{
		Use:    "gen-docs",
		Short:  "Write man pages or markdown for treedelta and its subcommands",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gen, err := docsGenerator(format)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
			root := cmd.Root()
			root.DisableAutoGenTag = true
			return gen(root, dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "docs", "output directory")
	cmd.Flags().StringVar(&format, "format", "man", "output format (man, markdown, rest)")
	return cmd
}

func docsGenerator(format string) (func(*cobra.Command, string) error, error) {
	switch format {
	case "man":
		return func(root *cobra.Command, dir string) error {
			return doc.GenManTree(root, &doc.GenManHeader{
				Title:   "TREEDELTA",
				Section: "1",
				Source:  "treedelta " + version,
				Manual:  "treedelta manual",
			}, dir)
		}, nil
	case "markdown":
		return doc.GenMarkdownTree, nil
	case "rest":
		return doc.GenReSTTree, nil
	default:
		return nil, fmt.Errorf("unknown docs format %q (want man, markdown or rest)", format)
	}
}
