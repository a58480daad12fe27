package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/shiori/internal/cli"
)

var backfillLimit int

func init() {
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 0, "maximum papers to embed (0 = all)")
	rootCmd.AddCommand(importCmd, backfillCmd, reindexCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import papers and citations from .xlsx or .jsonl files",
	Long: `Import papers and citations.

.xlsx workbooks are read from a "papers" sheet (columns title, abstract,
year, journal, doi, authors, citations_count; authors separated by ";")
and a "citations" sheet (citing_doi, cited_doi, confidence, source).

.jsonl files hold one object per line, either {"paper": {...}} or
{"citation": {"citing_doi": ..., "cited_doi": ...}}.

Papers with a known DOI are updated in place.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(true, func(c *Components) error {
			for _, path := range args {
				res, err := c.Indexer.ImportFile(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				if err := cli.WriteJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed papers stored without a vector",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(false, func(c *Components) error {
			n, err := c.Indexer.Backfill(cmd.Context(), backfillLimit)
			fmt.Fprintf(cmd.OutOrStdout(), "embedded %d papers\n", n)
			return err
		})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the paper lookup index from storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(true, func(c *Components) error {
			n, err := c.Indexer.Reindex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d papers\n", n)
			return nil
		})
	},
}
