package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperjump/shiori/internal/cli"
	"github.com/hyperjump/shiori/internal/models"
)

var (
	searchLimit    int
	searchYearFrom int
	searchYearTo   int
	searchSource   string
	searchUser     string
	searchOutput   string
	searchServer   string
)

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "number of results (0 = configured default)")
	searchCmd.Flags().IntVar(&searchYearFrom, "year-from", 0, "earliest publication year")
	searchCmd.Flags().IntVar(&searchYearTo, "year-to", 0, "latest publication year")
	searchCmd.Flags().StringVar(&searchSource, "source", "cli", "source tag recorded with the query event")
	searchCmd.Flags().StringVar(&searchUser, "user", "", "user id recorded with the query event")
	searchCmd.Flags().StringVarP(&searchOutput, "output", "o", "text", "output format: text, compact, or json")
	searchCmd.Flags().StringVar(&searchServer, "server", defaultServerURL, "server URL (empty or unreachable = direct storage access)")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <keyword>...",
	Short: "Search papers by keywords",
	Long: `Search papers by embedding similarity, re-ranked by the tag graph and
citation network.

Each argument is one keyword; an argument containing commas is split, so
these are equivalent:
  shiori search "urban design" walkability
  shiori search "urban design, walkability"

Examples:
  shiori search transformers --year-from 2018 --limit 10
  shiori search "graph neural networks" -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(searchOutput)
		if err != nil {
			return err
		}
		query := &models.SearchQuery{
			Keywords: parseKeywords(args),
			YearFrom: searchYearFrom,
			YearTo:   searchYearTo,
			Limit:    searchLimit,
			Source:   searchSource,
			UserID:   searchUser,
		}
		if len(query.Keywords) == 0 {
			return fmt.Errorf("no keywords given")
		}
		ctx := cmd.Context()

		if client := reachableServer(ctx, searchServer); client != nil {
			resp, err := client.Search(ctx, query)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), resp, format)
		}

		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		components, err := initializeComponents(cfg, logger, false)
		if err != nil {
			return err
		}
		defer components.Close()

		resp, err := components.Engine.Search(ctx, query)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		return cli.WriteSearchResults(cmd.OutOrStdout(), resp, format)
	},
}

// parseKeywords treats each argument as a keyword and splits arguments on
// commas.
func parseKeywords(args []string) []string {
	var out []string
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// reachableServer returns a client when a server answers at url.
func reachableServer(ctx context.Context, url string) *cli.Client {
	if url == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	client := cli.NewClient(url, 30*time.Second)
	healthCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if !client.Healthy(healthCtx) {
		return nil
	}
	return client
}
