package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperjump/shiori/internal/cli"
	"github.com/hyperjump/shiori/internal/learning"
	"github.com/hyperjump/shiori/internal/storage"
)

var (
	expandLimit  int
	expandOutput string
	expandServer string
	learnWindow  time.Duration
	learnAll     bool
)

func init() {
	expandCmd.Flags().IntVar(&expandLimit, "limit", 10, "maximum suggestions")
	expandCmd.Flags().StringVarP(&expandOutput, "output", "o", "text", "output format: text or json")
	expandCmd.Flags().StringVar(&expandServer, "server", defaultServerURL, "server URL (empty or unreachable = direct storage access)")
	learnCmd.Flags().DurationVar(&learnWindow, "window", 0, "look-back window (0 = configured window_minutes)")
	learnCmd.Flags().BoolVar(&learnAll, "all", false, "read every logged event regardless of age")
	rootCmd.AddCommand(expandCmd, learnCmd, analyzeCmd, syncGroupsCmd)
}

var expandCmd = &cobra.Command{
	Use:   "expand <keyword>...",
	Short: "Suggest related keywords from the learned tag graph",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(expandOutput)
		if err != nil {
			return err
		}
		keywords := parseKeywords(args)
		ctx := cmd.Context()
		if client := reachableServer(ctx, expandServer); client != nil {
			terms, err := client.ExpandKeywords(ctx, keywords, expandLimit)
			if err != nil {
				return err
			}
			return cli.WriteExpansion(cmd.OutOrStdout(), terms, format)
		}
		return withComponents(false, func(c *Components) error {
			terms, err := c.Engine.ExpandKeywords(ctx, keywords, expandLimit)
			if err != nil {
				return err
			}
			return cli.WriteExpansion(cmd.OutOrStdout(), terms, format)
		})
	},
}

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Apply logged click and accept events to tag graph weights",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(false, func(c *Components) error {
			window := c.Learner.Window()
			switch {
			case learnAll:
				window = 0
			case learnWindow > 0:
				window = learnWindow
			}
			res, err := c.Learner.Run(cmd.Context(), c.Store, window)
			if err != nil {
				return err
			}
			return cli.WriteJSON(cmd.OutOrStdout(), res)
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Tag papers by generation, citation impact and citation cluster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(false, func(c *Components) error {
			res, err := c.Labeller.Run(cmd.Context(), c.Store)
			if err != nil {
				return err
			}
			return cli.WriteJSON(cmd.OutOrStdout(), map[string]any{
				"generation_tags":  res.GenerationTags,
				"impact_tags":      res.ImpactTags,
				"cluster_tags":     res.ClusterTags,
				"clustered_papers": res.ClusteredPapers,
				"duration":         res.Duration.String(),
			})
		})
	},
}

var syncGroupsCmd = &cobra.Command{
	Use:   "sync-groups",
	Short: "Mirror the semantic group file into the tag graph",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(false, func(c *Components) error {
			ctx := cmd.Context()
			var res *learning.SyncResult
			err := storage.WithTx(ctx, c.Store, func(tx storage.Tx) error {
				var err error
				res, err = learning.SyncStaticGroups(ctx, tx, c.Matcher.Snapshot(), c.Config.Learner.DefaultWeight)
				return err
			})
			if err != nil {
				return fmt.Errorf("group sync failed: %w", err)
			}
			return cli.WriteJSON(cmd.OutOrStdout(), res)
		})
	},
}

// withComponents loads config, wires the services and runs fn.
func withComponents(withLookup bool, fn func(c *Components) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	c, err := initializeComponents(cfg, logger, withLookup)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}
