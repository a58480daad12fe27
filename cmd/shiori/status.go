package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hyperjump/shiori/internal/cli"
	"github.com/hyperjump/shiori/internal/storage"
)

var (
	statusOutput string
	statusServer string
)

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "output format: text or json")
	statusCmd.Flags().StringVar(&statusServer, "server", defaultServerURL, "server URL (empty or unreachable = direct storage access)")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus and graph counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(statusOutput)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var status map[string]any
		if client := reachableServer(ctx, statusServer); client != nil {
			status, err = client.Get(ctx, "/api/v1/status")
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
		} else {
			err = withComponents(false, func(c *Components) error {
				stats, err := c.Store.Stats(ctx)
				if err != nil {
					return err
				}
				status, err = toMap(stats)
				if err != nil {
					return err
				}
				status = map[string]any{"stats": status}
				if n, err := storage.DiskUsageBytes(c.Config.Storage.DatabasePath, c.Config.Storage.BleveIndexPath); err == nil {
					status["disk_usage_bytes"] = n
				}
				snap := c.Matcher.Snapshot()
				status["groups"] = map[string]any{"source": snap.Source, "count": len(snap.Groups)}
				return nil
			})
			if err != nil {
				return err
			}
		}

		if format == cli.OutputJSON {
			return cli.WriteJSON(cmd.OutOrStdout(), status)
		}
		writeStatusText(cmd.OutOrStdout(), status)
		return nil
	},
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	return m, json.Unmarshal(b, &m)
}

// writeStatusText prints "stats" counts first, then the remaining top-level
// fields, each sorted by key.
func writeStatusText(w io.Writer, status map[string]any) {
	if stats, ok := status["stats"].(map[string]any); ok {
		for _, k := range sortedKeys(stats) {
			fmt.Fprintf(w, "%-20s%v\n", k+":", stats[k])
		}
	}
	for _, k := range sortedKeys(status) {
		if k == "stats" {
			continue
		}
		switch v := status[k].(type) {
		case map[string]any:
			fmt.Fprintf(w, "\n# %s\n", k)
			for _, sk := range sortedKeys(v) {
				fmt.Fprintf(w, "%-20s%v\n", sk+":", v[sk])
			}
		case []any:
			fmt.Fprintf(w, "\n# %s\n", k)
			for _, item := range v {
				b, _ := json.Marshal(item)
				fmt.Fprintf(w, "%s\n", b)
			}
		default:
			fmt.Fprintf(w, "%-20s%v\n", k+":", v)
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
