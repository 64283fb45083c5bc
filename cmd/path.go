package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/relgraph/internal/graph"
)

var (
	pathFrom  string
	pathLimit int
)

var pathCmd = &cobra.Command{
	Use:   "path <target-id>",
	Short: "Print introduction paths between two entity ids",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		from := pathFrom
		if from == "" {
			matches, err := env.Store.FindByName(ctx, cfg.Search.AnchorName, 1)
			if err != nil {
				return eris.Wrap(err, "resolve anchor")
			}
			if len(matches) == 0 {
				return eris.Errorf("anchor %q not found; pass --from", cfg.Search.AnchorName)
			}
			from = matches[0].ID
		}

		finder := graph.NewPathFinder(env.Index, graph.PathConfig{
			MaxDepth: cfg.Graph.MaxDepth,
			MaxNodes: cfg.Graph.MaxNodes,
			FanOut:   cfg.Graph.FanOut,
		})
		paths, err := finder.Find(ctx, from, args[0], pathLimit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(paths)
	},
}

func init() {
	pathCmd.Flags().StringVar(&pathFrom, "from", "", "starting entity id (default: the configured anchor)")
	pathCmd.Flags().IntVar(&pathLimit, "limit", 5, "maximum paths")
	rootCmd.AddCommand(pathCmd)
}
