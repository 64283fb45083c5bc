package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/relgraph/internal/model"
)

var (
	searchLimit int
	searchKind  string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the graph and print the JSON response",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("search"); err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := initSearch(ctx, env); err != nil {
			return err
		}

		req := model.SearchRequest{Query: strings.Join(args, " "), Limit: searchLimit}
		if searchKind != "" {
			req.Filters = map[string]any{"kind": searchKind}
		}
		resp, err := env.Search.Search(ctx, req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results (default from config)")
	searchCmd.Flags().StringVar(&searchKind, "kind", "", "restrict semantic results to person or organization")
	rootCmd.AddCommand(searchCmd)
}
