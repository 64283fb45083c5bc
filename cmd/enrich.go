package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/relgraph/internal/enrich"
	"github.com/sells-group/relgraph/internal/model"
)

var (
	enrichFull        bool
	enrichIncremental bool
	enrichFailed      bool
	enrichLimit       int
	enrichTarget      string
	enrichKinds       []string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich entities with profiles, taxonomy codes and embeddings",
	Long:  "Runs a batch enrichment over unenriched entities (default), all entities (--full), entities whose last attempt failed (--failed), or entities whose name matches --target.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := enrichOptions(enrichFull, enrichIncremental, enrichFailed, enrichTarget, enrichLimit, enrichKinds)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := initEnrichment(env); err != nil {
			return err
		}

		summary, err := env.Orchestrator.Run(ctx, opts)
		env.Usage.Log("enrich: token usage")
		if summary != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(summary)
		}
		return err
	},
}

var enrichOneCmd = &cobra.Command{
	Use:   "enrich-one <entity-id>",
	Short: "Re-enrich a single entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := initEnrichment(env); err != nil {
			return err
		}
		if err := env.Orchestrator.EnrichOne(ctx, args[0]); err != nil {
			return err
		}
		zap.L().Info("entity enriched", zap.String("entity", args[0]), zap.Object("usage", env.Usage.Snapshot()))
		return nil
	},
}

// enrichOptions turns command flags into run options.
func enrichOptions(full, incremental, failed bool, target string, limit int, kinds []string) (enrich.Options, error) {
	opts := enrich.Options{Mode: enrich.ModeIncremental, Limit: limit, Target: strings.TrimSpace(target)}

	selected := 0
	for _, on := range []bool{full, incremental, failed, opts.Target != ""} {
		if on {
			selected++
		}
	}
	if selected > 1 {
		return opts, eris.New("only one of --full, --incremental, --failed or --target may be set")
	}

	switch {
	case full:
		opts.Mode = enrich.ModeFull
	case failed:
		opts.Mode = enrich.ModeFailed
	case opts.Target != "":
		opts.Mode = enrich.ModeTarget
	}
	if limit < 0 {
		return opts, eris.New("--limit must be >= 0")
	}

	for _, k := range kinds {
		switch kind := model.EntityKind(strings.ToLower(strings.TrimSpace(k))); kind {
		case model.KindPerson, model.KindOrganization:
			opts.Kinds = append(opts.Kinds, kind)
		default:
			return opts, eris.Errorf("unknown --kind %q (want person or organization)", k)
		}
	}
	return opts, nil
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichFull, "full", false, "re-enrich every entity")
	enrichCmd.Flags().BoolVar(&enrichIncremental, "incremental", false, "enrich only entities never enriched (default)")
	enrichCmd.Flags().BoolVar(&enrichFailed, "failed", false, "retry entities whose last enrichment failed")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "maximum entities to process (0 = no limit)")
	enrichCmd.Flags().StringVar(&enrichTarget, "target", "", "enrich entities whose name matches")
	enrichCmd.Flags().StringSliceVar(&enrichKinds, "kind", nil, "restrict to entity kinds (person, organization)")
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(enrichOneCmd)
}
