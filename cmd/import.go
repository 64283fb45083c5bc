package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/relgraph/internal/model"
)

var (
	importPath string
	importSync bool
)

// graphFile is the import document: entities and the edges between them.
type graphFile struct {
	Entities []model.Entity `json:"entities"`
	Edges    []model.Edge   `json:"edges"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import entities and edges from a JSON graph file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		ctx := cmd.Context()

		g, err := readGraphFile(importPath)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		entities, err := env.Store.ImportEntities(ctx, g.Entities)
		if err != nil {
			return eris.Wrap(err, "import entities")
		}
		edges, err := env.Store.ImportEdges(ctx, g.Edges)
		if err != nil {
			return eris.Wrap(err, "import edges")
		}

		if importSync && env.Neo4j != nil {
			if err := env.Neo4j.Sync(ctx, g.Entities, g.Edges); err != nil {
				return eris.Wrap(err, "sync neo4j")
			}
		}

		zap.L().Info("import complete",
			zap.String("file", importPath),
			zap.Int64("entities", entities),
			zap.Int64("edges", edges),
			zap.Bool("neo4j_synced", importSync && env.Neo4j != nil),
		)
		return nil
	},
}

// readGraphFile decodes and checks an import document.
func readGraphFile(path string) (*graphFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var g graphFile
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}

	for i, e := range g.Entities {
		if e.ID == "" {
			return nil, eris.Errorf("entity %d has no id", i)
		}
		if !e.IsPerson() && !e.IsOrganization() {
			return nil, eris.Errorf("entity %s has unknown kind %q", e.ID, e.Kind)
		}
	}
	for i, ed := range g.Edges {
		if ed.SourceID == "" || ed.TargetID == "" {
			return nil, eris.Errorf("edge %d is missing an endpoint", i)
		}
		if ed.SourceID == ed.TargetID {
			return nil, eris.Errorf("edge %d is a self-loop on %s", i, ed.SourceID)
		}
		if s := ed.Strength; s != nil && (*s < 0 || *s > 1) {
			return nil, eris.Errorf("edge %d strength %.2f outside [0,1]", i, *s)
		}
	}
	return &g, nil
}

func init() {
	importCmd.Flags().StringVar(&importPath, "file", "", "path to graph JSON file (required)")
	importCmd.Flags().BoolVar(&importSync, "sync-neo4j", true, "also write the graph to neo4j when graph.backend is neo4j")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
