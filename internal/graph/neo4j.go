package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/relgraph/internal/model"
)

const neighborsQuery = `
MATCH (a:Entity {id: $id})-[r:RELATED]-(b:Entity)
WHERE size($kinds) = 0 OR r.kind IN $kinds
WITH a, r, b, startNode(r) = a AS outgoing
WHERE NOT $outgoingOnly OR outgoing
RETURN b.id AS id, b.name AS name, b.kind AS entity_kind, b.domain AS domain,
       r.kind AS kind, coalesce(r.strength, 0.5) AS strength, outgoing
ORDER BY strength DESC, id
LIMIT $limit`

// Neo4jConfig holds connection settings for Neo4jIndex.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

// Neo4jIndex answers adjacency queries from a Neo4j graph where entities are
// (:Entity {id}) nodes joined by [:RELATED {kind, strength}] relationships.
type Neo4jIndex struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jIndex connects to Neo4j and verifies connectivity.
func NewNeo4jIndex(ctx context.Context, cfg Neo4jConfig) (*Neo4jIndex, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = 50
		c.SocketConnectTimeout = 10 * time.Second
	})
	if err != nil {
		return nil, eris.Wrap(err, "graph: init neo4j driver")
	}

	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, eris.Wrap(err, "graph: verify neo4j connectivity")
	}

	zap.L().Info("graph: connected to neo4j", zap.String("uri", cfg.URI))
	return &Neo4jIndex{driver: driver, database: cfg.Database}, nil
}

// Close releases the driver.
func (n *Neo4jIndex) Close(ctx context.Context) error {
	return n.driver.Close(ctx)
}

// Neighbors implements Index.
func (n *Neo4jIndex) Neighbors(ctx context.Context, id string, limit int) ([]Neighbor, error) {
	return n.query(ctx, id, nil, false, limit)
}

// Outgoing implements Index.
func (n *Neo4jIndex) Outgoing(ctx context.Context, id string, kinds []string, limit int) ([]Neighbor, error) {
	return n.query(ctx, id, kinds, true, limit)
}

func (n *Neo4jIndex) query(ctx context.Context, id string, kinds []string, outgoingOnly bool, limit int) ([]Neighbor, error) {
	if kinds == nil {
		kinds = []string{}
	}
	res, err := neo4j.ExecuteQuery(ctx, n.driver, neighborsQuery, map[string]any{
		"id":           id,
		"kinds":        kinds,
		"outgoingOnly": outgoingOnly,
		"limit":        int64(limit),
	}, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "graph: neo4j neighbors of %s", id)
	}

	out := make([]Neighbor, 0, len(res.Records))
	for _, rec := range res.Records {
		out = append(out, neighborFromRecord(rec))
	}
	return out, nil
}

// Sync merges entities and edges into Neo4j so the graph mirrors the row
// store. Existing nodes and relationships are updated in place.
func (n *Neo4jIndex) Sync(ctx context.Context, entities []model.Entity, edges []model.Edge) error {
	nodes := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		nodes = append(nodes, map[string]any{
			"id":     e.ID,
			"name":   e.Name,
			"kind":   string(e.Kind),
			"domain": e.Domain,
		})
	}
	rels := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rel := map[string]any{
			"id":       e.ID,
			"source":   e.SourceID,
			"target":   e.TargetID,
			"kind":     e.Kind,
			"strength": nil,
		}
		if e.Strength != nil {
			rel["strength"] = *e.Strength
		}
		rels = append(rels, rel)
	}

	session := n.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: n.database,
	})
	defer func() { _ = session.Close(ctx) }()

	if res, err := session.Run(ctx, `CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`, nil); err != nil {
		zap.L().Warn("graph: neo4j constraint init failed (continuing)", zap.Error(err))
	} else {
		_, _ = res.Consume(ctx)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(nodes) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (e:Entity {id: n.id})
SET e.name = n.name, e.kind = n.kind, e.domain = n.domain`, map[string]any{"nodes": nodes})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		if len(rels) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $rels AS r
MATCH (a:Entity {id: r.source})
MATCH (b:Entity {id: r.target})
MERGE (a)-[x:RELATED {id: r.id}]->(b)
SET x.kind = r.kind, x.strength = r.strength`, map[string]any{"rels": rels})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return eris.Wrap(err, "graph: neo4j sync")
	}

	zap.L().Info("graph: neo4j sync complete",
		zap.Int("entities", len(nodes)),
		zap.Int("edges", len(rels)),
	)
	return nil
}

func neighborFromRecord(rec *neo4j.Record) Neighbor {
	n := Neighbor{Strength: model.DefaultEdgeStrength}
	n.ID = recordString(rec, "id")
	n.Name = recordString(rec, "name")
	n.EntityKind = model.EntityKind(recordString(rec, "entity_kind"))
	n.Domain = recordString(rec, "domain")
	n.Kind = recordString(rec, "kind")
	if v, ok := rec.Get("strength"); ok {
		switch s := v.(type) {
		case float64:
			n.Strength = s
		case int64:
			n.Strength = float64(s)
		}
	}
	if v, ok := rec.Get("outgoing"); ok {
		n.Outgoing, _ = v.(bool)
	}
	return n
}

func recordString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
