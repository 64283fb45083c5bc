package graph

import (
	"container/heap"
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/relgraph/internal/model"
)

// PathConfig bounds a path search.
type PathConfig struct {
	MaxDepth int // hops from the anchor; default 3
	MaxNodes int // nodes expanded per search; default 50
	FanOut   int // neighbors fetched per expansion; default 25
}

// PathFinder runs a weighted best-first search for introduction paths.
type PathFinder struct {
	index Index
	cfg   PathConfig
}

// NewPathFinder creates a PathFinder over index.
func NewPathFinder(index Index, cfg PathConfig) *PathFinder {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = 50
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = 25
	}
	return &PathFinder{index: index, cfg: cfg}
}

type frontierItem struct {
	id    string
	path  []model.PathNode
	score float64
	depth int
	seq   int
}

// frontier is a max-heap on score; equal scores pop in insertion order.
type frontier []*frontierItem

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].score != f[j].score {
		return f[i].score > f[j].score
	}
	return f[i].seq < f[j].seq
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(*frontierItem)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return it
}

// Find returns up to limit paths from anchorID to targetID, best first.
// Every non-target node is visited at most once per search, so no path
// repeats a node. The target is never marked visited, which lets several
// distinct paths reach it.
func (p *PathFinder) Find(ctx context.Context, anchorID, targetID string, limit int) ([]model.Path, error) {
	if anchorID == "" || targetID == "" {
		return nil, eris.New("graph: anchor and target ids are required")
	}
	if limit <= 0 || anchorID == targetID {
		return []model.Path{}, nil
	}

	var (
		seq      int
		expanded int
		paths    []model.Path
		visited  = map[string]bool{anchorID: true}
		pq       = &frontier{}
	)
	heap.Push(pq, &frontierItem{
		id:   anchorID,
		path: []model.PathNode{{ID: anchorID}},
		seq:  seq,
	})

	for pq.Len() > 0 && len(paths) < limit {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "graph: path search cancelled")
		}

		cur := heap.Pop(pq).(*frontierItem)
		if cur.id == targetID {
			paths = append(paths, model.Path{
				Nodes:       cur.path,
				Depth:       cur.depth,
				Score:       1 - float64(cur.depth)*0.2,
				Description: DescribeDepth(cur.depth),
			})
			continue
		}
		if cur.depth >= p.cfg.MaxDepth || expanded >= p.cfg.MaxNodes {
			continue
		}
		expanded++

		neighbors, err := p.index.Neighbors(ctx, cur.id, p.cfg.FanOut)
		if err != nil {
			return nil, eris.Wrapf(err, "graph: expand %s", cur.id)
		}

		lengthBonus := max(0, 1-float64(cur.depth)*0.1)
		for _, n := range neighbors {
			if visited[n.ID] {
				continue
			}
			if n.ID != targetID {
				visited[n.ID] = true
			}
			path := make([]model.PathNode, len(cur.path), len(cur.path)+1)
			copy(path, cur.path)
			path = append(path, model.PathNode{ID: n.ID, Name: n.Name, Relationship: n.Kind})

			seq++
			heap.Push(pq, &frontierItem{
				id:    n.ID,
				path:  path,
				score: cur.score + EdgeWeight(n.Strength, n.Kind) + lengthBonus,
				depth: cur.depth + 1,
				seq:   seq,
			})
		}
	}

	sort.SliceStable(paths, func(i, j int) bool { return paths[i].Score > paths[j].Score })

	zap.L().Debug("graph: path search complete",
		zap.String("anchor", anchorID),
		zap.String("target", targetID),
		zap.Int("expanded", expanded),
		zap.Int("paths", len(paths)),
	)
	return paths, nil
}

// DescribeDepth labels a path by its hop count.
func DescribeDepth(depth int) string {
	switch depth {
	case 1:
		return "Direct connection"
	case 2:
		return "One degree of separation"
	case 3:
		return "Two degrees of separation"
	default:
		return fmt.Sprintf("%d degrees of separation", depth-1)
	}
}
