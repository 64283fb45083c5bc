package model

// Search types reported in responses.
const (
	SearchTypeConnection = "connection"
	SearchTypeSemantic   = "semantic"
)

// SearchRequest is the body of a search call.
type SearchRequest struct {
	Query   string         `json:"query"`
	Filters map[string]any `json:"filters"`
	Limit   int            `json:"limit"`
}

// SearchResult is one ranked entity or introduction path.
type SearchResult struct {
	Entity     *Entity `json:"entity,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
	Path       *Path   `json:"path,omitempty"`
}

// SearchResponse is returned by the search entrypoint.
type SearchResponse struct {
	Success    bool           `json:"success"`
	Results    []SearchResult `json:"results"`
	Query      string         `json:"query"`
	Filters    map[string]any `json:"filters"`
	Total      int            `json:"total"`
	SearchType string         `json:"search_type"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// PathNode is one hop of an introduction path.
type PathNode struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// Relationship is the edge kind used to reach this node; empty for the anchor.
	Relationship string `json:"relationship,omitempty"`
}

// Path is an introduction path from the anchor to a target.
type Path struct {
	Nodes       []PathNode `json:"nodes"`
	Depth       int        `json:"depth"`
	Score       float64    `json:"score"`
	Description string     `json:"description"`
}

// IDs returns the node ids along the path.
func (p Path) IDs() []string {
	ids := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		ids[i] = n.ID
	}
	return ids
}
