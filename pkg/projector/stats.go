package projector

// Summary aggregates a projection for status lines.
type Summary struct {
	Nodes    int            `json:"nodes"    yaml:"nodes"`
	MaxDepth int            `json:"maxDepth" yaml:"max_depth"`
	Errors   int            `json:"errors"   yaml:"errors"`
	ByType   map[string]int `json:"byType"   yaml:"by_type"`
}

// Stats summarizes nodes. Errors counts rows flagged with HasError.
func Stats(nodes []DisplayNode) Summary {
	sum := Summary{ByType: make(map[string]int)}

	for _, node := range nodes {
		sum.Nodes++
		sum.ByType[node.Type]++

		if node.Depth > sum.MaxDepth {
			sum.MaxDepth = node.Depth
		}

		if node.HasError {
			sum.Errors++
		}
	}

	return sum
}
