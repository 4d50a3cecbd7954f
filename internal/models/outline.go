package models

// OutlineNode is one node of the hierarchical heading tree produced by
// structure extraction. Constructed once per extraction, never mutated after.
type OutlineNode struct {
	Title    string         `json:"title,omitempty"`
	Level    int            `json:"level"`
	Content  string         `json:"content"`
	Children []*OutlineNode `json:"children"`
}

// Walk visits the node and its descendants in pre-order
func (n *OutlineNode) Walk(visit func(node *OutlineNode)) {
	visit(n)
	for _, child := range n.Children {
		child.Walk(visit)
	}
}

// FlattenTitles returns the heading titles of a forest in pre-order,
// skipping untitled preamble nodes
func FlattenTitles(forest []*OutlineNode) []string {
	var titles []string
	for _, root := range forest {
		root.Walk(func(node *OutlineNode) {
			if node.Title != "" {
				titles = append(titles, node.Title)
			}
		})
	}
	return titles
}
