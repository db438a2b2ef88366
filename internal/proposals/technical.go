package proposals

import (
	"context"
	"database/sql"
	"sort"
)

// PersistTechnicalTree stores every node of roots in pre-order, children
// pointing at their parent through id_original. The walk uses an explicit
// stack so tree depth is unbounded. It returns the number of nodes stored.
func PersistTechnicalTree(ctx context.Context, repo Repo, proposalID int64, roots []TechnicalNode) (int, error) {
	type frame struct {
		node     TechnicalNode
		parent   sql.NullInt64
		position int
	}
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: roots[i], position: i})
	}

	count := 0
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		row := TechnicalRequirement{
			ProposalID:   proposalID,
			ParentID:     top.parent,
			Level:        top.node.Level,
			Name:         top.node.Name,
			DocumentName: top.node.DocumentName,
			Position:     top.position,
			Details:      top.node.Details,
		}
		if err := repo.InsertTechnical(ctx, &row); err != nil {
			return count, err
		}
		count++

		parent := sql.NullInt64{Int64: row.ID, Valid: true}
		children := top.node.Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: children[i], parent: parent, position: i})
		}
	}
	return count, nil
}

// BuildTechnicalTree rebuilds the tree from flat rows. Rows whose parent is
// missing are treated as roots.
func BuildTechnicalTree(rows []TechnicalRequirement) []TechnicalNode {
	byID := make(map[int64]TechnicalRequirement, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	children := make(map[int64][]int64)
	var roots []int64
	for _, r := range rows {
		if r.ParentID.Valid {
			if _, ok := byID[r.ParentID.Int64]; ok && r.ParentID.Int64 != r.ID {
				children[r.ParentID.Int64] = append(children[r.ParentID.Int64], r.ID)
				continue
			}
		}
		roots = append(roots, r.ID)
	}
	byPosition := func(ids []int64) {
		sort.SliceStable(ids, func(i, j int) bool {
			a, b := byID[ids[i]], byID[ids[j]]
			if a.Position != b.Position {
				return a.Position < b.Position
			}
			return a.ID < b.ID
		})
	}
	byPosition(roots)

	// Post-order assembly without recursion: a node is built once all its
	// children are built.
	built := make(map[int64]TechnicalNode, len(rows))
	type frame struct {
		id       int64
		expanded bool
	}
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{id: roots[i]})
	}
	visited := make(map[int64]bool, len(rows))
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if !top.expanded {
			stack[len(stack)-1].expanded = true
			if visited[top.id] {
				stack = stack[:len(stack)-1]
				continue
			}
			visited[top.id] = true
			kids := children[top.id]
			byPosition(kids)
			for i := len(kids) - 1; i >= 0; i-- {
				if !visited[kids[i]] {
					stack = append(stack, frame{id: kids[i]})
				}
			}
			continue
		}
		stack = stack[:len(stack)-1]
		r := byID[top.id]
		node := TechnicalNode{Level: r.Level, Name: r.Name, Details: r.Details, DocumentName: r.DocumentName}
		for _, kid := range children[top.id] {
			if child, ok := built[kid]; ok {
				node.Children = append(node.Children, child)
			}
		}
		built[top.id] = node
	}

	out := make([]TechnicalNode, 0, len(roots))
	for _, id := range roots {
		if n, ok := built[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// FlatTechnical is one node of a depth-first walk.
type FlatTechnical struct {
	Depth   int
	Level   string
	Name    string
	Details []string
}

// WalkTechnical flattens roots depth-first in document order.
func WalkTechnical(roots []TechnicalNode) []FlatTechnical {
	type frame struct {
		node  TechnicalNode
		depth int
	}
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: roots[i]})
	}
	var out []FlatTechnical
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, FlatTechnical{Depth: top.depth, Level: top.node.Level, Name: top.node.Name, Details: top.node.Details})
		for i := len(top.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: top.node.Children[i], depth: top.depth + 1})
		}
	}
	return out
}

// CountTechnical returns the number of nodes under roots.
func CountTechnical(roots []TechnicalNode) int {
	return len(WalkTechnical(roots))
}
