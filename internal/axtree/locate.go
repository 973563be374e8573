package axtree

// MinScore is the number of surface signals a node needs to qualify.
const MinScore = 2

// Score counts the signals that suggest n is a real, populated surface:
// it has geometry, it is focusable, it has a non-empty value, it has
// children.
func Score(n *Node) int {
	if n == nil {
		return 0
	}
	var s int
	if n.HasGeometry() {
		s++
	}
	if n.Focusable {
		s++
	}
	if n.Value != "" {
		s++
	}
	if len(n.Children) > 0 {
		s++
	}
	return s
}

// Locate returns the first node, in pre-order, whose role is in roles and
// whose Score is at least MinScore. Nodes deeper than maxDepth (root is
// depth 0) are not visited. A nil result means no surface was found; callers
// fall back to positional heuristics.
func Locate(root *Node, roles []string, maxDepth int) *Node {
	if root == nil || len(roles) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[NormalizeRole(r)] = struct{}{}
	}

	var found *Node
	var visit func(n *Node, depth int) bool
	visit = func(n *Node, depth int) bool {
		if n == nil || depth > maxDepth {
			return false
		}
		if _, ok := allowed[n.Role]; ok && Score(n) >= MinScore {
			found = n
			return true
		}
		for _, c := range n.Children {
			if visit(c, depth+1) {
				return true
			}
		}
		return false
	}
	visit(root, 0)
	return found
}
