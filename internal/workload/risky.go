package workload

import "workctl/internal/config"

// Work that only stops once aborted.
var riskyWork = map[string]struct{}{
	"stubborn": {},
}

// IsRisky reports whether the tree holds work that ignores termination
// requests.
func IsRisky(n *config.TreeNode) bool {
	if n.IsLeaf() {
		_, risky := riskyWork[n.Work]
		return risky
	}
	for i := range n.Children {
		if IsRisky(&n.Children[i]) {
			return true
		}
	}
	return false
}
