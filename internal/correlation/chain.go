package correlation

import "sort"

// PlanChainForTarget walks the graph backward from target, collecting every
// transitive producer, and returns the plan in capture order so producers
// always run before their consumers. A target with no producers plans as a
// single-step chain.
func PlanChainForTarget(g *Graph, target int) []int {
	included := map[int]bool{target: true}
	frontier := []int{target}

	for len(frontier) > 0 {
		var next []int
		for _, n := range frontier {
			for _, e := range g.Producers(n) {
				if !included[e.From] {
					included[e.From] = true
					next = append(next, e.From)
				}
			}
		}
		frontier = next
	}

	plan := make([]int, 0, len(included))
	for n := range included {
		plan = append(plan, n)
	}
	sort.Ints(plan)
	return plan
}
