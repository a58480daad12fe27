package labeller

import (
	"sort"

	"github.com/hyperjump/shiori/internal/models"
)

type graph map[int64]map[int64]struct{}

func buildGraph(edges []models.PaperCitation) graph {
	g := make(graph)
	link := func(a, b int64) {
		set, ok := g[a]
		if !ok {
			set = make(map[int64]struct{})
			g[a] = set
		}
		set[b] = struct{}{}
	}
	for _, e := range edges {
		if e.IsSelfLoop() {
			continue
		}
		link(e.CitingPaperID, e.CitedPaperID)
		link(e.CitedPaperID, e.CitingPaperID)
	}
	return g
}

// colorClasses greedily colours g, visiting nodes by descending degree, and
// returns the nodes of each colour in ascending id order. No two nodes of one
// class are adjacent.
func colorClasses(g graph, nodes []int64) [][]int64 {
	order := append([]int64(nil), nodes...)
	sort.SliceStable(order, func(i, j int) bool { return len(g[order[i]]) > len(g[order[j]]) })

	color := make(map[int64]int, len(nodes))
	classes := 0
	for _, n := range order {
		used := make(map[int]bool, len(g[n]))
		for nb := range g[n] {
			if c, ok := color[nb]; ok {
				used[c] = true
			}
		}
		c := 0
		for used[c] {
			c++
		}
		color[n] = c
		if c+1 > classes {
			classes = c + 1
		}
	}

	out := make([][]int64, classes)
	for _, n := range nodes {
		out[color[n]] = append(out[color[n]], n)
	}
	return out
}

// dominantLabels returns the most frequent labels among n's neighbours.
func dominantLabels(g graph, label map[int64]int64, n int64) map[int64]bool {
	freq := make(map[int64]int, len(g[n]))
	best := 0
	for nb := range g[n] {
		l := label[nb]
		freq[l]++
		if freq[l] > best {
			best = freq[l]
		}
	}
	top := make(map[int64]bool)
	for l, c := range freq {
		if c == best {
			top[l] = true
		}
	}
	return top
}

// DetectCommunities runs semi-synchronous label propagation over the
// undirected graph formed by edges. Self loops are ignored. Nodes are coloured
// so that no two neighbours share a colour, then each colour class is updated
// in turn; a node whose label is not among its neighbours' most frequent
// labels adopts the largest of them. Propagation stops once every node holds a
// dominant label, or after maxIterations rounds.
//
// Communities are returned largest first (ties by smallest member) with
// members in ascending order.
func DetectCommunities(edges []models.PaperCitation, maxIterations int) [][]int64 {
	g := buildGraph(edges)
	if len(g) == 0 {
		return nil
	}

	nodes := make([]int64, 0, len(g))
	for n := range g {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	classes := colorClasses(g, nodes)

	label := make(map[int64]int64, len(nodes))
	for _, n := range nodes {
		label[n] = n
	}
	if maxIterations <= 0 {
		maxIterations = 1
	}

	settled := func() bool {
		for _, n := range nodes {
			if !dominantLabels(g, label, n)[label[n]] {
				return false
			}
		}
		return true
	}
	for iter := 0; iter < maxIterations && !settled(); iter++ {
		for _, class := range classes {
			for _, n := range class {
				top := dominantLabels(g, label, n)
				if top[label[n]] {
					continue
				}
				first := true
				var next int64
				for l := range top {
					if first || l > next {
						next = l
						first = false
					}
				}
				label[n] = next
			}
		}
	}

	byLabel := make(map[int64][]int64)
	for _, n := range nodes {
		byLabel[label[n]] = append(byLabel[label[n]], n)
	}
	out := make([][]int64, 0, len(byLabel))
	for _, members := range byLabel {
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i][0] < out[j][0]
	})
	return out
}
