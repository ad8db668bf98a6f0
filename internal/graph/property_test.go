package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/AIAleph/chaintrace/internal/chain"
)

const propAddrs = 8

// randomSource turns encoded pairs into transfers between propAddrs
// addresses; pair p sends from p/propAddrs to p%propAddrs.
func randomSource(pairs []int) *fakeSource {
	src := newFakeSource()
	for i, p := range pairs {
		from := fmt.Sprintf("n%d", p/propAddrs)
		to := fmt.Sprintf("n%d", p%propAddrs)
		src.tx(fmt.Sprintf("t%d", i), from, to, "1")
	}
	return src
}

// receiverDistance is the shortest receiver-edge hop count from n0.
func receiverDistance(pairs []int) map[string]int {
	adj := make(map[string][]string)
	for _, p := range pairs {
		from := fmt.Sprintf("n%d", p/propAddrs)
		adj[from] = append(adj[from], fmt.Sprintf("n%d", p%propAddrs))
	}
	dist := map[string]int{"n0": 0}
	queue := []string{"n0"}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nx := range adj[cur] {
			if _, ok := dist[nx]; !ok {
				dist[nx] = dist[cur] + 1
				queue = append(queue, nx)
			}
		}
	}
	return dist
}

func TestBuildProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	pairs := gen.SliceOf(gen.IntRange(0, propAddrs*propAddrs-1))
	depth := gen.IntRange(0, 4)

	properties.Property("every address level is within max depth", prop.ForAll(
		func(pairs []int, maxDepth int) bool {
			g, _, err := newTestBuilder(randomSource(pairs), Options{}).Build(context.Background(), "n0", chain.ETH, maxDepth)
			if err != nil {
				return false
			}
			for _, id := range g.Addresses() {
				if l, _ := g.Level(id); l < 0 || l > maxDepth {
					return false
				}
			}
			return true
		},
		pairs, depth,
	))

	properties.Property("each address is fetched at most once", prop.ForAll(
		func(pairs []int, maxDepth int, concurrency int) bool {
			src := randomSource(pairs)
			_, stats, err := newTestBuilder(src, Options{Concurrency: concurrency}).Build(context.Background(), "n0", chain.ETH, maxDepth)
			if err != nil {
				return false
			}
			for _, n := range src.calls {
				if n > 1 {
					return false
				}
			}
			return src.totalCalls() == stats.Expanded
		},
		pairs, depth, gen.IntRange(1, 4),
	))

	properties.Property("expanded addresses are exactly those within max depth", prop.ForAll(
		func(pairs []int, maxDepth int) bool {
			src := randomSource(pairs)
			if _, _, err := newTestBuilder(src, Options{}).Build(context.Background(), "n0", chain.ETH, maxDepth); err != nil {
				return false
			}
			want := 0
			for addr, d := range receiverDistance(pairs) {
				if d > maxDepth {
					if src.calls[addr] != 0 {
						return false
					}
					continue
				}
				want++
				if src.calls[addr] != 1 {
					return false
				}
			}
			return src.totalCalls() == want
		},
		pairs, depth,
	))

	properties.Property("rebuilding yields the same graph", prop.ForAll(
		func(pairs []int, maxDepth int) bool {
			src := randomSource(pairs)
			b := newTestBuilder(src, Options{})
			g1, _, err1 := b.Build(context.Background(), "n0", chain.ETH, maxDepth)
			g2, _, err2 := b.Build(context.Background(), "n0", chain.ETH, maxDepth)
			if err1 != nil || err2 != nil {
				return false
			}
			return g1.NodeCount() == g2.NodeCount() && g1.EdgeCount() == g2.EdgeCount()
		},
		pairs, depth,
	))

	properties.Property("re-inserting every transfer changes nothing", prop.ForAll(
		func(pairs []int) bool {
			g, _, err := newTestBuilder(randomSource(pairs), Options{}).Build(context.Background(), "n0", chain.ETH, 4)
			if err != nil {
				return false
			}
			nodes, edges := g.NodeCount(), g.EdgeCount()
			for _, tr := range g.Transfers() {
				added, err := g.AddTransaction(tr.Hash, tr.From, tr.To, tr.Value, 0)
				if added || err != nil {
					return false
				}
			}
			return g.NodeCount() == nodes && g.EdgeCount() == edges
		},
		pairs,
	))

	properties.TestingRun(t)
}
