// Package analysis labels graph nodes and transaction amounts. Every
// function here is pure: it reads its inputs and never mutates them.
package analysis

import "sort"

// DegreeGraph is the read-only view the heuristics need.
type DegreeGraph interface {
	Addresses() []string
	InDegree(id string) int
	OutDegree(id string) int
}

// Thresholds bounds the mixer heuristic. Both comparisons are strict.
type Thresholds struct {
	MinIn  int `json:"min_in" yaml:"min_in"`
	MinOut int `json:"min_out" yaml:"min_out"`
}

// DefaultThresholds flags addresses with more than 5 inbound and 5 outbound transactions.
func DefaultThresholds() Thresholds { return Thresholds{MinIn: 5, MinOut: 5} }

// FindMixers returns addresses whose in-degree exceeds th.MinIn and whose
// out-degree exceeds th.MinOut, sorted ascending. The label is advisory: a
// busy exchange hot wallet matches as well as a mixer does.
func FindMixers(g DegreeGraph, th Thresholds) []string {
	var out []string
	for _, id := range g.Addresses() {
		if g.InDegree(id) > th.MinIn && g.OutDegree(id) > th.MinOut {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// FindTerminalReceivers returns addresses that received funds and never sent
// any within the sampled graph, sorted ascending.
func FindTerminalReceivers(g DegreeGraph) []string {
	var out []string
	for _, id := range g.Addresses() {
		if g.InDegree(id) > 0 && g.OutDegree(id) == 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Rank returns a copy of ids ordered by total degree descending, ties by id.
func Rank(g DegreeGraph, ids []string) []string {
	out := append([]string(nil), ids...)
	total := func(id string) int { return g.InDegree(id) + g.OutDegree(id) }
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := total(out[i]), total(out[j])
		if ti != tj {
			return ti > tj
		}
		return out[i] < out[j]
	})
	return out
}

// Top returns at most n leading elements of ids.
func Top(ids []string, n int) []string {
	if n < 0 || len(ids) <= n {
		return ids
	}
	return ids[:n]
}
