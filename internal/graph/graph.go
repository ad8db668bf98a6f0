package graph

import (
	"errors"
	"sort"
)

var (
	// ErrMalformed is returned for a transaction missing its hash, sender or receiver.
	ErrMalformed = errors.New("malformed transaction")

	// ErrKindConflict is returned when an id is already used by a node of the other kind.
	ErrKindConflict = errors.New("node kind conflict")
)

// Kind distinguishes the two vertex types.
type Kind int

const (
	KindNone Kind = iota
	KindAddress
	KindTransaction
)

func (k Kind) String() string {
	switch k {
	case KindAddress:
		return "address"
	case KindTransaction:
		return "transaction"
	default:
		return "none"
	}
}

// Edge is a directed sender (address -> tx) or receiver (tx -> address) edge.
type Edge struct {
	From  string
	To    string
	Value float64
}

// Transfer is one transaction node with its endpoints.
type Transfer struct {
	Hash  string
	From  string
	To    string
	Value float64
}

// Graph is a simple directed graph of address and transaction nodes.
// Address nodes are only adjacent to transaction nodes, so an address's
// in/out degree is the number of distinct transactions it received/sent.
//
// A Graph is append-only and not safe for concurrent mutation; the builder
// owns it while building and hands it read-only to consumers.
type Graph struct {
	kinds map[string]Kind
	// first-discovery level per address
	level map[string]int
	tx    map[string]Transfer
	out   map[string]map[string]float64
	in    map[string]map[string]float64
	edges int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		kinds: make(map[string]Kind),
		level: make(map[string]int),
		tx:    make(map[string]Transfer),
		out:   make(map[string]map[string]float64),
		in:    make(map[string]map[string]float64),
	}
}

// AddAddress inserts an address node discovered at level. Re-inserting keeps
// the first level. It reports whether the node was new.
func (g *Graph) AddAddress(id string, level int) (bool, error) {
	switch g.kinds[id] {
	case KindAddress:
		return false, nil
	case KindTransaction:
		return false, ErrKindConflict
	}
	g.kinds[id] = KindAddress
	g.level[id] = level
	return true, nil
}

func (g *Graph) addEdge(from, to string, value float64) {
	m, ok := g.out[from]
	if !ok {
		m = make(map[string]float64)
		g.out[from] = m
	}
	if _, dup := m[to]; dup {
		return
	}
	m[to] = value
	r, ok := g.in[to]
	if !ok {
		r = make(map[string]float64)
		g.in[to] = r
	}
	r[from] = value
	g.edges++
}

// AddTransaction inserts the transaction hash with edges from->hash and
// hash->to. Endpoints new to the graph are recorded at level. Inserting a
// hash that is already present is a no-op and reports false.
func (g *Graph) AddTransaction(hash, from, to string, value float64, level int) (bool, error) {
	if hash == "" || from == "" || to == "" {
		return false, ErrMalformed
	}
	if hash == from || hash == to {
		return false, ErrKindConflict
	}
	switch g.kinds[hash] {
	case KindTransaction:
		return false, nil
	case KindAddress:
		return false, ErrKindConflict
	}
	if g.kinds[from] == KindTransaction || g.kinds[to] == KindTransaction {
		return false, ErrKindConflict
	}
	if value < 0 {
		value = 0
	}
	_, _ = g.AddAddress(from, level)
	_, _ = g.AddAddress(to, level)
	g.kinds[hash] = KindTransaction
	g.tx[hash] = Transfer{Hash: hash, From: from, To: to, Value: value}
	g.addEdge(from, hash, value)
	g.addEdge(hash, to, value)
	return true, nil
}

// Kind reports the kind of id, KindNone when absent.
func (g *Graph) Kind(id string) Kind { return g.kinds[id] }

// Has reports whether id is a node of any kind.
func (g *Graph) Has(id string) bool { return g.kinds[id] != KindNone }

// HasEdge reports whether the directed edge from->to exists.
func (g *Graph) HasEdge(from, to string) bool {
	_, ok := g.out[from][to]
	return ok
}

// InDegree is the number of incoming edges of id.
func (g *Graph) InDegree(id string) int { return len(g.in[id]) }

// OutDegree is the number of outgoing edges of id.
func (g *Graph) OutDegree(id string) int { return len(g.out[id]) }

// Level is the BFS level of the expansion that first observed address id.
func (g *Graph) Level(id string) (int, bool) {
	l, ok := g.level[id]
	return l, ok
}

// Transaction returns the transfer stored under hash.
func (g *Graph) Transaction(hash string) (Transfer, bool) {
	t, ok := g.tx[hash]
	return t, ok
}

// NodeCount is the number of nodes of both kinds.
func (g *Graph) NodeCount() int { return len(g.kinds) }

// EdgeCount is the number of directed edges.
func (g *Graph) EdgeCount() int { return g.edges }

// AddressCount is the number of address nodes.
func (g *Graph) AddressCount() int { return len(g.level) }

// TransactionCount is the number of transaction nodes.
func (g *Graph) TransactionCount() int { return len(g.tx) }

// Addresses returns address ids sorted ascending.
func (g *Graph) Addresses() []string {
	out := make([]string, 0, len(g.level))
	for id := range g.level {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Transfers returns every transaction sorted by hash.
func (g *Graph) Transfers() []Transfer {
	out := make([]Transfer, 0, len(g.tx))
	for _, t := range g.tx {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// Edges returns every edge sorted by (From, To).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for from, m := range g.out {
		for to, v := range m {
			out = append(out, Edge{From: from, To: to, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
