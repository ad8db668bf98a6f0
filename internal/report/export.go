package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/AIAleph/chaintrace/internal/graph"
)

// CSVHeader is the first row of the address export.
var CSVHeader = []string{"Type", "Address", "In_Degree", "Out_Degree"}

// dotLabelled is how many address nodes carry a visible label.
const dotLabelled = 10

// AddressGraph is the read-only view the CSV export needs.
type AddressGraph interface {
	Addresses() []string
	InDegree(id string) int
	OutDegree(id string) int
}

// WriteCSV writes one address row per address node, sorted by address.
func WriteCSV(w io.Writer, g AddressGraph) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, id := range g.Addresses() {
		row := []string{"address", id, strconv.Itoa(g.InDegree(id)), strconv.Itoa(g.OutDegree(id))}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDOT renders g as a Graphviz digraph: addresses as blue ellipses,
// transactions as green points. Only the first few addresses are labelled,
// shortened to eight characters.
func WriteDOT(w io.Writer, g *graph.Graph) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph transactions {")
	fmt.Fprintln(bw, `  graph [label="Cryptocurrency Transaction Network", overlap=false];`)
	fmt.Fprintln(bw, "  node [fontsize=8];")
	fmt.Fprintln(bw, "  edge [penwidth=0.5, arrowsize=0.5];")
	for i, id := range g.Addresses() {
		label := ""
		if i < dotLabelled {
			label = shorten(id)
		}
		fmt.Fprintf(bw, "  %s [shape=ellipse, style=filled, fillcolor=blue, color=blue, label=%s];\n",
			strconv.Quote(id), strconv.Quote(label))
	}
	for _, t := range g.Transfers() {
		fmt.Fprintf(bw, "  %s [shape=point, color=green];\n", strconv.Quote(t.Hash))
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(bw, "  %s -> %s;\n", strconv.Quote(e.From), strconv.Quote(e.To))
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func shorten(id string) string {
	if len(id) <= 8 {
		return id + "..."
	}
	return id[:8] + "..."
}
