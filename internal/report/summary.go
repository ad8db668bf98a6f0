// Package report renders analysis results for humans and tools. It only
// reads the graph; nothing here mutates it.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AIAleph/chaintrace/internal/analysis"
	"github.com/AIAleph/chaintrace/internal/graph"
)

// Listing limits for the text summary.
const (
	TopMixers    = 5
	TopReceivers = 10
)

const rule = "=================================================="

// Format selects the summary encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts text, json or yaml, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown format %q (use text|json|yaml)", s)
	}
}

// Degrees is one address row.
type Degrees struct {
	Address string `json:"address" yaml:"address"`
	In      int    `json:"in_degree" yaml:"in_degree"`
	Out     int    `json:"out_degree" yaml:"out_degree"`
}

// Meta describes the run that produced a graph.
type Meta struct {
	RunID    string
	Root     string
	Chain    string
	MaxDepth int
	Stats    graph.BuildStats
}

// Summary is the serialisable result of a graph analysis. Mixers and
// Receivers hold the ranked top entries; the counts cover all of them.
type Summary struct {
	RunID          string              `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Root           string              `json:"root" yaml:"root"`
	Chain          string              `json:"chain" yaml:"chain"`
	MaxDepth       int                 `json:"max_depth" yaml:"max_depth"`
	Nodes          int                 `json:"nodes" yaml:"nodes"`
	Addresses      int                 `json:"addresses" yaml:"addresses"`
	Transactions   int                 `json:"transactions" yaml:"transactions"`
	Edges          int                 `json:"edges" yaml:"edges"`
	NoTransactions bool                `json:"no_transactions,omitempty" yaml:"no_transactions,omitempty"`
	RootError      string              `json:"root_error,omitempty" yaml:"root_error,omitempty"`
	MixerCount     int                 `json:"mixer_count" yaml:"mixer_count"`
	Mixers         []Degrees           `json:"mixers" yaml:"mixers"`
	ReceiverCount  int                 `json:"receiver_count" yaml:"receiver_count"`
	Receivers      []Degrees           `json:"receivers" yaml:"receivers"`
	Stats          graph.BuildStats    `json:"stats" yaml:"stats"`
	Thresholds     analysis.Thresholds `json:"thresholds" yaml:"thresholds"`
}

// NewSummary assembles a summary from a built graph and its labels.
func NewSummary(g *graph.Graph, mixers, receivers []string, th analysis.Thresholds, m Meta) Summary {
	s := Summary{
		RunID:         m.RunID,
		Root:          m.Root,
		Chain:         m.Chain,
		MaxDepth:      m.MaxDepth,
		Nodes:         g.NodeCount(),
		Addresses:     g.AddressCount(),
		Transactions:  g.TransactionCount(),
		Edges:         g.EdgeCount(),
		MixerCount:    len(mixers),
		ReceiverCount: len(receivers),
		Stats:         m.Stats,
		Thresholds:    th,
	}
	s.NoTransactions = m.Stats.RootEmpty && s.Transactions == 0
	if m.Stats.RootErr != nil {
		s.RootError = m.Stats.RootErr.Error()
	}
	s.Mixers = degrees(g, analysis.Top(analysis.Rank(g, mixers), TopMixers))
	s.Receivers = degrees(g, analysis.Top(analysis.Rank(g, receivers), TopReceivers))
	return s
}

func degrees(g analysis.DegreeGraph, ids []string) []Degrees {
	out := make([]Degrees, 0, len(ids))
	for _, id := range ids {
		out = append(out, Degrees{Address: id, In: g.InDegree(id), Out: g.OutDegree(id)})
	}
	return out
}

// WriteSummary encodes s to w in format f.
func WriteSummary(w io.Writer, s Summary, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		return writeText(w, s)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

func writeText(w io.Writer, s Summary) error {
	b := &strings.Builder{}
	fmt.Fprintf(b, "Transaction Graph Analysis Results\n%s\n", rule)
	fmt.Fprintf(b, "Root: %s (%s, depth %d)\n", s.Root, s.Chain, s.MaxDepth)
	if s.RunID != "" {
		fmt.Fprintf(b, "Run: %s\n", s.RunID)
	}
	fmt.Fprintf(b, "Total nodes: %d\n", s.Nodes)
	fmt.Fprintf(b, "Total transactions: %d\n", s.Transactions)
	fmt.Fprintf(b, "Addresses: %d  Edges: %d\n", s.Addresses, s.Edges)
	fmt.Fprintf(b, "Expanded: %d  Fetch failures: %d  Malformed: %d\n",
		s.Stats.Expanded, s.Stats.FetchFailures, s.Stats.Malformed)
	if s.RootError != "" {
		fmt.Fprintf(b, "Root fetch failed: %s\n", s.RootError)
	} else if s.NoTransactions {
		fmt.Fprintf(b, "No transactions found for %s.\n", s.Root)
	}
	if s.MixerCount > 0 {
		fmt.Fprintf(b, "\nPotential Mixing Services Detected (%d):\n%s\n", s.MixerCount, rule)
		for _, d := range s.Mixers {
			fmt.Fprintf(b, "Address: %s (in %d, out %d)\n", d.Address, d.In, d.Out)
		}
	}
	if s.ReceiverCount > 0 {
		fmt.Fprintf(b, "\nPotential End Receivers (%d):\n%s\n", s.ReceiverCount, rule)
		for _, d := range s.Receivers {
			fmt.Fprintf(b, "Address: %s\n", d.Address)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
