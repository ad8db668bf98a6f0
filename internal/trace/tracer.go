// Package trace runs one tracer invocation: it builds the graph through the
// chain's Source, labels it, records metrics and feeds the optional sinks.
package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AIAleph/chaintrace/internal/analysis"
	"github.com/AIAleph/chaintrace/internal/chain"
	"github.com/AIAleph/chaintrace/internal/config"
	"github.com/AIAleph/chaintrace/internal/graph"
	"github.com/AIAleph/chaintrace/internal/logging"
	"github.com/AIAleph/chaintrace/internal/metrics"
	"github.com/AIAleph/chaintrace/internal/normalize"
	"github.com/AIAleph/chaintrace/internal/report"
	"github.com/AIAleph/chaintrace/internal/source"
	"github.com/AIAleph/chaintrace/pkg/kafkasink"
	"github.com/AIAleph/chaintrace/pkg/neo4jsink"
)

// ErrSink marks a failed export to Neo4j or Kafka. The analysis itself is
// still complete when it is returned.
var ErrSink = errors.New("sink write failed")

var validate = validator.New()

// newRunID is a test seam.
var newRunID = uuid.NewString

// GraphSink receives the whole traced graph.
type GraphSink interface {
	WriteGraph(ctx context.Context, g neo4jsink.Graph) error
}

// EdgeSink receives one message per traced transaction.
type EdgeSink interface {
	Publish(ctx context.Context, edges []kafkasink.Edge) error
}

// Options configure a tracer run.
type Options struct {
	MaxDepth         int               `validate:"gte=0,lte=6"`
	Concurrency      int               `validate:"gte=0,lte=16"`
	MixerMinIn       int               `validate:"gte=0"`
	MixerMinOut      int               `validate:"gte=0"`
	AnomalyThreshold float64           `validate:"gte=0"`
	FetchTimeout     time.Duration     `validate:"gte=0"`
	Logger           *slog.Logger      `validate:"-"`
	Metrics          *metrics.Registry `validate:"-"`
	Graph            GraphSink         `validate:"-"`
	Edges            EdgeSink          `validate:"-"`
}

// Thresholds returns the mixer thresholds of o.
func (o Options) Thresholds() analysis.Thresholds {
	return analysis.Thresholds{MinIn: o.MixerMinIn, MinOut: o.MixerMinOut}
}

// OptionsFrom maps loaded configuration onto Options.
func OptionsFrom(cfg config.Config) Options {
	return Options{
		MaxDepth:     cfg.MaxDepth,
		Concurrency:  cfg.Concurrency,
		MixerMinIn:   cfg.MixerMinIn,
		MixerMinOut:  cfg.MixerMinOut,
		FetchTimeout: cfg.FetchTimeout,
	}
}

// Tracer runs analyses for one chain against one Source.
type Tracer struct {
	chain chain.Chain
	src   source.Source
	opts  Options
	base  *slog.Logger
	log   *slog.Logger
}

// New validates c and opts and returns a Tracer reading from src.
func New(c chain.Chain, src source.Source, opts Options) (*Tracer, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New("nil source")
	}
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	base, log := opts.Logger, logging.Component("trace")
	if base == nil {
		base = logging.Logger()
	} else {
		log = base.With("component", "trace")
	}
	return &Tracer{
		chain: c,
		src:   src,
		opts:  opts,
		base:  base,
		log:   log.With("chain", c.String()),
	}, nil
}

// NewForChain builds the chain's explorer Source from cfg and wraps it.
func NewForChain(c chain.Chain, cfg config.Config, opts Options) (*Tracer, error) {
	src, err := source.New(c, source.ConfigFor(c, cfg))
	if err != nil {
		return nil, err
	}
	return New(c, src, opts)
}

// Analysis is the outcome of Analyze.
type Analysis struct {
	RunID      string
	Root       string
	Chain      chain.Chain
	MaxDepth   int
	Graph      *graph.Graph
	Stats      graph.BuildStats
	Mixers     []string
	Receivers  []string
	Thresholds analysis.Thresholds
	// NoTransactions is set when the root fetch succeeded with no records.
	NoTransactions bool
}

// RootErr is the root fetch failure, nil when the root fetch succeeded.
func (a Analysis) RootErr() error { return a.Stats.RootErr }

// Summary renders a as a report summary.
func (a Analysis) Summary() report.Summary {
	return report.NewSummary(a.Graph, a.Mixers, a.Receivers, a.Thresholds, report.Meta{
		RunID:    a.RunID,
		Root:     a.Root,
		Chain:    a.Chain.String(),
		MaxDepth: a.MaxDepth,
		Stats:    a.Stats,
	})
}

// Analyze builds the graph around address, labels it and pushes it to the
// configured sinks. A failed root fetch is reported through RootErr, not as
// an error. On cancellation the partial analysis is returned with the error.
func (t *Tracer) Analyze(ctx context.Context, address string) (a Analysis, err error) {
	a = Analysis{
		RunID:      newRunID(),
		Root:       normalize.Identifier(address, t.chain.IsEVM()),
		Chain:      t.chain,
		MaxDepth:   t.opts.MaxDepth,
		Thresholds: t.opts.Thresholds(),
	}
	log := logging.WithRun(t.log, a.RunID)
	start := time.Now()
	defer func() {
		attrs := []any{
			"root", a.Root,
			"max_depth", a.MaxDepth,
			"mixers", len(a.Mixers),
			"receivers", len(a.Receivers),
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			log.Error("analyze_failed", append(attrs, "error", err.Error())...)
			return
		}
		log.Info("analyze_done", attrs...)
	}()

	bopts := graph.Options{
		Concurrency:  t.opts.Concurrency,
		FetchTimeout: t.opts.FetchTimeout,
		Logger:       logging.WithRun(t.base, a.RunID),
	}
	if t.opts.Metrics != nil {
		bopts.Observer = t.opts.Metrics
	}
	g, stats, err := graph.NewBuilder(graph.Static(t.chain, t.src), bopts).Build(ctx, a.Root, t.chain, t.opts.MaxDepth)
	a.Graph, a.Stats = g, stats
	if g == nil {
		return a, err
	}
	a.Mixers = analysis.FindMixers(g, a.Thresholds)
	a.Receivers = analysis.FindTerminalReceivers(g)
	a.NoTransactions = stats.RootEmpty && g.TransactionCount() == 0
	if t.opts.Metrics != nil {
		t.opts.Metrics.RecordGraph(g, len(a.Mixers), len(a.Receivers))
	}
	if err != nil {
		return a, err
	}
	return a, t.export(ctx, a, log)
}

func (t *Tracer) export(ctx context.Context, a Analysis, log *slog.Logger) error {
	if t.opts.Graph == nil && t.opts.Edges == nil {
		return nil
	}
	transfers := a.Graph.Transfers()
	var errs []error
	if t.opts.Graph != nil {
		ng := neo4jsink.Graph{RunID: a.RunID, Chain: a.Chain.String(), Addresses: a.Graph.Addresses()}
		for _, tr := range transfers {
			ng.Transfers = append(ng.Transfers, neo4jsink.Transfer{Hash: tr.Hash, From: tr.From, To: tr.To, Value: tr.Value})
		}
		if err := t.opts.Graph.WriteGraph(ctx, ng); err != nil {
			errs = append(errs, fmt.Errorf("%w: neo4j: %w", ErrSink, err))
		} else {
			log.Info("graph_exported", "sink", "neo4j", "addresses", len(ng.Addresses), "transfers", len(ng.Transfers))
		}
	}
	if t.opts.Edges != nil {
		edges := make([]kafkasink.Edge, 0, len(transfers))
		for _, tr := range transfers {
			edges = append(edges, kafkasink.Edge{
				RunID: a.RunID, Chain: a.Chain.String(), Hash: tr.Hash, From: tr.From, To: tr.To, Value: tr.Value,
			})
		}
		if err := t.opts.Edges.Publish(ctx, edges); err != nil {
			errs = append(errs, fmt.Errorf("%w: kafka: %w", ErrSink, err))
		} else {
			log.Info("graph_exported", "sink", "kafka", "edges", len(edges))
		}
	}
	return errors.Join(errs...)
}

// FetchReport is the outcome of Fetch.
type FetchReport struct {
	RunID     string
	Address   string
	Chain     chain.Chain
	Txs       []source.Transaction
	Anomalies []analysis.Anomaly
}

// Listing renders r for the raw transaction report.
func (r FetchReport) Listing() report.Listing {
	return report.Listing{
		Address:   r.Address,
		Symbol:    r.Chain.Symbol(),
		Decimals:  r.Chain.Decimals(),
		Txs:       r.Txs,
		Anomalies: r.Anomalies,
	}
}

// Fetch loads the history of address once and scores its amounts. Unlike
// Analyze, a fetch failure is returned as a *source.FetchError.
func (t *Tracer) Fetch(ctx context.Context, address string) (FetchReport, error) {
	r := FetchReport{
		RunID:   newRunID(),
		Address: normalize.Identifier(address, t.chain.IsEVM()),
		Chain:   t.chain,
	}
	if r.Address == "" {
		return r, graph.ErrEmptyAddress
	}
	log := logging.WithRun(t.log, r.RunID)
	fctx := ctx
	if t.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, t.opts.FetchTimeout)
		defer cancel()
	}
	start := time.Now()
	txs, err := t.src.Transactions(fctx, r.Address)
	elapsed := time.Since(start)
	if err != nil {
		t.observe(graph.OutcomeError, elapsed)
		fe := &source.FetchError{Address: r.Address, Chain: t.chain, Err: err}
		log.Warn("fetch_failed", "address", r.Address, "error", fe.Error())
		return r, fe
	}
	if len(txs) == 0 {
		t.observe(graph.OutcomeEmpty, elapsed)
	} else {
		t.observe(graph.OutcomeOK, elapsed)
	}
	r.Txs = txs
	r.Anomalies = analysis.DetectAnomalies(txs, t.chain.Decimals(), analysis.RobustZScorer{}, t.opts.AnomalyThreshold)
	log.Info("fetch_done", "address", r.Address, "txs", len(txs), "anomalies", len(r.Anomalies), "elapsed_ms", elapsed.Milliseconds())
	return r, nil
}

func (t *Tracer) observe(outcome string, d time.Duration) {
	if t.opts.Metrics != nil {
		t.opts.Metrics.ObserveFetch(t.chain, outcome, d)
	}
}
