package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AIAleph/chaintrace/internal/chain"
	"github.com/AIAleph/chaintrace/internal/logging"
	"github.com/AIAleph/chaintrace/internal/normalize"
	"github.com/AIAleph/chaintrace/internal/source"
)

var (
	ErrEmptyAddress  = errors.New("empty root address")
	ErrNegativeDepth = errors.New("max depth must be >= 0")
)

// Fetch outcomes reported to an Observer.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Observer receives per-fetch telemetry. Implementations must be safe for
// concurrent use when Options.Concurrency > 1.
type Observer interface {
	ObserveFetch(c chain.Chain, outcome string, elapsed time.Duration)
	ObserveMalformed(c chain.Chain)
}

// Resolver returns the Source serving a chain.
type Resolver func(c chain.Chain) (source.Source, error)

// Static resolves exactly one chain to src and rejects every other chain.
func Static(c chain.Chain, src source.Source) Resolver {
	return func(req chain.Chain) (source.Source, error) {
		if req != c {
			return nil, fmt.Errorf("%w: %s", chain.ErrUnsupportedChain, req)
		}
		return src, nil
	}
}

// Options tune a build. The zero value is a sequential build without a
// per-fetch timeout.
type Options struct {
	// Concurrency bounds parallel fetches within one BFS level.
	Concurrency  int
	FetchTimeout time.Duration
	Observer     Observer
	Logger       *slog.Logger
}

// BuildStats summarises one build.
type BuildStats struct {
	Expanded        int           `json:"expanded" yaml:"expanded"`
	FetchFailures   int           `json:"fetch_failures" yaml:"fetch_failures"`
	EmptyFetches    int           `json:"empty_fetches" yaml:"empty_fetches"`
	Malformed       int           `json:"malformed" yaml:"malformed"`
	TxInserted      int           `json:"tx_inserted" yaml:"tx_inserted"`
	TxDuplicate     int           `json:"tx_duplicate" yaml:"tx_duplicate"`
	Levels          int           `json:"levels" yaml:"levels"`
	RootFetchFailed bool          `json:"root_fetch_failed" yaml:"root_fetch_failed"`
	RootEmpty       bool          `json:"root_empty" yaml:"root_empty"`
	RootErr         error         `json:"-" yaml:"-"`
	Elapsed         time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Builder expands an address neighbourhood breadth-first. It is a
// best-effort sampler: sources may truncate histories and failed branches
// are pruned, so the graph is never guaranteed complete.
type Builder struct {
	resolve Resolver
	opts    Options
}

// NewBuilder returns a Builder fetching through resolve.
func NewBuilder(resolve Resolver, opts Options) *Builder {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Builder{resolve: resolve, opts: opts}
}

type entry struct {
	address string
	depth   int
}

type fetchResult struct {
	txs     []source.Transaction
	err     error
	elapsed time.Duration
}

// Build expands root up to maxDepth hops. Only argument errors, unsupported
// chains and cancellation of ctx are returned; per-address fetch failures
// are absorbed into the stats. On cancellation the partial graph is
// returned alongside the error.
func (b *Builder) Build(ctx context.Context, root string, c chain.Chain, maxDepth int) (g *Graph, stats BuildStats, err error) {
	root = normalize.Identifier(root, c.IsEVM())
	if root == "" {
		return nil, stats, ErrEmptyAddress
	}
	if maxDepth < 0 {
		return nil, stats, ErrNegativeDepth
	}
	if err := c.Validate(); err != nil {
		return nil, stats, err
	}
	if b.resolve == nil {
		return nil, stats, fmt.Errorf("%w: %s", chain.ErrUnsupportedChain, c)
	}
	src, err := b.resolve(c)
	if err != nil {
		return nil, stats, err
	}

	log := logging.Component("graph.builder")
	if b.opts.Logger != nil {
		log = b.opts.Logger.With("component", "graph.builder")
	}
	log = log.With("chain", c.String(), "root", root)

	start := time.Now()
	g = New()
	_, _ = g.AddAddress(root, 0)
	defer func() {
		stats.Elapsed = time.Since(start)
		log.Info("build_done",
			"max_depth", maxDepth,
			"levels", stats.Levels,
			"expanded", stats.Expanded,
			"fetch_failures", stats.FetchFailures,
			"empty_fetches", stats.EmptyFetches,
			"malformed", stats.Malformed,
			"tx_inserted", stats.TxInserted,
			"tx_duplicate", stats.TxDuplicate,
			"nodes", g.NodeCount(),
			"edges", g.EdgeCount(),
			"elapsed_ms", stats.Elapsed.Milliseconds(),
		)
	}()

	visited := make(map[string]struct{})
	frontier := []entry{{address: root, depth: 0}}
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return g, stats, fmt.Errorf("build interrupted: %w", err)
		}
		// Check-and-mark happens here, on the coordinating goroutine, so an
		// address is never expanded twice even when fetches run in parallel.
		batch := make([]entry, 0, len(frontier))
		for _, e := range frontier {
			if _, seen := visited[e.address]; seen || e.depth > maxDepth {
				continue
			}
			visited[e.address] = struct{}{}
			batch = append(batch, e)
		}
		if len(batch) == 0 {
			break
		}
		stats.Levels++
		results := b.fetchLevel(ctx, src, batch, log)

		queued := make(map[string]struct{})
		var next []entry
		for i, e := range batch {
			stats.Expanded++
			r := results[i]
			isRoot := e.address == root && e.depth == 0
			switch {
			case r.err != nil:
				fe := &source.FetchError{Address: e.address, Chain: c, Err: r.err}
				stats.FetchFailures++
				if isRoot {
					stats.RootFetchFailed = true
					stats.RootErr = fe
				}
				log.Warn("fetch_failed", "address", e.address, "depth", e.depth, "error", fe.Error())
				b.observeFetch(c, OutcomeError, r.elapsed)
				continue
			case len(r.txs) == 0:
				stats.EmptyFetches++
				if isRoot {
					stats.RootEmpty = true
				}
				b.observeFetch(c, OutcomeEmpty, r.elapsed)
				continue
			}
			b.observeFetch(c, OutcomeOK, r.elapsed)
			for _, tx := range r.txs {
				receiver, ok := b.insert(g, c, tx, e.depth, &stats, log)
				if !ok || receiver == e.address || e.depth >= maxDepth {
					continue
				}
				if _, seen := visited[receiver]; seen {
					continue
				}
				if _, dup := queued[receiver]; dup {
					continue
				}
				queued[receiver] = struct{}{}
				next = append(next, entry{address: receiver, depth: e.depth + 1})
			}
		}
		frontier = next
	}
	// Fetches of the last level absorb a cancelled ctx as branch failures.
	if err := ctx.Err(); err != nil {
		return g, stats, fmt.Errorf("build interrupted: %w", err)
	}
	return g, stats, nil
}

// insert adds one record and returns its normalised receiver. Records that
// cannot be inserted are counted as malformed.
func (b *Builder) insert(g *Graph, c chain.Chain, tx source.Transaction, depth int, stats *BuildStats, log *slog.Logger) (string, bool) {
	tx.Hash = normalize.Identifier(tx.Hash, c.IsEVM())
	tx.From = normalize.Identifier(tx.From, c.IsEVM())
	tx.To = normalize.Identifier(tx.To, c.IsEVM())
	hash, from, to := tx.Hash, tx.From, tx.To
	reject := func(reason string) (string, bool) {
		stats.Malformed++
		log.Debug("tx_skipped", "hash", hash, "reason", reason)
		if b.opts.Observer != nil {
			b.opts.Observer.ObserveMalformed(c)
		}
		return "", false
	}
	if !tx.Valid() {
		return reject("missing hash, sender or receiver")
	}
	if strings.TrimSpace(tx.Value) == "" {
		return reject("missing value")
	}
	value, ok := normalize.Units(tx.Value, c.Decimals())
	if !ok {
		return reject("invalid value " + strings.TrimSpace(tx.Value))
	}
	added, err := g.AddTransaction(hash, from, to, value, depth)
	if err != nil {
		return reject(err.Error())
	}
	if added {
		stats.TxInserted++
	} else {
		stats.TxDuplicate++
	}
	return to, true
}

func (b *Builder) fetchLevel(ctx context.Context, src source.Source, batch []entry, log *slog.Logger) []fetchResult {
	results := make([]fetchResult, len(batch))
	if b.opts.Concurrency == 1 || len(batch) == 1 {
		for i, e := range batch {
			results[i] = b.fetch(ctx, src, e, log)
		}
		return results
	}
	var eg errgroup.Group
	eg.SetLimit(b.opts.Concurrency)
	for i, e := range batch {
		i, e := i, e
		eg.Go(func() error {
			results[i] = b.fetch(ctx, src, e, log)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (b *Builder) fetch(ctx context.Context, src source.Source, e entry, log *slog.Logger) fetchResult {
	log.Info("expand", "address", e.address, "depth", e.depth)
	if b.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.FetchTimeout)
		defer cancel()
	}
	start := time.Now()
	txs, err := src.Transactions(ctx, e.address)
	return fetchResult{txs: txs, err: err, elapsed: time.Since(start)}
}

func (b *Builder) observeFetch(c chain.Chain, outcome string, d time.Duration) {
	if b.opts.Observer != nil {
		b.opts.Observer.ObserveFetch(c, outcome, d)
	}
}
