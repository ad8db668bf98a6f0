package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AIAleph/chaintrace/internal/chain"
	"github.com/AIAleph/chaintrace/internal/classify"
	cfgpkg "github.com/AIAleph/chaintrace/internal/config"
	"github.com/AIAleph/chaintrace/internal/logging"
	"github.com/AIAleph/chaintrace/internal/metrics"
	"github.com/AIAleph/chaintrace/internal/report"
	"github.com/AIAleph/chaintrace/internal/trace"
	"github.com/AIAleph/chaintrace/pkg/kafkasink"
	"github.com/AIAleph/chaintrace/pkg/neo4jsink"
)

// tracer is the part of *trace.Tracer the CLI drives.
type tracer interface {
	Analyze(ctx context.Context, address string) (trace.Analysis, error)
	Fetch(ctx context.Context, address string) (trace.FetchReport, error)
}

type graphSink interface {
	trace.GraphSink
	Close(ctx context.Context) error
}

type edgeSink interface {
	trace.EdgeSink
	Close() error
}

var (
	// version is set via -ldflags "-X main.version=..."
	version = "dev"
	// exit is aliased to os.Exit to allow overriding in tests.
	exit = os.Exit
	// function variables allow tests to inject stubs
	newTracer    func(c chain.Chain, cfg cfgpkg.Config, opts trace.Options) (tracer, error)
	newGraphSink func(uri, user, pass, db string) (graphSink, error)
	newEdgeSink  func(brokers []string, topic string) (edgeSink, error)
)

func defaultNewTracer(c chain.Chain, cfg cfgpkg.Config, opts trace.Options) (tracer, error) {
	return trace.NewForChain(c, cfg, opts)
}

func defaultNewGraphSink(uri, user, pass, db string) (graphSink, error) {
	return neo4jsink.New(uri, user, pass, db)
}

func defaultNewEdgeSink(brokers []string, topic string) (edgeSink, error) {
	return kafkasink.New(brokers, topic)
}

func wireDefaults() {
	newTracer = defaultNewTracer
	newGraphSink = defaultNewGraphSink
	newEdgeSink = defaultNewEdgeSink
}

func init() { wireDefaults() }

// printUsage prints a detailed CLI help with env mappings and examples.
func printUsage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "\nUsage:\n  %s --address ADDR [--chain %s] [--depth 2] [--graph] [flags]\n", os.Args[0], strings.Join(chain.Supported(), "|"))
	fmt.Fprintf(out, "  %s --whataddress ADDR[,ADDR...]\n\n", os.Args[0])
	fmt.Fprintln(out, "Flags:")
	flag.PrintDefaults()
	fmt.Fprintln(out, "\nEnvironment variables (defaults):")
	fmt.Fprintln(out, "  TRACER_CONFIG      Optional config file (yaml/json/toml)")
	fmt.Fprintln(out, "  ETHERSCAN_URL      Etherscan API base (https://api.etherscan.io/api)")
	fmt.Fprintln(out, "  ETHERSCAN_API_KEY  Etherscan API key")
	fmt.Fprintln(out, "  TRONGRID_URL       TronGrid API base (https://api.trongrid.io)")
	fmt.Fprintln(out, "  TRONGRID_API_KEY   TronGrid API key (TRON-PRO-API-KEY header)")
	fmt.Fprintln(out, "  TRONGRID_CONTRACT  TRC-20 contract to trace (default USDT)")
	fmt.Fprintln(out, "  RATE_LIMIT         Explorer requests per second (default 5, 0 = unlimited)")
	fmt.Fprintln(out, "  HTTP_RETRIES       HTTP retries on 5xx/429/network (default 2)")
	fmt.Fprintln(out, "  HTTP_BACKOFF_BASE  Backoff base for retries (default 200ms)")
	fmt.Fprintln(out, "  FETCH_TIMEOUT      Per-address fetch timeout (default 20s)")
	fmt.Fprintln(out, "  TRACE_TIMEOUT      Whole run timeout (default 5m)")
	fmt.Fprintln(out, "  PAGE_SIZE          Records per explorer page (default 1000)")
	fmt.Fprintln(out, "  MAX_PAGES          Pages per address (default 10)")
	fmt.Fprintln(out, "  MAX_DEPTH          Default --depth (default 2, max 6)")
	fmt.Fprintln(out, "  CONCURRENCY        Parallel fetches per BFS level (default 1)")
	fmt.Fprintln(out, "  MIXER_MIN_IN       Mixer in-degree threshold (default 5)")
	fmt.Fprintln(out, "  MIXER_MIN_OUT      Mixer out-degree threshold (default 5)")
	fmt.Fprintln(out, "  NEO4J_URI          Neo4j sink (optional), with NEO4J_USER/NEO4J_PASS/NEO4J_DB")
	fmt.Fprintln(out, "  KAFKA_BROKERS      Kafka sink brokers (optional, comma separated), KAFKA_TOPIC")
	fmt.Fprintln(out, "  LOG_LEVEL          debug|info|warn|error (default info)")
	fmt.Fprintln(out, "\nExamples:")
	fmt.Fprintln(out, "  Classify addresses:")
	fmt.Fprintln(out, "    tracer --whataddress 0xabc...,TR7N...")
	fmt.Fprintln(out, "  List transactions and anomalies:")
	fmt.Fprintln(out, "    tracer --address 0xabc... --chain eth")
	fmt.Fprintln(out, "  Two-hop graph with a DOT rendering:")
	fmt.Fprintln(out, "    tracer --address 0xabc... --graph --depth 2 --dot graph.dot")
}

// fail prints to stderr and exits with code.
func fail(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	exit(code)
}

// Tracer entrypoint. Flags override env, env overrides the config file.
func main() {
	defaults, err := cfgpkg.Load()
	if err != nil {
		fail(2, "config error: %v", err)
		return
	}
	logging.SetLogger(logging.New(os.Stderr, logging.ParseLevel(defaults.LogLevel)))

	var (
		address     string
		chainSel    string
		depth       int
		graphMode   bool
		whatAddress string
		csvPath     string
		dotPath     string
		format      string
		minIn       int
		minOut      int
		concurrency int
		metricsOut  string
		neo4jURI    string
		kafkaList   string
		timeout     time.Duration
		dryRun      bool
		showVersion bool
	)

	flag.Usage = printUsage
	flag.StringVar(&address, "address", "", "Address to trace [required unless --whataddress]")
	flag.StringVar(&chainSel, "chain", "eth", "Chain: "+strings.Join(chain.Supported(), " | "))
	flag.IntVar(&depth, "depth", defaults.MaxDepth, "Graph expansion depth in hops (MAX_DEPTH)")
	flag.BoolVar(&graphMode, "graph", false, "Build the transaction graph instead of listing transactions")
	flag.StringVar(&whatAddress, "whataddress", "", "Classify comma-separated addresses and exit")
	flag.StringVar(&csvPath, "csv", "", "CSV export path in graph mode (default <address>_analysis.csv)")
	flag.StringVar(&dotPath, "dot", "", "Graphviz DOT export path in graph mode (optional)")
	flag.StringVar(&format, "format", "text", "Summary format: text | json | yaml")
	flag.IntVar(&minIn, "min-in", defaults.MixerMinIn, "Mixer in-degree threshold, strict (MIXER_MIN_IN)")
	flag.IntVar(&minOut, "min-out", defaults.MixerMinOut, "Mixer out-degree threshold, strict (MIXER_MIN_OUT)")
	flag.IntVar(&concurrency, "concurrency", defaults.Concurrency, "Parallel fetches per BFS level (CONCURRENCY)")
	flag.StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics to this textfile at exit")
	flag.StringVar(&neo4jURI, "neo4j", defaults.Neo4jURI, "Neo4j URI for the graph sink (NEO4J_URI)")
	flag.StringVar(&kafkaList, "kafka", strings.Join(defaults.KafkaBrokers, ","), "Kafka brokers for the edge sink (KAFKA_BROKERS)")
	flag.DurationVar(&timeout, "timeout", defaults.TraceTimeout, "Whole run timeout (TRACE_TIMEOUT)")
	flag.BoolVar(&dryRun, "dry-run", false, "Print plan and exit")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	if whatAddress != "" {
		if err := report.WriteClassifications(os.Stdout, classify.ClassifyList(classify.Default, whatAddress)); err != nil {
			fail(1, "write error: %v", err)
		}
		return
	}

	address = strings.TrimSpace(address)
	if address == "" {
		fail(2, "missing --address; see --help")
		return
	}
	c, err := chain.Parse(chainSel)
	if err != nil {
		fail(1, "%v (use %s)", err, strings.Join(chain.Supported(), "|"))
		return
	}
	if depth < 0 || depth > 6 {
		fail(2, "--depth must be between 0 and 6")
		return
	}
	if minIn < 0 || minOut < 0 {
		fail(2, "--min-in and --min-out must be >= 0")
		return
	}
	if concurrency < 1 || concurrency > 16 {
		fail(2, "--concurrency must be between 1 and 16")
		return
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		fail(2, "%v", err)
		return
	}
	if timeout <= 0 {
		fail(2, "--timeout must be > 0")
		return
	}
	if graphMode && csvPath == "" {
		csvPath = address + "_analysis.csv"
	}
	brokers := splitBrokers(kafkaList)

	mode := "raw"
	if graphMode {
		mode = "graph"
	}
	explorer := defaults.EtherscanURL
	if c == chain.TRON {
		explorer = defaults.TronGridURL
	}

	if dryRun {
		// Print a compact JSON plan and exit.
		plan := map[string]any{
			"address":       address,
			"chain":         c.String(),
			"mode":          mode,
			"depth":         depth,
			"explorer":      cfgpkg.RedactURL(explorer),
			"rate_limit":    defaults.RateLimit,
			"concurrency":   concurrency,
			"min_in":        minIn,
			"min_out":       minOut,
			"format":        string(f),
			"csv":           csvPath,
			"dot":           dotPath,
			"metrics_out":   metricsOut,
			"neo4j_uri":     cfgpkg.RedactURL(neo4jURI),
			"kafka_brokers": brokers,
			"kafka_topic":   defaults.KafkaTopic,
			"fetch_timeout": defaults.FetchTimeout.String(),
			"timeout":       timeout.String(),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(plan)
		return
	}

	cfg := defaults
	cfg.MaxDepth, cfg.Concurrency, cfg.MixerMinIn, cfg.MixerMinOut = depth, concurrency, minIn, minOut
	code := execute(c, cfg, runArgs{
		address:    address,
		graph:      graphMode,
		format:     f,
		csvPath:    csvPath,
		dotPath:    dotPath,
		metricsOut: metricsOut,
		neo4jURI:   neo4jURI,
		brokers:    brokers,
		timeout:    timeout,
	})
	if code != 0 {
		exit(code)
	}
}

// runArgs are the validated flags of one trace.
type runArgs struct {
	address    string
	graph      bool
	format     report.Format
	csvPath    string
	dotPath    string
	metricsOut string
	neo4jURI   string
	brokers    []string
	timeout    time.Duration
}

// execute runs one trace and returns the exit code. Sinks are closed before
// it returns, so callers may exit right after.
func execute(c chain.Chain, cfg cfgpkg.Config, args runArgs) int {
	ctx, cancel := context.WithTimeout(context.Background(), args.timeout)
	defer cancel()

	opts := trace.OptionsFrom(cfg)
	var reg *metrics.Registry
	if args.metricsOut != "" {
		reg = metrics.NewRegistry()
		opts.Metrics = reg
	}
	if args.graph && args.neo4jURI != "" {
		gs, err := newGraphSink(args.neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass, cfg.Neo4jDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "neo4j error: %v\n", err)
			return 1
		}
		defer func() { _ = gs.Close(context.Background()) }()
		opts.Graph = gs
	}
	if args.graph && len(args.brokers) > 0 {
		es, err := newEdgeSink(args.brokers, cfg.KafkaTopic)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kafka error: %v\n", err)
			return 1
		}
		defer func() { _ = es.Close() }()
		opts.Edges = es
	}

	tr, err := newTracer(c, cfg, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracer error: %v\n", err)
		return 1
	}

	var code int
	if args.graph {
		code = runGraph(ctx, tr, args.address, args.format, args.csvPath, args.dotPath, os.Stdout)
	} else {
		code = runRaw(ctx, tr, args.address, os.Stdout)
	}
	if reg != nil {
		if err := reg.WriteTextfile(args.metricsOut); err != nil {
			fmt.Fprintf(os.Stderr, "metrics error: %v\n", err)
			code = 1
		}
	}
	return code
}

// runGraph analyzes address and writes the summary and exports. It returns
// the process exit code.
func runGraph(ctx context.Context, tr tracer, address string, f report.Format, csvPath, dotPath string, stdout io.Writer) int {
	a, err := tr.Analyze(ctx, address)
	if a.Graph == nil {
		fmt.Fprintf(os.Stderr, "analysis error: %v\n", err)
		return 1
	}
	if werr := report.WriteSummary(stdout, a.Summary(), f); werr != nil {
		fmt.Fprintf(os.Stderr, "write error: %v\n", werr)
		return 1
	}
	interrupted := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if rootErr := a.RootErr(); rootErr != nil && !interrupted {
		fmt.Fprintf(os.Stderr, "root fetch failed: %v\n", rootErr)
		return 1
	}
	if csvPath != "" {
		if werr := writeFile(csvPath, func(w io.Writer) error { return report.WriteCSV(w, a.Graph) }); werr != nil {
			fmt.Fprintf(os.Stderr, "csv export error: %v\n", werr)
			return 1
		}
	}
	if dotPath != "" {
		if werr := writeFile(dotPath, func(w io.Writer) error { return report.WriteDOT(w, a.Graph) }); werr != nil {
			fmt.Fprintf(os.Stderr, "dot export error: %v\n", werr)
			return 1
		}
	}
	if err != nil {
		switch {
		case errors.Is(err, trace.ErrSink):
			fmt.Fprintf(os.Stderr, "sink error: %v\n", err)
		case interrupted:
			fmt.Fprintf(os.Stderr, "timed out, graph is partial: %v\n", err)
		default:
			fmt.Fprintf(os.Stderr, "analysis error: %v\n", err)
		}
		return 1
	}
	return 0
}

// runRaw lists the history of address with its anomalies.
func runRaw(ctx context.Context, tr tracer, address string, stdout io.Writer) int {
	r, err := tr.Fetch(ctx, address)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch error: %v\n", err)
		return 1
	}
	if err := report.WriteListing(stdout, r.Listing()); err != nil {
		fmt.Fprintf(os.Stderr, "write error: %v\n", err)
		return 1
	}
	return 0
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func splitBrokers(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
