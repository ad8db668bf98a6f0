package neo4jsink

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// BatchSize is the number of rows written per transaction.
const BatchSize = 500

const mergeAddresses = `
UNWIND $rows AS id
MERGE (:Address {id: id})`

// mergeTransfers links sender and receiver through the transaction node:
// (sender)-[:SENT]->(tx) and (receiver)-[:RECEIVED]->(tx).
const mergeTransfers = `
UNWIND $rows AS row
MERGE (s:Address {id: row.from})
MERGE (r:Address {id: row.to})
MERGE (t:Transaction {hash: row.hash})
SET t.value = row.value, t.chain = $chain, t.run_id = $run_id
MERGE (s)-[:SENT]->(t)
MERGE (r)-[:RECEIVED]->(t)`

// Transfer is one transaction node with its endpoints.
type Transfer struct {
	Hash  string
	From  string
	To    string
	Value float64
}

// Graph is what a run exports.
type Graph struct {
	RunID     string
	Chain     string
	Addresses []string
	Transfers []Transfer
}

// executor runs one write transaction. It is the seam tests replace.
type executor interface {
	write(ctx context.Context, cypher string, params map[string]any) error
	verify(ctx context.Context) error
	close(ctx context.Context) error
}

type driverExecutor struct {
	driver neo4j.DriverWithContext
	db     string
}

func (d *driverExecutor) write(ctx context.Context, cypher string, params map[string]any) error {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: d.db, AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = session.Close(ctx) }()
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (d *driverExecutor) verify(ctx context.Context) error { return d.driver.VerifyConnectivity(ctx) }
func (d *driverExecutor) close(ctx context.Context) error  { return d.driver.Close(ctx) }

// newDriver is a test seam over neo4j.NewDriverWithContext.
var newDriver = func(uri, user, pass string) (neo4j.DriverWithContext, error) {
	return neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, pass, ""))
}

// Client writes traced graphs into Neo4j with idempotent MERGE statements.
// A Client built from an empty URI is a no-op.
type Client struct {
	exec       executor
	reqTimeout time.Duration
}

// New connects lazily to uri. An empty uri yields a no-op client.
func New(uri, user, pass, db string) (*Client, error) {
	c := &Client{reqTimeout: 30 * time.Second}
	if uri == "" {
		return c, nil
	}
	d, err := newDriver(uri, user, pass)
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	c.exec = &driverExecutor{driver: d, db: db}
	return c, nil
}

// Enabled reports whether writes reach a database.
func (c *Client) Enabled() bool { return c != nil && c.exec != nil }

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.reqTimeout)
}

// Ping verifies connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	ctx, cancel := c.requestContext(ctx)
	defer cancel()
	return c.exec.verify(ctx)
}

// WriteGraph merges every address and transfer of g. Each batch of BatchSize
// rows is one write transaction; re-writing the same graph is idempotent.
func (c *Client) WriteGraph(ctx context.Context, g Graph) error {
	if !c.Enabled() {
		return nil
	}
	ctx, cancel := c.requestContext(ctx)
	defer cancel()
	for start := 0; start < len(g.Addresses); start += BatchSize {
		end := min(start+BatchSize, len(g.Addresses))
		rows := make([]any, 0, end-start)
		for _, id := range g.Addresses[start:end] {
			rows = append(rows, id)
		}
		if err := c.exec.write(ctx, mergeAddresses, map[string]any{"rows": rows}); err != nil {
			return fmt.Errorf("neo4j merge addresses %d..%d: %w", start, end, err)
		}
	}
	for start := 0; start < len(g.Transfers); start += BatchSize {
		end := min(start+BatchSize, len(g.Transfers))
		rows := make([]any, 0, end-start)
		for _, t := range g.Transfers[start:end] {
			rows = append(rows, map[string]any{"hash": t.Hash, "from": t.From, "to": t.To, "value": t.Value})
		}
		params := map[string]any{"rows": rows, "chain": g.Chain, "run_id": g.RunID}
		if err := c.exec.write(ctx, mergeTransfers, params); err != nil {
			return fmt.Errorf("neo4j merge transfers %d..%d: %w", start, end, err)
		}
	}
	return nil
}

// Close releases the driver.
func (c *Client) Close(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.exec.close(ctx)
}
