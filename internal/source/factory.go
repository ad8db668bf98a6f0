package source

import (
	"net/http"
	"time"

	"github.com/AIAleph/chaintrace/internal/chain"
	"github.com/AIAleph/chaintrace/internal/config"
)

// Config is the explicit per-source configuration. Nothing here is read from
// process-wide state, so tests and callers can build isolated sources.
type Config struct {
	BaseURL  string
	APIKey   string
	Contract string // TRON only
	PageSize int
	MaxPages int
	Retries  int
	Backoff  time.Duration
	Limiter  Limiter
	Client   *http.Client
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = 1000
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
	return c
}

type constructor func(Config) (Source, error)

var constructors = map[chain.Chain]constructor{
	chain.ETH:  NewEtherscan,
	chain.TRON: NewTronGrid,
}

// New constructs the Source for c. Unsupported chains fail with
// chain.ErrUnsupportedChain before anything touches the network.
func New(c chain.Chain, cfg Config) (Source, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	ctor, ok := constructors[c]
	if !ok {
		return nil, chain.ErrUnsupportedChain
	}
	return ctor(cfg)
}

// ConfigFor derives the source configuration for c from the loaded config.
func ConfigFor(c chain.Chain, cfg config.Config) Config {
	sc := Config{
		PageSize: cfg.PageSize,
		MaxPages: cfg.MaxPages,
		Retries:  cfg.HTTPRetries,
		Backoff:  cfg.HTTPBackoffBase,
		Limiter:  NewLimiter(cfg.RateLimit),
		Client:   &http.Client{Timeout: cfg.FetchTimeout},
	}
	switch c {
	case chain.ETH:
		sc.BaseURL = cfg.EtherscanURL
		sc.APIKey = cfg.EtherscanAPIKey
	case chain.TRON:
		sc.BaseURL = cfg.TronGridURL
		sc.APIKey = cfg.TronGridAPIKey
		sc.Contract = cfg.TronContract
	}
	return sc
}
