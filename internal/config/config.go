package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	minRateLimit    = 0
	maxRateLimit    = 200
	minMaxDepth     = 0
	maxMaxDepth     = 6
	minHTTPRetries  = 0
	maxHTTPRetries  = 10
	minFetchTimeout = time.Second
	maxFetchTimeout = 2 * time.Minute
	minTraceTimeout = time.Second
	maxTraceTimeout = time.Hour
	minPageSize     = 1
	maxPageSize     = 10000
	minMaxPages     = 1
	maxMaxPages     = 100
	minConcurrency  = 1
	maxConcurrency  = 16
)

// ConfigFileEnv names the optional config file (yaml, json or toml by extension).
const ConfigFileEnv = "TRACER_CONFIG"

// Config holds 12-factor configuration shared by the tracer binaries.
// Secrets live here and are handed to source constructors explicitly.
type Config struct {
	EtherscanURL    string
	EtherscanAPIKey string
	TronGridURL     string
	TronGridAPIKey  string
	TronContract    string
	RateLimit       int
	HTTPRetries     int
	HTTPBackoffBase time.Duration
	FetchTimeout    time.Duration
	TraceTimeout    time.Duration
	PageSize        int
	MaxPages        int
	MaxDepth        int
	Concurrency     int
	MixerMinIn      int
	MixerMinOut     int
	Neo4jURI        string
	Neo4jUser       string
	Neo4jPass       string
	Neo4jDB         string
	KafkaBrokers    []string
	KafkaTopic      string
	LogLevel        string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("etherscan_url", "https://api.etherscan.io/api")
	v.SetDefault("etherscan_api_key", "")
	v.SetDefault("trongrid_url", "https://api.trongrid.io")
	v.SetDefault("trongrid_api_key", "")
	v.SetDefault("trongrid_contract", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	v.SetDefault("rate_limit", 5)
	v.SetDefault("http_retries", 2)
	v.SetDefault("http_backoff_base", "200ms")
	v.SetDefault("fetch_timeout", "20s")
	v.SetDefault("trace_timeout", "5m")
	v.SetDefault("page_size", 1000)
	v.SetDefault("max_pages", 10)
	v.SetDefault("max_depth", 2)
	v.SetDefault("concurrency", 1)
	v.SetDefault("mixer_min_in", 5)
	v.SetDefault("mixer_min_out", 5)
	v.SetDefault("neo4j_uri", "")
	v.SetDefault("neo4j_user", "neo4j")
	v.SetDefault("neo4j_pass", "")
	v.SetDefault("neo4j_db", "neo4j")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "chaintrace.edges")
	v.SetDefault("log_level", "info")
}

// intOr parses key as an int, falling back to def when unset or invalid.
func intOr(v *viper.Viper, key string, def int) int {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return def
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return def
}

// durOr parses key as a time.Duration, falling back to def when unset or invalid.
func durOr(v *viper.Viper, key string, def time.Duration) time.Duration {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampDuration(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RedactURL hides credentials and api keys in URLs to avoid logging secrets.
func RedactURL(s string) string {
	if s == "" {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return redactUserinfo(s)
	}
	if u.User != nil {
		if name := u.User.Username(); name != "" {
			u.User = url.UserPassword(name, "***")
		} else {
			u.User = url.User("***")
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		for _, k := range []string{"apikey", "api_key", "key"} {
			if q.Has(k) {
				q.Set(k, "***")
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// redactUserinfo is the best-effort fallback for strings url.Parse rejects.
func redactUserinfo(s string) string {
	i := strings.Index(s, "//")
	if i < 0 {
		return s
	}
	j := strings.Index(s[i+2:], "@")
	if j <= 0 {
		return s
	}
	creds := s[i+2 : i+2+j]
	user := strings.SplitN(creds, ":", 2)[0]
	return s[:i+2] + user + ":***@" + s[i+2+j+1:]
}

// Load reads configuration from the environment and, when TRACER_CONFIG is
// set, from that file. Environment values win over file values.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return Config{
		EtherscanURL:    strings.TrimSpace(v.GetString("etherscan_url")),
		EtherscanAPIKey: strings.TrimSpace(v.GetString("etherscan_api_key")),
		TronGridURL:     strings.TrimSpace(v.GetString("trongrid_url")),
		TronGridAPIKey:  strings.TrimSpace(v.GetString("trongrid_api_key")),
		TronContract:    strings.TrimSpace(v.GetString("trongrid_contract")),
		RateLimit:       clampInt(intOr(v, "rate_limit", 5), minRateLimit, maxRateLimit),
		HTTPRetries:     clampInt(intOr(v, "http_retries", 2), minHTTPRetries, maxHTTPRetries),
		HTTPBackoffBase: durOr(v, "http_backoff_base", 200*time.Millisecond),
		FetchTimeout:    clampDuration(durOr(v, "fetch_timeout", 20*time.Second), minFetchTimeout, maxFetchTimeout),
		TraceTimeout:    clampDuration(durOr(v, "trace_timeout", 5*time.Minute), minTraceTimeout, maxTraceTimeout),
		PageSize:        clampInt(intOr(v, "page_size", 1000), minPageSize, maxPageSize),
		MaxPages:        clampInt(intOr(v, "max_pages", 10), minMaxPages, maxMaxPages),
		MaxDepth:        clampInt(intOr(v, "max_depth", 2), minMaxDepth, maxMaxDepth),
		Concurrency:     clampInt(intOr(v, "concurrency", 1), minConcurrency, maxConcurrency),
		MixerMinIn:      clampInt(intOr(v, "mixer_min_in", 5), 0, 1<<20),
		MixerMinOut:     clampInt(intOr(v, "mixer_min_out", 5), 0, 1<<20),
		Neo4jURI:        strings.TrimSpace(v.GetString("neo4j_uri")),
		Neo4jUser:       v.GetString("neo4j_user"),
		Neo4jPass:       v.GetString("neo4j_pass"),
		Neo4jDB:         v.GetString("neo4j_db"),
		KafkaBrokers:    splitList(v.GetString("kafka_brokers")),
		KafkaTopic:      strings.TrimSpace(v.GetString("kafka_topic")),
		LogLevel:        v.GetString("log_level"),
	}, nil
}
