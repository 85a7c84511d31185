package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/replication"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of an rKV node.
type ServerConfig struct {
	// HTTP api settings
	Endpoint string

	// Storage
	Engine  db.Implementation
	DataDir string
	NoSync  bool

	// Cluster: base URLs of all other nodes
	Peers []string

	// Replication
	RetryAttempts       int
	RetryDelay          time.Duration
	PointTimeout        time.Duration
	BatchTimeout        time.Duration
	FanOut              replication.FanOut
	StrictBatchRollback bool

	// Health monitoring
	HealthTTL    time.Duration
	ProbeTimeout time.Duration

	// Entry cache, size 0 disables the cache
	CacheSize int
	CacheTTL  time.Duration

	// Limits
	MaxPageSize  int
	MaxBatchSize int

	// Logging configuration
	LogLevel string
}

// Validate checks the configuration for values the server can not start with.
func (c *ServerConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint must not be empty")
	}
	switch c.Engine {
	case db.ImplBolt:
		if c.DataDir == "" {
			return errors.Newf("engine %s needs a data directory", c.Engine)
		}
	case db.ImplMemory:
	default:
		return errors.Newf("invalid engine %q, must be one of %s, %s", c.Engine, db.ImplBolt, db.ImplMemory)
	}
	for _, peer := range c.Peers {
		if !strings.HasPrefix(peer, "http://") && !strings.HasPrefix(peer, "https://") {
			return errors.Newf("invalid peer %q, must be a http(s) base url", peer)
		}
	}
	if c.CacheSize < 0 {
		return errors.New("cache size must not be negative")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// HTTP settings
	addSection("HTTP Server")
	addField("Endpoint", c.Endpoint)

	// Storage
	addSection("Storage")
	addField("Engine", string(c.Engine))
	if c.Engine == db.ImplBolt {
		addField("Data Directory", c.DataDir)
		addField("Sync Writes", strconv.FormatBool(!c.NoSync))
	}

	// Cache
	addSection("Cache")
	if c.CacheSize == 0 {
		addField("Enabled", "false")
	} else {
		addField("Size", strconv.Itoa(c.CacheSize))
		addField("TTL", c.CacheTTL.String())
	}

	// Cluster
	addSection("Cluster")
	addField("Nodes", strconv.Itoa(len(c.Peers)+1))
	addField("Required For Quorum", strconv.Itoa(replication.RequiredReplicas(len(c.Peers))))
	for i, peer := range c.Peers {
		addField(fmt.Sprintf("Peer %d", i), peer)
	}

	if len(c.Peers) > 0 {
		// Replication
		addSection("Replication")
		addField("Fan Out", string(c.FanOut))
		addField("Retry Attempts", strconv.Itoa(c.RetryAttempts))
		addField("Retry Delay", c.RetryDelay.String())
		addField("Point Timeout", c.PointTimeout.String())
		addField("Batch Timeout", c.BatchTimeout.String())
		addField("Strict Batch Rollback", strconv.FormatBool(c.StrictBatchRollback))
		addField("Health TTL", c.HealthTTL.String())
		addField("Probe Timeout", c.ProbeTimeout.String())
	}

	// Limits
	addSection("Limits")
	addField("Max Page Size", strconv.Itoa(c.MaxPageSize))
	addField("Max Batch Size", strconv.Itoa(c.MaxBatchSize))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints     []string
	TimeoutSecond int
	RetryCount    int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
