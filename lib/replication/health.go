package replication

import (
	"context"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var healthLog = logger.GetLogger("health")

const (
	// DefaultHealthTTL is the lifetime of a cached health verdict.
	DefaultHealthTTL = 10 * time.Second
	// DefaultProbeTimeout bounds a single health probe.
	DefaultProbeTimeout = 3 * time.Second
)

var healthProbes = metrics.GetOrCreateCounter("rkv_health_probes_total")

// HealthOptions configures a HealthMonitor. Zero values use the defaults.
type HealthOptions struct {
	TTL          time.Duration
	ProbeTimeout time.Duration
	// Now is the clock used for the health cache, time.Now if nil.
	Now func() time.Time

	// reported in ClusterStatus only
	RetryAttempts int
	FanOut        FanOut
}

type healthRecord struct {
	healthy   bool
	checkedAt time.Time
}

// HealthMonitor tracks the reachability of the peers of the node.
// Verdicts are cached per peer for the TTL, both probe results and
// failures reported by the replication coordinator.
type HealthMonitor struct {
	peers  []string
	client IPeerClient
	cache  *xsync.MapOf[string, healthRecord]
	opts   HealthOptions
}

// NewHealthMonitor creates a monitor for the given peers.
func NewHealthMonitor(peers []string, client IPeerClient, opts HealthOptions) *HealthMonitor {
	if opts.TTL <= 0 {
		opts.TTL = DefaultHealthTTL
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = DefaultAttempts
	}
	if opts.FanOut == "" {
		opts.FanOut = FanOutSequential
	}
	return &HealthMonitor{
		peers:  append([]string(nil), peers...),
		client: client,
		cache:  xsync.NewMapOf[string, healthRecord](),
		opts:   opts,
	}
}

// Peers returns the configured peer URLs.
func (h *HealthMonitor) Peers() []string {
	return append([]string(nil), h.peers...)
}

// CheckHealth reports whether peer is healthy. With useCache a verdict younger
// than the TTL is returned without contacting the peer. Every probe result
// (including failures) is cached.
func (h *HealthMonitor) CheckHealth(ctx context.Context, peer string, useCache bool) bool {
	if useCache {
		if rec, ok := h.cache.Load(peer); ok && h.opts.Now().Sub(rec.checkedAt) < h.opts.TTL {
			return rec.healthy
		}
	}

	healthProbes.Inc()
	probeCtx, cancel := context.WithTimeout(ctx, h.opts.ProbeTimeout)
	defer cancel()

	code, err := h.client.Health(probeCtx, peer)
	healthy := err == nil && code == http.StatusOK
	if !healthy {
		if err != nil {
			healthLog.Debugf("health probe of %s failed: %v", peer, err)
		} else {
			healthLog.Debugf("health probe of %s answered with status %d", peer, code)
		}
	}

	h.store(peer, healthy)
	return healthy
}

// MarkUnhealthy records peer as unhealthy for the TTL.
func (h *HealthMonitor) MarkUnhealthy(peer string) {
	healthLog.Infof("marking peer %s as unhealthy for %s", peer, h.opts.TTL)
	h.store(peer, false)
}

// HealthyNodes returns all peers that are currently healthy (cached verdicts are used).
func (h *HealthMonitor) HealthyNodes(ctx context.Context) []string {
	healthy := make([]string, 0, len(h.peers))
	for _, peer := range h.peers {
		if h.CheckHealth(ctx, peer, true) {
			healthy = append(healthy, peer)
		}
	}
	return healthy
}

// ClusterStatus probes every peer (bypassing the cache) and summarizes the cluster.
// The local node always counts as healthy.
func (h *HealthMonitor) ClusterStatus(ctx context.Context) ClusterStatus {
	nodes := make([]NodeStatus, 0, len(h.peers))
	healthyCount := 1
	for _, peer := range h.peers {
		healthy := h.CheckHealth(ctx, peer, false)
		if healthy {
			healthyCount++
		}
		nodes = append(nodes, NodeStatus{URL: peer, Healthy: healthy})
	}

	total := len(h.peers) + 1
	required := RequiredReplicas(len(h.peers))
	quorum := healthyCount >= required

	return ClusterStatus{
		ReplicationEnabled:       len(h.peers) > 0,
		TotalNodes:               total,
		HealthyNodes:             healthyCount,
		UnhealthyNodes:           total - healthyCount,
		RequiredForQuorum:        required,
		HasQuorum:                quorum,
		CanAcceptWrites:          quorum,
		AutomaticFailoverEnabled: true,
		RetryAttempts:            h.opts.RetryAttempts,
		FanOut:                   h.opts.FanOut,
		Nodes:                    nodes,
	}
}

func (h *HealthMonitor) store(peer string, healthy bool) {
	h.cache.Store(peer, healthRecord{healthy: healthy, checkedAt: h.opts.Now()})
}
